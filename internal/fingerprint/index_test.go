package fingerprint

import (
	"crypto/md5"
	"encoding/hex"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestFingerprintMatchesMD5(t *testing.T) {
	path := filepath.Join(t.TempDir(), "KYF260104.txt")
	data := []byte("0626110101H2012345")
	writeFile(t, path, data)

	ix := NewIndex()
	defer ix.Close()

	fp, err := ix.Fingerprint(path)
	if err != nil {
		t.Fatalf("fingerprint: %v", err)
	}
	sum := md5.Sum(data)
	if fp.Hash != hex.EncodeToString(sum[:]) {
		t.Fatalf("hash = %s, want %s", fp.Hash, hex.EncodeToString(sum[:]))
	}
	if fp.Size != int64(len(data)) {
		t.Fatalf("size = %d", fp.Size)
	}
}

func TestFingerprintRehashesOnChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "BAA260104.txt")
	writeFile(t, path, []byte("first"))

	ix := NewIndex()
	defer ix.Close()

	first, err := ix.Fingerprint(path)
	if err != nil {
		t.Fatalf("fingerprint: %v", err)
	}
	writeFile(t, path, []byte("second version"))
	later := time.Now().Add(time.Minute)
	if err := os.Chtimes(path, later, later); err != nil {
		t.Fatalf("chtimes: %v", err)
	}
	second, err := ix.Fingerprint(path)
	if err != nil {
		t.Fatalf("fingerprint: %v", err)
	}
	if first.Hash == second.Hash {
		t.Fatalf("expected a new hash after the file changed")
	}
}

func TestSnapshotIsIsolated(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.txt")
	b := filepath.Join(dir, "b.txt")
	writeFile(t, a, []byte("a"))
	writeFile(t, b, []byte("b"))

	ix := NewIndex()
	defer ix.Close()
	if _, err := ix.Fingerprint(a); err != nil {
		t.Fatalf("fingerprint: %v", err)
	}
	snap := ix.Snapshot()
	if _, err := ix.Fingerprint(b); err != nil {
		t.Fatalf("fingerprint: %v", err)
	}
	if snap.Len() != 1 {
		t.Fatalf("snapshot changed after later hashing: %d entries", snap.Len())
	}
	if _, ok := snap.Get(b); ok {
		t.Fatalf("snapshot must not see b")
	}
	if ix.Len() != 2 {
		t.Fatalf("index len = %d", ix.Len())
	}
}

func TestFingerprintConcurrent(t *testing.T) {
	dir := t.TempDir()
	var paths []string
	for i := 0; i < 16; i++ {
		p := filepath.Join(dir, string(rune('a'+i))+".txt")
		writeFile(t, p, []byte(p))
		paths = append(paths, p)
	}
	ix := NewIndex()
	defer ix.Close()

	var wg sync.WaitGroup
	errs := make(chan error, len(paths))
	for _, p := range paths {
		wg.Add(1)
		go func(p string) {
			defer wg.Done()
			if _, err := ix.Fingerprint(p); err != nil {
				errs <- err
			}
		}(p)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("fingerprint: %v", err)
	}
	if ix.Len() != len(paths) {
		t.Fatalf("index len = %d, want %d", ix.Len(), len(paths))
	}
}

func TestClosedIndex(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x.txt")
	writeFile(t, path, []byte("x"))
	ix := NewIndex()
	ix.Close()
	if _, err := ix.Fingerprint(path); err != ErrClosed {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}
