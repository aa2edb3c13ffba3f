package parser

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/maruyamamtk/keiba-prediction/internal/format"
)

const maxLineBytes = 1 << 20

var errLineTooLong = fmt.Errorf("line exceeds %d bytes", maxLineBytes)

// Result is one element of a decode sequence: a record or a line error.
type Result struct {
	Line   int
	Record *Record
	Err    *ParseError
}

// Iterator walks the lines of a feed file lazily. Malformed lines are yielded
// as results carrying Err; iteration continues past them.
type Iterator struct {
	open   func() (io.ReadCloser, error)
	schema *format.Schema
	rc     io.ReadCloser
	reader *bufio.Reader
	buf    []byte
	line   int
	cur    Result
	err    error
	done   bool
}

// DecodeFile returns a lazy sequence over path. Nothing is read until the
// first Next. Every call starts from the beginning of the file.
func DecodeFile(path string, schema *format.Schema) *Iterator {
	return &Iterator{
		open:   func() (io.ReadCloser, error) { return os.Open(path) },
		schema: schema,
	}
}

// DecodeBytes returns a sequence over an in-memory payload.
func DecodeBytes(data []byte, schema *format.Schema) *Iterator {
	return &Iterator{
		open:   func() (io.ReadCloser, error) { return io.NopCloser(bytes.NewReader(data)), nil },
		schema: schema,
	}
}

// DecodeReader returns a single-use sequence over r.
func DecodeReader(r io.Reader, schema *format.Schema) *Iterator {
	used := false
	return &Iterator{
		open: func() (io.ReadCloser, error) {
			if used {
				return nil, errors.New("reader already consumed")
			}
			used = true
			return io.NopCloser(r), nil
		},
		schema: schema,
	}
}

// Next advances to the next non-blank line.
func (it *Iterator) Next() bool {
	if it.done {
		return false
	}
	if it.reader == nil {
		rc, err := it.open()
		if err != nil {
			it.err = err
			it.done = true
			return false
		}
		it.rc = rc
		it.reader = bufio.NewReaderSize(rc, 64*1024)
	}

	for {
		raw, tooLong, err := it.readLine()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				it.err = err
			}
			it.done = true
			return false
		}
		it.line++
		if tooLong {
			it.cur = Result{Line: it.line, Err: &ParseError{DataType: it.schema.Code, Line: it.line, Err: errLineTooLong}}
			return true
		}
		if len(bytes.TrimSpace(raw)) == 0 {
			continue
		}
		rec, err := Decode(raw, it.schema)
		if err != nil {
			var pe *ParseError
			if !errors.As(err, &pe) {
				pe = &ParseError{DataType: it.schema.Code, Err: err}
			}
			pe.Line = it.line
			it.cur = Result{Line: it.line, Err: pe}
			return true
		}
		rec.Line = it.line
		it.cur = Result{Line: it.line, Record: rec}
		return true
	}
}

// readLine returns the next line without its terminator. A line longer than
// maxLineBytes is consumed and dropped; tooLong reports that.
func (it *Iterator) readLine() (line []byte, tooLong bool, err error) {
	it.buf = it.buf[:0]
	for {
		chunk, rerr := it.reader.ReadSlice('\n')
		if len(it.buf)+len(chunk) > maxLineBytes {
			tooLong = true
			it.buf = it.buf[:0]
		} else if !tooLong {
			it.buf = append(it.buf, chunk...)
		}
		switch {
		case errors.Is(rerr, bufio.ErrBufferFull):
			continue
		case errors.Is(rerr, io.EOF):
			if len(it.buf) == 0 && !tooLong {
				return nil, false, io.EOF
			}
		case rerr != nil:
			return nil, false, rerr
		}
		line = bytes.TrimSuffix(it.buf, []byte("\n"))
		return bytes.TrimSuffix(line, []byte("\r")), tooLong, nil
	}
}

// Value returns the current result.
func (it *Iterator) Value() Result { return it.cur }

// Err returns an I/O error that stopped iteration early.
func (it *Iterator) Err() error { return it.err }

// Close releases the underlying file.
func (it *Iterator) Close() error {
	it.done = true
	if it.rc == nil {
		return nil
	}
	err := it.rc.Close()
	it.rc = nil
	return err
}
