// Package syncer decides which local feed files differ from their remote
// copies and transfers them through a bounded worker pool.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/maruyamamtk/keiba-prediction/internal/fingerprint"
	"github.com/maruyamamtk/keiba-prediction/internal/format"
	"github.com/maruyamamtk/keiba-prediction/internal/objectstore"
	"github.com/maruyamamtk/keiba-prediction/internal/retry"
)

// Options tunes an Engine.
type Options struct {
	// Workers bounds concurrent hashing, stats and transfers.
	Workers int
	// Rate limits transfer dispatch per second; zero means unlimited.
	Rate  float64
	Retry retry.Policy
	// Sleep replaces the retry backoff wait; used by tests.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Engine runs compare and upload passes against one object store.
type Engine struct {
	store    objectstore.Store
	registry *format.Registry
	index    *fingerprint.Index
	log      logrus.FieldLogger
	opts     Options
	limiter  *rate.Limiter
}

// NewEngine wires an engine. The index belongs to the caller's invocation;
// the engine never creates or closes one.
func NewEngine(store objectstore.Store, registry *format.Registry, index *fingerprint.Index, log logrus.FieldLogger, opts Options) *Engine {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	var limiter *rate.Limiter
	if opts.Rate > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.Rate), 1)
	}
	return &Engine{
		store:    store,
		registry: registry,
		index:    index,
		log:      log,
		opts:     opts,
		limiter:  limiter,
	}
}

// Compare builds an upload plan for the files under localRoot. The local
// hash set is snapshotted once; every decision in the plan uses that snapshot.
func (e *Engine) Compare(ctx context.Context, localRoot, remotePrefix, dataType string) (*UploadPlan, error) {
	if dataType != "" {
		if _, err := e.registry.Lookup(dataType); err != nil {
			return nil, err
		}
	}
	files, err := Discover(localRoot, remotePrefix, dataType)
	if err != nil {
		return nil, err
	}

	plan := &UploadPlan{
		RunID:        uuid.NewString(),
		LocalRoot:    localRoot,
		RemotePrefix: remotePrefix,
		DataType:     strings.ToUpper(dataType),
		CreatedAt:    time.Now().UTC(),
		Entries:      make([]PlanEntry, len(files)),
	}
	log := e.log.WithField("run_id", plan.RunID)
	log.WithField("files", len(files)).Info("comparing local files with remote")

	hashErrs := make([]error, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.Workers)
	for i := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if _, err := e.index.Fingerprint(files[i].Path); err != nil {
				hashErrs[i] = err
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	snap := e.index.Snapshot()

	runner := e.runner(log)
	g, gctx = errgroup.WithContext(ctx)
	g.SetLimit(e.opts.Workers)
	for i, f := range files {
		entry := &plan.Entries[i]
		entry.File = f
		if _, err := e.registry.Lookup(f.DataType); err != nil {
			var mismatch *format.SchemaMismatchError
			if errors.As(err, &mismatch) {
				mismatch.Path = f.RelPath
			}
			entry.Action, entry.Reason, entry.Err = ActionReject, ReasonUnregistered, err
			continue
		}
		fp, ok := snap.Get(f.Path)
		if hashErrs[i] != nil || !ok {
			entry.Action, entry.Reason, entry.Err = ActionReject, ReasonUnreadable, hashErrs[i]
			continue
		}
		entry.File.Hash = fp.Hash
		entry.File.Size = fp.Size

		g.Go(func() error {
			var remote *objectstore.ObjectInfo
			out := runner.Do(gctx, func(ctx context.Context) error {
				info, err := e.store.Stat(ctx, entry.File.Key)
				if err != nil {
					return err
				}
				remote = info
				return nil
			})
			switch {
			case out.Err == nil:
				entry.Remote = remote
				if strings.EqualFold(remote.Hash, entry.File.Hash) {
					entry.Action, entry.Reason = ActionSkip, ReasonUnchanged
				} else {
					entry.Action, entry.Reason = ActionUpload, ReasonHashMismatch
				}
			case objectstore.IsNotFound(out.Err), objectstore.IsBucketNotFound(out.Err):
				// A missing bucket holds no objects; a real run creates it first.
				entry.Action, entry.Reason = ActionUpload, ReasonMissingRemote
			default:
				entry.Action, entry.Reason, entry.Err = ActionReject, ReasonRemoteStatError, out.Err
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	log.WithFields(logrus.Fields{
		"upload": plan.Count(ActionUpload),
		"skip":   plan.Count(ActionSkip),
		"reject": plan.Count(ActionReject),
	}).Info("comparison complete")
	return plan, nil
}

// UploadOptions controls a transfer pass.
type UploadOptions struct {
	DryRun bool
	Force  bool
}

// Upload executes plan. Cancelling ctx stops dispatching new transfers;
// transfers already started run to completion.
func (e *Engine) Upload(ctx context.Context, plan *UploadPlan, opts UploadOptions) *SyncReport {
	report := &SyncReport{
		RunID:     plan.RunID,
		DryRun:    opts.DryRun,
		StartedAt: time.Now().UTC(),
		Files:     make([]FileStatus, len(plan.Entries)),
	}
	log := e.log.WithFields(logrus.Fields{"run_id": plan.RunID, "dry_run": opts.DryRun})

	var pending []int
	for i, entry := range plan.Entries {
		st := FileStatus{
			Key:      entry.File.Key,
			Path:     entry.File.Path,
			DataType: entry.File.DataType,
			Action:   entry.Action,
			Reason:   entry.Reason,
			Hash:     entry.File.Hash,
			Bytes:    entry.File.Size,
		}
		if entry.Remote != nil {
			st.RemoteHash = entry.Remote.Hash
		}
		if entry.Action == ActionSkip && opts.Force {
			st.Action, st.Reason = ActionUpload, ReasonForced
		}

		switch {
		case st.Action == ActionReject:
			st.Status = StatusFailed
			if entry.Err != nil {
				st.Error = entry.Err.Error()
			}
			log.WithFields(logrus.Fields{"key": st.Key, "reason": st.Reason}).Warn("file rejected")
		case st.Action == ActionSkip:
			st.Status = StatusSkipped
		case opts.DryRun:
			st.Status = StatusWouldUpload
		default:
			pending = append(pending, i)
		}
		report.Files[i] = st
	}

	if len(pending) > 0 {
		e.dispatch(ctx, log, report, pending)
	}
	report.tally()
	report.FinishedAt = time.Now().UTC()

	log.WithFields(logrus.Fields{
		"uploaded":  report.Uploaded,
		"skipped":   report.Skipped,
		"failed":    report.Failed,
		"cancelled": report.Cancelled,
		"bytes":     report.Bytes,
	}).Info("sync complete")
	return report
}

// Run compares and uploads in one pass.
func (e *Engine) Run(ctx context.Context, localRoot, remotePrefix, dataType string, opts UploadOptions) (*SyncReport, error) {
	plan, err := e.Compare(ctx, localRoot, remotePrefix, dataType)
	if err != nil {
		return nil, err
	}
	return e.Upload(ctx, plan, opts), nil
}

func (e *Engine) dispatch(ctx context.Context, log logrus.FieldLogger, report *SyncReport, pending []int) {
	// In-flight transfers must not see the caller's cancellation.
	transferCtx := context.WithoutCancel(ctx)
	runner := e.runner(log)

	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < e.opts.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				e.transfer(transferCtx, runner, log, &report.Files[idx])
			}
		}()
	}

	cancelRest := func(from int) {
		for _, rest := range pending[from:] {
			report.Files[rest].Status = StatusCancelled
			report.Files[rest].Error = "not started: sync cancelled"
		}
		log.WithField("not_started", len(pending)-from).Warn("sync cancelled, waiting for in-flight transfers")
	}

dispatch:
	for n, idx := range pending {
		if !e.wait(ctx) {
			cancelRest(n)
			break
		}
		select {
		case jobs <- idx:
		case <-ctx.Done():
			cancelRest(n)
			break dispatch
		}
	}
	close(jobs)
	wg.Wait()
}

// wait applies the dispatch rate limit and reports whether dispatch may continue.
func (e *Engine) wait(ctx context.Context) bool {
	if ctx.Err() != nil {
		return false
	}
	if e.limiter == nil {
		return true
	}
	return e.limiter.Wait(ctx) == nil
}

func (e *Engine) transfer(ctx context.Context, runner *retry.Runner, log logrus.FieldLogger, st *FileStatus) {
	flog := log.WithFields(logrus.Fields{"key": st.Key, "reason": st.Reason})
	out := runner.Do(ctx, func(ctx context.Context) error {
		f, err := os.Open(st.Path)
		if err != nil {
			return fmt.Errorf("open %s: %w", st.Path, err)
		}
		defer f.Close()
		remoteHash, err := e.store.Put(ctx, st.Key, f, st.Bytes, st.Hash)
		if err != nil {
			return err
		}
		if remoteHash != "" && !strings.EqualFold(remoteHash, st.Hash) {
			return &objectstore.Error{
				Code:      objectstore.CodeChecksumMismatch,
				Retryable: true,
				Err:       fmt.Errorf("remote hash %s differs from local %s", remoteHash, st.Hash),
			}
		}
		st.RemoteHash = st.Hash
		return nil
	})
	st.Attempts = out.Attempts
	if out.Err != nil {
		st.Status = StatusFailed
		st.Error = out.Err.Error()
		flog.WithFields(logrus.Fields{"attempts": out.Attempts, "state": out.State.String()}).Errorf("upload failed: %v", out.Err)
		return
	}
	st.Status = StatusUploaded
	flog.WithField("attempts", out.Attempts).Info("uploaded")
}

func (e *Engine) runner(log logrus.FieldLogger) *retry.Runner {
	r := retry.NewRunner(e.opts.Retry, func(tr retry.Transition) {
		if tr.To == retry.StateBackoff {
			log.WithFields(logrus.Fields{"attempt": tr.Attempt, "wait": tr.Wait.String()}).Warnf("transient failure, retrying: %v", tr.Err)
		}
	})
	if e.opts.Sleep != nil {
		r.Sleep = e.opts.Sleep
	}
	return r
}
