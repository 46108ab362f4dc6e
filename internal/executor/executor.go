// Package executor applies a compiled Plan: renames in place, uploads
// stream a btrfs send through golang.org/x/sync/errgroup's producer/
// consumer pattern, destroys remove local snapshots, and deletes remove
// remote objects. Renames, uploads, destroys, and deletes run strictly in
// that order because the plan's vector order encodes real dependencies
// between them.
package executor

import (
	"fmt"
	"io"

	"github.com/rs/zerolog"
	"github.com/schollz/progressbar/v3"
	"golang.org/x/sync/errgroup"

	"snapvault/internal/actions"
	"snapvault/internal/model"
	"snapvault/internal/ratelimit"
)

// Report is the per-action outcome of one Run, kept for the history ledger
// and the printed summary.
type Report struct {
	Renamed  int
	Uploaded int
	Destroyed int
	Deleted  int
	Errors   []error
}

// stagedUploadRetries is how many times a staged upload retries the
// object-store call from the start of the spooled file before giving up,
// the way stream_uploader.py's multipart loop can retry a part without
// re-reading the source.
const stagedUploadRetries = 2

type Executor struct {
	logger      zerolog.Logger
	pipeline    model.ByteFilterPipeline
	bytesPerSec int
	progress    bool
	staged      bool
	stagingDir  string
}

func New(logger zerolog.Logger, pipeline model.ByteFilterPipeline) *Executor {
	return &Executor{
		logger:   logger.With().Str("component", "executor").Logger(),
		pipeline: pipeline,
	}
}

// WithBandwidthLimit caps upload throughput to bytesPerSec; zero leaves
// uploads unthrottled.
func (e *Executor) WithBandwidthLimit(bytesPerSec int) *Executor {
	e.bytesPerSec = bytesPerSec
	return e
}

// WithProgress renders a progress bar on stderr for each upload.
func (e *Executor) WithProgress() *Executor {
	e.progress = true
	return e
}

// WithStaging spools each upload's filtered send stream through a temp file
// under dir before handing it to the object store, trading local disk space
// (one snapshot's send size) for the ability to retry a failed upload
// without re-invoking the source's one-shot Send. dir empty uses the system
// default temp directory; to leave uploads streaming straight through the
// pipe, simply don't call WithStaging.
func (e *Executor) WithStaging(dir string) *Executor {
	e.stagingDir = dir
	e.staged = true
	return e
}

// Run applies plan in rename, upload, destroy, delete order. It does not
// stop at the first error in a vector — every item in a vector is
// attempted, and errors are collected and returned together — but it never
// starts a later vector once an earlier one has produced any error, since
// a dependency a later vector relies on may not hold anymore.
func (e *Executor) Run(plan *actions.Plan) Report {
	var report Report

	for _, r := range plan.Renames {
		if err := r.Store.RenameSnapshot(r.ID, r.NewName); err != nil {
			report.Errors = append(report.Errors, fmt.Errorf("rename %d: %w", r.ID, err))
			continue
		}
		report.Renamed++
	}
	if len(report.Errors) > 0 {
		return report
	}

	for _, u := range plan.Uploads {
		if err := e.upload(u); err != nil {
			report.Errors = append(report.Errors, fmt.Errorf("upload %s: %w", u.Key, err))
			continue
		}
		report.Uploaded++
	}
	if len(report.Errors) > 0 {
		return report
	}

	for _, d := range plan.Destroys {
		if err := d.Store.DestroySnapshot(d.ID); err != nil {
			report.Errors = append(report.Errors, fmt.Errorf("destroy %d: %w", d.ID, err))
			continue
		}
		report.Destroyed++
	}
	if len(report.Errors) > 0 {
		return report
	}

	for _, del := range plan.Deletes {
		if err := del.Remote.Store.Delete(del.Key); err != nil {
			report.Errors = append(report.Errors, fmt.Errorf("delete %s: %w", del.Key, err))
			continue
		}
		report.Deleted++
	}

	return report
}

// upload streams a snapshot send through the configured byte-filter
// pipeline into the remote object store. The producer goroutine always
// closes the pipe writer exactly once, and is always joined via the
// errgroup, so a failure on either side of the pipe surfaces as a single
// combined error instead of leaking a goroutine.
func (e *Executor) upload(u actions.UploadBackup) error {
	if err := u.Source.VerifyUnchanged(u.SnapshotID); err != nil {
		return &model.ConcurrentMutationError{SnapshotID: u.SnapshotID}
	}

	send, err := u.Source.Send(u.SnapshotID, u.SendParentID)
	if err != nil {
		return fmt.Errorf("open send stream: %w", err)
	}
	defer send.Close()

	pr, pw := io.Pipe()

	g := new(errgroup.Group)
	g.Go(func() error {
		defer pw.Close()
		_, err := io.Copy(pw, send)
		if err != nil {
			pw.CloseWithError(err)
			return fmt.Errorf("send stream: %w", err)
		}
		return nil
	})

	var reader io.Reader = pr
	if e.bytesPerSec > 0 {
		reader = ratelimit.NewReader(reader, e.bytesPerSec, e.bytesPerSec)
	}
	if e.pipeline != nil {
		wrapped, err := e.pipeline.Wrap(reader)
		if err != nil {
			_ = pr.CloseWithError(err)
			_ = g.Wait()
			return fmt.Errorf("wrap pipeline: %w", err)
		}
		reader = wrapped
	}
	if e.progress {
		bar := progressbar.DefaultBytes(-1, fmt.Sprintf("uploading %s", u.Key))
		reader = progressbar.NewReader(reader, bar)
	}

	var putErr error
	if e.staged {
		putErr = e.uploadStaged(u, reader)
	} else {
		putErr = u.Remote.Store.PutMultipart(u.Key, reader)
	}
	if putErr != nil {
		// Unblock a producer still writing into a pipe nobody reads.
		_ = pr.CloseWithError(putErr)
	}

	if err := g.Wait(); err != nil {
		_ = u.Remote.Store.Delete(u.Key)
		return err
	}
	if putErr != nil {
		_ = u.Remote.Store.Delete(u.Key)
		return &model.PartialUploadError{Key: u.Key, Cause: putErr}
	}

	if err := u.Source.VerifyUnchanged(u.SnapshotID); err != nil {
		_ = u.Remote.Store.Delete(u.Key)
		return &model.ConcurrentMutationError{SnapshotID: u.SnapshotID}
	}

	return nil
}

// uploadStaged spools r to a temp file and retries the object-store call
// from the spooled file's start on a transient failure, instead of
// propagating the failure straight up and forcing the whole send to be
// replayed.
func (e *Executor) uploadStaged(u actions.UploadBackup, r io.Reader) error {
	f, size, err := spoolToTempFile(e.stagingDir, r)
	if err != nil {
		return fmt.Errorf("stage upload: %w", err)
	}
	defer removeStaged(f)

	var putErr error
	for attempt := 0; attempt <= stagedUploadRetries; attempt++ {
		if attempt > 0 {
			if _, serr := f.Seek(0, io.SeekStart); serr != nil {
				return fmt.Errorf("rewind staged upload: %w", serr)
			}
		}
		putErr = u.Remote.Store.Put(u.Key, f, size)
		if putErr == nil {
			return nil
		}
	}
	return putErr
}
