package syncer

import (
	"time"

	"github.com/maruyamamtk/keiba-prediction/internal/objectstore"
)

// Action is what a sync pass does with a file.
type Action string

const (
	ActionUpload Action = "upload"
	ActionSkip   Action = "skip"
	ActionReject Action = "reject"
)

// Reason explains an Action.
type Reason string

const (
	ReasonUnchanged       Reason = "unchanged"
	ReasonMissingRemote   Reason = "missing-remote"
	ReasonHashMismatch    Reason = "hash-mismatch"
	ReasonForced          Reason = "forced"
	ReasonUnregistered    Reason = "unregistered-type"
	ReasonUnreadable      Reason = "unreadable"
	ReasonRemoteStatError Reason = "stat-failed"
)

// PlanEntry is the decision for one local file.
type PlanEntry struct {
	File   LocalFile               `json:"file"`
	Remote *objectstore.ObjectInfo `json:"remote,omitempty"`
	Action Action                  `json:"action"`
	Reason Reason                  `json:"reason"`
	Err    error                   `json:"-"`
}

// UploadPlan is the outcome of Compare.
type UploadPlan struct {
	RunID        string      `json:"run_id"`
	LocalRoot    string      `json:"local_root"`
	RemotePrefix string      `json:"remote_prefix"`
	DataType     string      `json:"data_type,omitempty"`
	CreatedAt    time.Time   `json:"created_at"`
	Entries      []PlanEntry `json:"entries"`
}

// Count returns how many entries carry action a.
func (p *UploadPlan) Count(a Action) int {
	n := 0
	for _, e := range p.Entries {
		if e.Action == a {
			n++
		}
	}
	return n
}

// Status is the final state of a file after Upload.
type Status string

const (
	StatusUploaded    Status = "uploaded"
	StatusWouldUpload Status = "would-upload"
	StatusSkipped     Status = "skipped"
	StatusFailed      Status = "failed"
	StatusCancelled   Status = "cancelled"
)

// FileStatus reports what happened to one file.
type FileStatus struct {
	Key        string `json:"key"`
	Path       string `json:"path"`
	DataType   string `json:"data_type"`
	Action     Action `json:"action"`
	Reason     Reason `json:"reason"`
	Status     Status `json:"status"`
	Attempts   int    `json:"attempts,omitempty"`
	Hash       string `json:"hash,omitempty"`
	RemoteHash string `json:"remote_hash,omitempty"`
	Bytes      int64  `json:"bytes,omitempty"`
	Error      string `json:"error,omitempty"`
}

// SyncReport summarises an Upload call. Dry runs produce the same shape.
type SyncReport struct {
	RunID      string       `json:"run_id"`
	DryRun     bool         `json:"dry_run"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at"`
	Uploaded   int          `json:"uploaded"`
	Skipped    int          `json:"skipped"`
	Failed     int          `json:"failed"`
	Cancelled  int          `json:"cancelled"`
	Bytes      int64        `json:"bytes"`
	Files      []FileStatus `json:"files"`
}

// OK reports whether every file was uploaded or skipped.
func (r *SyncReport) OK() bool {
	return r.Failed == 0 && r.Cancelled == 0
}

func (r *SyncReport) tally() {
	r.Uploaded, r.Skipped, r.Failed, r.Cancelled, r.Bytes = 0, 0, 0, 0, 0
	for _, f := range r.Files {
		switch f.Status {
		case StatusUploaded, StatusWouldUpload:
			r.Uploaded++
			r.Bytes += f.Bytes
		case StatusSkipped:
			r.Skipped++
		case StatusFailed:
			r.Failed++
		case StatusCancelled:
			r.Cancelled++
		}
	}
}
