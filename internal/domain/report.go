package domain

import "time"

// FileStatus is the outcome of ingesting one capture file.
type FileStatus string

const (
	StatusOK     FileStatus = "ok"
	StatusFailed FileStatus = "failed"
)

// FileResult records what happened to one capture file in a batch.
type FileResult struct {
	ID       string        `json:"id"`
	Name     string        `json:"name"`
	Path     string        `json:"path"`
	Status   FileStatus    `json:"status"`
	Error    string        `json:"error,omitempty"`
	Channels int           `json:"channels"`
	Rows     int           `json:"rows"`
	Duration time.Duration `json:"duration_ns"`
}

// Report is the manifest of one batch run.
type Report struct {
	RunID    string       `json:"run_id"`
	Source   string       `json:"source"`
	Started  time.Time    `json:"started"`
	Finished time.Time    `json:"finished"`
	Files    []FileResult `json:"files"`
}

// Failed returns the number of files that failed.
func (r Report) Failed() int {
	var n int
	for _, f := range r.Files {
		if f.Status == StatusFailed {
			n++
		}
	}
	return n
}

// NextIndex returns the sequence index following the last assigned ID.
func (r Report) NextIndex() int {
	return len(r.Files)
}
