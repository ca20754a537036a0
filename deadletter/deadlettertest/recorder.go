// Package deadlettertest provides an in-memory deadletter.Service.
package deadlettertest

import (
	"context"
	"sync"

	"goflare.io/storecredit/errs"
	"goflare.io/storecredit/models"
	"goflare.io/storecredit/models/enum"
)

type Recorder struct {
	mu      sync.Mutex
	Entries []*models.DeadLetter
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) Record(_ context.Context, entry *models.DeadLetter) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if entry.Status == "" {
		entry.Status = enum.DeadLetterStatusOpen
	}
	r.Entries = append(r.Entries, entry)
	return nil
}

func (r *Recorder) List(_ context.Context, status enum.DeadLetterStatus, _, _ uint64) ([]*models.DeadLetter, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.DeadLetter
	for _, e := range r.Entries {
		if status == "" || e.Status == status {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *Recorder) Resolve(_ context.Context, id, note string) (*models.DeadLetter, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.Entries {
		if e.ID == id && e.Status == enum.DeadLetterStatusOpen {
			e.Status = enum.DeadLetterStatusResolved
			e.ResolutionNote = note
			return e, nil
		}
	}
	return nil, errs.NotFound("no open dead letter %s", id)
}

// Kinds lists recorded kinds in order.
func (r *Recorder) Kinds() []enum.DeadLetterKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	kinds := make([]enum.DeadLetterKind, 0, len(r.Entries))
	for _, e := range r.Entries {
		kinds = append(kinds, e.Kind)
	}
	return kinds
}
