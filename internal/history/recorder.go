package history

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/ChamsBouzaiene/autogoal/internal/engine"
)

// Recorder persists one run. Its Sink stores every delivered event before
// passing it on, and Finish stores the terminal phase. Storage failures are
// logged and never reach the loop.
type Recorder struct {
	store  *Store
	index  *Index // Optional
	runID  string
	logger *log.Logger
	now    func() time.Time

	mu  sync.Mutex
	seq int
}

// NewRecorder inserts the run row and returns a recorder for it.
func NewRecorder(ctx context.Context, store *Store, index *Index, runID, goal string, logger *log.Logger) (*Recorder, error) {
	if logger == nil {
		logger = log.Default()
	}
	r := &Recorder{
		store:  store,
		index:  index,
		runID:  runID,
		logger: logger,
		now:    time.Now,
	}
	if err := store.StartRun(ctx, runID, goal, r.now()); err != nil {
		return nil, err
	}
	return r, nil
}

// RunID returns the id the run is stored under.
func (r *Recorder) RunID() string { return r.runID }

// Sink wraps next. next may be nil.
func (r *Recorder) Sink(next engine.Sink) engine.Sink {
	return func(ev engine.Event) {
		r.record(ev)
		if next != nil {
			next(ev)
		}
	}
}

func (r *Recorder) record(ev engine.Event) {
	r.mu.Lock()
	r.seq++
	seq := r.seq
	r.mu.Unlock()

	if err := r.store.AppendEvent(context.Background(), r.runID, seq, ev, r.now()); err != nil {
		r.logger.Printf("⚠️  history: %v", err)
		return
	}
	if r.index != nil && Searchable(ev) {
		if err := r.index.Add(r.runID, seq, ev); err != nil {
			r.logger.Printf("⚠️  history index: %v", err)
		}
	}
}

// Finish stores the final snapshot of the run.
func (r *Recorder) Finish(ctx context.Context, snap engine.Snapshot, runErr error) error {
	msg := ""
	if runErr != nil {
		msg = runErr.Error()
	}
	return r.store.FinishRun(ctx, r.runID, snap.Phase, snap.Loop, msg, r.now())
}
