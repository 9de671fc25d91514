package events

import (
	"context"
	"sync"
	"time"

	kclock "k8s.io/utils/clock"

	"github.com/moonshotcommons/timelock/timelock"
)

// DefaultRecorderCapacity is the number of events retained by a Recorder when no capacity is set.
const DefaultRecorderCapacity = 1024

// Record is an event stored by the Recorder.
type Record struct {
	// Sequence number, starting from 1
	Seq uint64
	// Wall-clock time when the event was recorded
	Time  time.Time
	Event timelock.Event
}

// RecorderOptions contains options for NewRecorder.
type RecorderOptions struct {
	// Maximum number of events retained; older events are dropped first
	// Defaults to DefaultRecorderCapacity
	Capacity int

	// Internal clock property, used for testing
	clock kclock.PassiveClock
}

// Recorder is a NotificationSink that keeps the most recent events in memory.
type Recorder struct {
	lock     sync.RWMutex
	records  []Record
	capacity int
	nextSeq  uint64
	clock    kclock.PassiveClock
}

// NewRecorder returns a new Recorder.
func NewRecorder(opts RecorderOptions) *Recorder {
	if opts.Capacity <= 0 {
		opts.Capacity = DefaultRecorderCapacity
	}
	if opts.clock == nil {
		opts.clock = kclock.RealClock{}
	}

	return &Recorder{
		records:  make([]Record, 0, opts.Capacity),
		capacity: opts.Capacity,
		nextSeq:  1,
		clock:    opts.clock,
	}
}

// Emit implements timelock.NotificationSink.
func (r *Recorder) Emit(_ context.Context, ev timelock.Event) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	if len(r.records) == r.capacity {
		// Shift in place to keep the backing array bounded
		copy(r.records, r.records[1:])
		r.records = r.records[:len(r.records)-1]
	}
	r.records = append(r.records, Record{
		Seq:   r.nextSeq,
		Time:  r.clock.Now(),
		Event: ev,
	})
	r.nextSeq++

	return nil
}

// List returns up to limit records with a sequence number greater than after, oldest first.
// If limit is 0 or negative, all matching records are returned.
func (r *Recorder) List(after uint64, limit int) []Record {
	r.lock.RLock()
	defer r.lock.RUnlock()

	res := make([]Record, 0)
	for _, rec := range r.records {
		if rec.Seq <= after {
			continue
		}
		res = append(res, rec)
		if limit > 0 && len(res) == limit {
			break
		}
	}
	return res
}

// Len returns the number of records currently retained.
func (r *Recorder) Len() int {
	r.lock.RLock()
	defer r.lock.RUnlock()
	return len(r.records)
}
