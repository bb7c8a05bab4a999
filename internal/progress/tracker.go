// Package progress tracks per-attachment upload progress and notifies
// listeners with a full snapshot on every change.
package progress

import (
	"maps"
	"sync"
)

// Status is the lifecycle state of an upload.
type Status string

const (
	StatusUploading Status = "uploading"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Terminal reports whether no further transitions can happen.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Entry is the progress of one attachment.
type Entry struct {
	Index   int
	Percent int
	Status  Status
	Error   string
}

// Snapshot maps attachment index to its entry.
type Snapshot map[int]Entry

// Listener receives a snapshot after every change. Listeners must not
// call SetProgress, Complete, Fail or Clear on the same Tracker.
type Listener func(Snapshot)

type registration struct {
	fn Listener
}

// Tracker is safe for concurrent use. Notifications are delivered one
// at a time, to listeners in registration order.
type Tracker struct {
	notify sync.Mutex

	mu        sync.Mutex
	entries   map[int]Entry
	listeners []*registration
}

// NewTracker returns an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{entries: make(map[int]Entry)}
}

// Start creates (or resets) the entry for index at 0%.
func (t *Tracker) Start(index int) {
	t.update(func() bool {
		t.entries[index] = Entry{Index: index, Status: StatusUploading}
		return true
	})
}

// SetProgress upserts the entry for index. Percent is clamped to
// [0,100] and never decreases; 100 completes the entry. Updates to a
// terminal entry are ignored.
func (t *Tracker) SetProgress(index, percent int) {
	percent = min(max(percent, 0), 100)
	t.update(func() bool {
		e, ok := t.entries[index]
		if ok && e.Status.Terminal() {
			return false
		}
		e.Index = index
		e.Percent = max(e.Percent, percent)
		e.Status = StatusUploading
		if e.Percent == 100 {
			e.Status = StatusCompleted
		}
		t.entries[index] = e
		return true
	})
}

// Complete marks index as fully uploaded.
func (t *Tracker) Complete(index int) {
	t.SetProgress(index, 100)
}

// Fail marks index as failed with err's message.
func (t *Tracker) Fail(index int, err error) {
	t.update(func() bool {
		e, ok := t.entries[index]
		if ok && e.Status.Terminal() {
			return false
		}
		e.Index = index
		e.Status = StatusFailed
		if err != nil {
			e.Error = err.Error()
		}
		t.entries[index] = e
		return true
	})
}

// Clear empties the tracker and notifies listeners with an empty
// snapshot.
func (t *Tracker) Clear() {
	t.update(func() bool {
		clear(t.entries)
		return true
	})
}

// Snapshot returns a copy of the current entries.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return maps.Clone(Snapshot(t.entries))
}

// AddListener registers fn and returns a function that removes exactly
// this registration. The returned function may be called repeatedly.
func (t *Tracker) AddListener(fn Listener) (unsubscribe func()) {
	reg := &registration{fn: fn}
	t.mu.Lock()
	t.listeners = append(t.listeners, reg)
	t.mu.Unlock()

	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		for i, r := range t.listeners {
			if r == reg {
				t.listeners = append(t.listeners[:i:i], t.listeners[i+1:]...)
				return
			}
		}
	}
}

// update applies mutate and, if it reports a change, notifies the
// listeners registered at that moment.
func (t *Tracker) update(mutate func() bool) {
	t.notify.Lock()
	defer t.notify.Unlock()

	t.mu.Lock()
	if !mutate() {
		t.mu.Unlock()
		return
	}
	snap := maps.Clone(Snapshot(t.entries))
	listeners := append([]*registration(nil), t.listeners...)
	t.mu.Unlock()

	for _, l := range listeners {
		l.fn(maps.Clone(snap))
	}
}
