package editor

import (
	"context"
	"errors"
	"sync"
	"time"
)

// AutosaveTimeout bounds one autosave attempt.
const AutosaveTimeout = 30 * time.Second

// AutosaveResult reports one timer fire.
type AutosaveResult struct {
	Saved    bool      `json:"saved"`
	Snapshot bool      `json:"snapshot"`
	Err      error     `json:"-"`
	At       time.Time `json:"at"`
}

// Autosaver debounces mutations of a session: each Touch restarts a single
// timer, and when it fires the draft is snapshotted locally and saved.
// A failed save is not retried; the next mutation arms the timer again.
type Autosaver struct {
	mu      sync.Mutex
	timer   Timer
	gen     uint64
	stopped bool

	session   *Session
	snapshots Repository
	clock     Clock
	delay     time.Duration
	notify    func(AutosaveResult)
}

type AutosaverOptions struct {
	Delay     time.Duration
	Clock     Clock
	Snapshots Repository
	Notify    func(AutosaveResult)
}

// NewAutosaver attaches an autosaver to s.
func NewAutosaver(s *Session, opts AutosaverOptions) *Autosaver {
	if opts.Clock == nil {
		opts.Clock = RealClock
	}
	if opts.Delay <= 0 {
		opts.Delay = 30 * time.Second
	}

	a := &Autosaver{
		session:   s,
		snapshots: opts.Snapshots,
		clock:     opts.Clock,
		delay:     opts.Delay,
		notify:    opts.Notify,
	}
	s.SetMutationHook(a.Touch)
	return a
}

// Touch (re)arms the timer for a full delay from now.
func (a *Autosaver) Touch() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.stopped {
		return
	}
	if a.timer != nil {
		a.timer.Stop()
	}

	a.gen++
	gen := a.gen
	a.timer = a.clock.AfterFunc(a.delay, func() { a.fire(gen) })
}

// Pending reports whether a save is scheduled.
func (a *Autosaver) Pending() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.timer != nil && !a.stopped
}

// Stop clears the timer. No fire starts after Stop returns; a save already
// running finishes against the session, which ignores it once closed.
func (a *Autosaver) Stop() {
	a.mu.Lock()
	a.stopped = true
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
	a.mu.Unlock()
}

func (a *Autosaver) fire(gen uint64) {
	a.mu.Lock()
	// A timer that was replaced or stopped may still run if Stop lost the race.
	if a.stopped || gen != a.gen {
		a.mu.Unlock()
		return
	}
	a.timer = nil
	a.mu.Unlock()

	res := AutosaveResult{At: a.clock.Now()}

	var key string
	if a.snapshots != nil {
		d := a.session.Draft()
		key = SnapshotKey(&d)
		snap := Snapshot{Key: key, Draft: d, SavedAt: res.At}
		if err := a.snapshots.SaveSnapshot(snap); err != nil {
			editorLogger.Warn().Err(err).Str("key", snap.Key).Msg("Local snapshot failed")
		} else {
			res.Snapshot = true
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), AutosaveTimeout)
	defer cancel()

	saved, err := a.session.Save(ctx)
	res.Saved = saved
	res.Err = err

	switch {
	case errors.Is(err, ErrSessionClosed):
		return
	case errors.Is(err, ErrValidation):
		editorLogger.Debug().Err(err).Msg("Autosave kept local snapshot only")
	case err != nil:
		editorLogger.Warn().Err(err).Msg("Autosave failed")
	case saved && res.Snapshot && !a.session.Dirty():
		// The stored post is current, the snapshot has nothing to recover.
		if err := a.snapshots.DeleteSnapshot(key); err != nil {
			editorLogger.Warn().Err(err).Str("key", key).Msg("Error dropping snapshot")
		}
	}

	if a.notify != nil {
		a.notify(res)
	}
}
