package editor

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/debemdeboas/atelier/internal/model"
)

// Event is pushed to listeners when the editing session changes outside a
// request: autosave results and forced discards.
type Event struct {
	Type   string       `json:"type"`
	PostID model.PostID `json:"post_id,omitempty"`
	State  State        `json:"state"`
	Dirty  bool         `json:"dirty"`
	Saved  bool         `json:"saved,omitempty"`
	Error  string       `json:"error,omitempty"`
	At     time.Time    `json:"at"`
}

const (
	EventAutosave  = "autosave"
	EventDiscarded = "discarded"
	EventClosed    = "closed"
)

type WorkspaceConfig struct {
	AutosaveDelay time.Duration
	FlushOnClose  bool
	TagPolicy     string
	Clock         Clock
}

// Workspace holds the one active editing session and the mode gate in
// front of it.
type Workspace struct {
	mu        sync.Mutex
	session   *Session
	autosaver *Autosaver

	store     Store
	snapshots Repository
	cfg       WorkspaceConfig
	mode      *ModeController
	notify    func(Event)
}

func NewWorkspace(store Store, snapshots Repository, cfg WorkspaceConfig, notify func(Event)) *Workspace {
	if cfg.Clock == nil {
		cfg.Clock = RealClock
	}
	if snapshots == nil {
		snapshots = NewMemoryRepository()
	}

	w := &Workspace{
		store:     store,
		snapshots: snapshots,
		cfg:       cfg,
		notify:    notify,
	}
	w.mode = NewModeController(w.discard)
	return w
}

func (w *Workspace) Mode() *ModeController {
	return w.mode
}

func (w *Workspace) Snapshots() Repository {
	return w.snapshots
}

func (w *Workspace) emit(e Event) {
	if w.notify != nil {
		w.notify(e)
	}
}

// Open starts a session for post id, or a new draft when id is empty,
// closing any previous session first. When a local snapshot newer than the
// stored post exists it is returned so the caller can offer recovery.
func (w *Workspace) Open(ctx context.Context, owner model.UserID, id model.PostID) (*Session, *Snapshot, error) {
	if !w.mode.CanEdit() {
		return nil, nil, ErrReadOnly
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.closeLocked(ctx, w.cfg.FlushOnClose); err != nil {
		editorLogger.Warn().Err(err).Msg("Error closing previous session")
	}

	opts := Options{TagPolicy: w.cfg.TagPolicy, Now: w.cfg.Clock.Now}

	var s *Session
	if id == "" {
		s = OpenNew(w.store, owner, opts)
	} else {
		var err error
		s, err = OpenExisting(ctx, w.store, id, opts)
		if err != nil {
			return nil, nil, err
		}
	}

	w.session = s
	w.autosaver = NewAutosaver(s, AutosaverOptions{
		Delay:     w.cfg.AutosaveDelay,
		Clock:     w.cfg.Clock,
		Snapshots: w.snapshots,
		Notify:    w.autosaveNotify(s),
	})

	editorLogger.Info().Str("post_id", string(id)).Str("owner", string(owner)).Msg("Editing session opened")

	return s, w.newerSnapshot(s), nil
}

func (w *Workspace) newerSnapshot(s *Session) *Snapshot {
	d := s.Draft()
	snap, err := w.snapshots.GetSnapshot(SnapshotKey(&d))
	if err != nil {
		if !errors.Is(err, ErrSnapshotNotFound) {
			editorLogger.Warn().Err(err).Msg("Error reading snapshot")
		}
		return nil
	}
	if !snap.SavedAt.After(d.UpdatedAt) {
		return nil
	}
	return snap
}

func (w *Workspace) autosaveNotify(s *Session) func(AutosaveResult) {
	return func(res AutosaveResult) {
		d := s.Draft()
		e := Event{
			Type:   EventAutosave,
			PostID: d.ID,
			State:  s.State(),
			Dirty:  d.Dirty,
			Saved:  res.Saved,
			At:     res.At,
		}
		if res.Err != nil {
			e.Error = res.Err.Error()
		}
		w.emit(e)
	}
}

// Session returns the active session.
func (w *Workspace) Session() (*Session, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.session == nil {
		return nil, ErrNoSession
	}
	return w.session, nil
}

// Edit runs f against the active session when editing is allowed.
func (w *Workspace) Edit(f func(*Session) error) error {
	if !w.mode.CanEdit() {
		return ErrReadOnly
	}
	s, err := w.Session()
	if err != nil {
		return err
	}
	return f(s)
}

// Close ends the active session, flushing per configuration.
func (w *Workspace) Close(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.session == nil {
		return ErrNoSession
	}
	return w.closeLocked(ctx, w.cfg.FlushOnClose)
}

func (w *Workspace) closeLocked(ctx context.Context, flush bool) error {
	if w.session == nil {
		return nil
	}

	s := w.session
	w.autosaver.Stop()
	w.session, w.autosaver = nil, nil

	err := s.Close(ctx, flush)
	d := s.Draft()
	w.emit(Event{Type: EventClosed, PostID: d.ID, State: s.State(), Dirty: d.Dirty, At: w.cfg.Clock.Now()})
	return err
}

// discard drops the active session without saving. The last autosave
// snapshot, if any, stays in the snapshot store.
func (w *Workspace) discard() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.session == nil {
		return
	}

	s := w.session
	w.autosaver.Stop()
	s.Discard()
	w.session, w.autosaver = nil, nil

	d := s.Draft()
	editorLogger.Info().Str("post_id", string(d.ID)).Bool("dirty", d.Dirty).Msg("Editing session discarded")
	w.emit(Event{Type: EventDiscarded, PostID: d.ID, Dirty: d.Dirty, At: w.cfg.Clock.Now()})
}

// Pending reports whether an autosave is scheduled for the active session.
func (w *Workspace) Pending() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.autosaver != nil && w.autosaver.Pending()
}
