package editor

import (
	"errors"
	"sync"
	"time"
)

var ErrSnapshotNotFound = errors.New("snapshot not found")

// Snapshot is a local copy of a draft written by autosave, kept even when
// the remote save fails.
type Snapshot struct {
	Key     string    `json:"key"`
	Draft   Draft     `json:"draft"`
	SavedAt time.Time `json:"saved_at"`
}

// SnapshotKey identifies the snapshot slot of a draft. Unsaved drafts share
// one slot per author.
func SnapshotKey(d *Draft) string {
	if d.Persisted() {
		return "post:" + string(d.ID)
	}
	return "new:" + string(d.AuthorID)
}

type Repository interface {
	SaveSnapshot(snap Snapshot) error
	GetSnapshot(key string) (*Snapshot, error)
	DeleteSnapshot(key string) error
}

type MemoryRepository struct {
	snapshots sync.Map
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{}
}

func (m *MemoryRepository) SaveSnapshot(snap Snapshot) error {
	snap.Draft = snap.Draft.clone()
	m.snapshots.Store(snap.Key, snap)
	return nil
}

func (m *MemoryRepository) GetSnapshot(key string) (*Snapshot, error) {
	if v, ok := m.snapshots.Load(key); ok {
		snap := v.(Snapshot)
		snap.Draft = snap.Draft.clone()
		return &snap, nil
	}
	return nil, ErrSnapshotNotFound
}

func (m *MemoryRepository) DeleteSnapshot(key string) error {
	m.snapshots.Delete(key)
	return nil
}
