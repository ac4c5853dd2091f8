package session

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

// ErrNotFound is returned by stores when a record does not exist.
var ErrNotFound = errors.New("session record not found")

// Session is a live session record as persisted: the workspace state kept
// as an opaque serialized blob plus its integrity checksum.
type Session struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	WorkspaceState string    `json:"workspaceState"`
	StateChecksum  string    `json:"stateChecksum"`
	Version        int       `json:"version"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// Checkpoint is a named, retained historical snapshot of a session's
// workspace state.
type Checkpoint struct {
	ID             string    `json:"id"`
	SessionID      string    `json:"sessionId"`
	Name           string    `json:"name"`
	WorkspaceState string    `json:"workspaceState"`
	StateChecksum  string    `json:"stateChecksum"`
	CreatedAt      time.Time `json:"createdAt"`
}

// Store is the opaque key-value boundary the recovery workflow reads and
// writes through. Implementations own durability; the manager only cares
// about lookups by id.
type Store interface {
	FindSession(ctx context.Context, id string) (*Session, error)
	SaveSession(ctx context.Context, rec *Session) error
	FindCheckpoint(ctx context.Context, id string) (*Checkpoint, error)
	ListCheckpoints(ctx context.Context, sessionID string) ([]*Checkpoint, error)
	SaveCheckpoint(ctx context.Context, rec *Checkpoint) error
}

// MemoryStore is an in-memory Store, used in tests and as a reference
// implementation of the contract.
type MemoryStore struct {
	sessions    sync.Map
	checkpoints sync.Map
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// FindSession looks a session up by id.
func (s *MemoryStore) FindSession(_ context.Context, id string) (*Session, error) {
	if rec, ok := s.sessions.Load(id); ok {
		clone := *rec.(*Session)
		return &clone, nil
	}
	return nil, ErrNotFound
}

// SaveSession stores a session record by id.
func (s *MemoryStore) SaveSession(_ context.Context, rec *Session) error {
	clone := *rec
	s.sessions.Store(rec.ID, &clone)
	return nil
}

// FindCheckpoint looks a checkpoint up by id.
func (s *MemoryStore) FindCheckpoint(_ context.Context, id string) (*Checkpoint, error) {
	if rec, ok := s.checkpoints.Load(id); ok {
		clone := *rec.(*Checkpoint)
		return &clone, nil
	}
	return nil, ErrNotFound
}

// ListCheckpoints returns a session's checkpoints, newest first.
func (s *MemoryStore) ListCheckpoints(_ context.Context, sessionID string) ([]*Checkpoint, error) {
	var out []*Checkpoint
	s.checkpoints.Range(func(_, value interface{}) bool {
		rec := value.(*Checkpoint)
		if rec.SessionID == sessionID {
			clone := *rec
			out = append(out, &clone)
		}
		return true
	})
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// SaveCheckpoint stores a checkpoint record by id.
func (s *MemoryStore) SaveCheckpoint(_ context.Context, rec *Checkpoint) error {
	clone := *rec
	s.checkpoints.Store(rec.ID, &clone)
	return nil
}
