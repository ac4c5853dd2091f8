// Package id provides centralized ID generation: prefixed ULIDs for
// sessions and checkpoints (lexicographically sortable, debuggable in
// logs) and UUIDs for recovery-attempt correlation.
package id

import (
	"crypto/rand"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// SessionID identifies a live session record.
type SessionID string

// CheckpointID identifies a retained historical snapshot.
type CheckpointID string

const (
	SessionPrefix    = "sess"
	CheckpointPrefix = "ckpt"
)

// Generator generates ULIDs with optional prefixes.
type Generator struct {
	entropy   io.Reader
	entropyMu sync.Mutex
}

var (
	defaultGenerator *Generator
	once             sync.Once
)

// Default returns the singleton generator instance.
func Default() *Generator {
	once.Do(func() {
		defaultGenerator = NewGenerator(rand.Reader)
	})
	return defaultGenerator
}

// NewGenerator creates a generator with the given entropy source. Pass a
// deterministic reader in tests.
func NewGenerator(entropy io.Reader) *Generator {
	return &Generator{entropy: entropy}
}

// Generate creates a new ULID.
func (g *Generator) Generate() ulid.ULID {
	g.entropyMu.Lock()
	defer g.entropyMu.Unlock()

	return ulid.MustNew(ulid.Timestamp(time.Now()), g.entropy)
}

// GenerateWithPrefix creates a prefixed ULID string.
func (g *Generator) GenerateWithPrefix(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, g.Generate().String())
}

// NewSessionID generates a new session ID.
func NewSessionID() SessionID {
	return SessionID(Default().GenerateWithPrefix(SessionPrefix))
}

// NewCheckpointID generates a new checkpoint ID.
func NewCheckpointID() CheckpointID {
	return CheckpointID(Default().GenerateWithPrefix(CheckpointPrefix))
}

// NewAttemptID generates a correlation ID for one recovery workflow run.
func NewAttemptID() string {
	return uuid.NewString()
}
