package session

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devworkspace/sessionstate/config"
	"github.com/devworkspace/sessionstate/merge"
	"github.com/devworkspace/sessionstate/state"
)

func testManager(t *testing.T) (*Manager, *MemoryStore) {
	t.Helper()
	store := NewMemoryStore()
	return NewManager(store, nil, nil, nil), store
}

func sampleState() *state.WorkspaceState {
	return &state.WorkspaceState{
		TerminalState: []state.Terminal{{ID: "t1", Command: "ls", IsActive: true}},
		BrowserTabs:   []state.BrowserTab{{URL: "https://x.dev", Title: "X", IsActive: true}},
		OpenFiles:     []state.OpenFile{{Path: "/a.go", HasUnsavedChanges: true}},
		WorkspaceConfig: map[string]interface{}{
			"theme": "dark",
		},
	}
}

// corrupt overwrites a session's stored blob, leaving the checksum stale.
func corrupt(t *testing.T, store *MemoryStore, sessionID, blob string) {
	t.Helper()
	rec, err := store.FindSession(context.Background(), sessionID)
	require.NoError(t, err)
	rec.WorkspaceState = blob
	require.NoError(t, store.SaveSession(context.Background(), rec))
}

func TestSaveAndRestoreDirect(t *testing.T) {
	m, _ := testManager(t)
	ctx := context.Background()

	rec, err := m.Save(ctx, "s1", sampleState())
	require.NoError(t, err)
	assert.Equal(t, "s1", rec.ID)
	assert.Equal(t, 1, rec.Version)
	assert.Regexp(t, `^[0-9a-f]{64}$`, rec.StateChecksum)

	result, err := m.RestoreDirect(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, TacticDirect, result.Tactic)
	assert.True(t, result.Validation.CanRecover)
	assert.Equal(t, "ls", result.State.TerminalState[0].Command)
	assert.Equal(t, "dark", result.State.WorkspaceConfig["theme"])
}

func TestSaveIncrementsVersion(t *testing.T) {
	m, _ := testManager(t)
	ctx := context.Background()

	first, err := m.Save(ctx, "s1", sampleState())
	require.NoError(t, err)
	second, err := m.Save(ctx, "s1", sampleState())
	require.NoError(t, err)

	assert.Equal(t, 1, first.Version)
	assert.Equal(t, 2, second.Version)
}

func TestSaveNilState(t *testing.T) {
	m, _ := testManager(t)
	_, err := m.Save(context.Background(), "s1", nil)
	require.Error(t, err)
}

func TestRestoreDirectChecksumMismatch(t *testing.T) {
	m, store := testManager(t)
	ctx := context.Background()

	_, err := m.Save(ctx, "s1", sampleState())
	require.NoError(t, err)

	// Valid JSON, so canonicalization succeeds, but the stored checksum no
	// longer matches.
	corrupt(t, store, "s1", `{"terminalState":[],"browserTabs":[],"aiConversations":[],"openFiles":[]}`)

	_, err = m.RestoreDirect(ctx, "s1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "checksum mismatch")
	assert.True(t, CanAttemptRecovery(err))
}

func TestRestoreDirectNotFound(t *testing.T) {
	m, _ := testManager(t)
	_, err := m.RestoreDirect(context.Background(), "missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.False(t, CanAttemptRecovery(err))
}

func TestCheckpointRoundtrip(t *testing.T) {
	m, _ := testManager(t)
	ctx := context.Background()

	_, err := m.Save(ctx, "s1", sampleState())
	require.NoError(t, err)

	cp, err := m.CreateCheckpoint(ctx, "s1", "before refactor")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(cp.ID, "ckpt_"))
	assert.Equal(t, "s1", cp.SessionID)

	result, err := m.RestoreCheckpoint(ctx, "s1", cp.ID)
	require.NoError(t, err)
	assert.Equal(t, TacticCheckpoint, result.Tactic)
	assert.Equal(t, "ls", result.State.TerminalState[0].Command)
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], cp.ID)
}

func TestRestoreCheckpointOwnership(t *testing.T) {
	m, _ := testManager(t)
	ctx := context.Background()

	_, err := m.Save(ctx, "s1", sampleState())
	require.NoError(t, err)
	cp, err := m.CreateCheckpoint(ctx, "s1", "snap")
	require.NoError(t, err)

	_, err = m.RestoreCheckpoint(ctx, "other", cp.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not belong to session")
}

func TestRecoverFallsBackToCheckpoint(t *testing.T) {
	m, store := testManager(t)
	ctx := context.Background()

	_, err := m.Save(ctx, "s1", sampleState())
	require.NoError(t, err)
	_, err = m.CreateCheckpoint(ctx, "s1", "snap")
	require.NoError(t, err)

	corrupt(t, store, "s1", `{"terminalState": garbage`)

	result, err := m.Recover(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, TacticCheckpoint, result.Tactic)
	assert.Equal(t, "ls", result.State.TerminalState[0].Command)
}

func TestRecoverFallsBackToPartial(t *testing.T) {
	m, store := testManager(t)
	ctx := context.Background()

	_, err := m.Save(ctx, "s1", sampleState())
	require.NoError(t, err)

	// No checkpoints exist, the blob is damaged, but a usable fragment
	// survives inside the noise.
	corrupt(t, store, "s1", `@@corrupt@@{"terminalState":[{"id":"t1","command":"ls"}],"browserTabs":[],"aiConversations":[],"openFiles":[{"path":"/a.go"}]}@@`)

	result, err := m.Recover(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, TacticPartial, result.Tactic)
	require.Len(t, result.State.TerminalState, 1)
	assert.Equal(t, "t1", result.State.TerminalState[0].ID)
	require.Len(t, result.Warnings, 1)
	assert.Equal(t, "Session data was partially recovered", result.Warnings[0])

	// The repaired state is persisted with a bumped version and a matching
	// checksum, so the next direct restore succeeds.
	rec, err := store.FindSession(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 2, rec.Version)

	direct, err := m.RestoreDirect(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "t1", direct.State.TerminalState[0].ID)
}

func TestRecoverStopsOnNonRecoverableError(t *testing.T) {
	m, _ := testManager(t)

	_, err := m.Recover(context.Background(), "missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRestorePartialNothingExtractable(t *testing.T) {
	m, store := testManager(t)
	ctx := context.Background()

	_, err := m.Save(ctx, "s1", sampleState())
	require.NoError(t, err)
	corrupt(t, store, "s1", "no json at all")

	_, err = m.RestorePartial(ctx, "s1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "could not extract any recoverable data")
}

func TestRestorePartialBlobSizeLimit(t *testing.T) {
	cfg := config.Default()
	cfg.Recovery.MaxBlobSize = 16

	store := NewMemoryStore()
	m := NewManager(store, cfg, nil, nil)
	ctx := context.Background()

	require.NoError(t, store.SaveSession(ctx, &Session{
		ID:             "s1",
		WorkspaceState: strings.Repeat("x", 64),
		Version:        1,
	}))

	_, err := m.RestorePartial(ctx, "s1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds recovery size limit")
}

func TestCanAttemptRecovery(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("session state checksum mismatch"), true},
		{errors.New("session state Deserialization failed"), true},
		{errors.New("JSON parsing failed: unexpected token"), true},
		{errors.New("session state structure validation failed"), true},
		{errors.New("payload is CORRUPTED beyond repair"), true},
		{errors.New("network timeout"), false},
		{errors.New("permission denied"), false},
		{ErrNotFound, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, CanAttemptRecovery(tc.err), "err=%v", tc.err)
	}
}

func TestResolveConflictsUsesConfiguredStrategy(t *testing.T) {
	m, _ := testManager(t)

	result, err := m.ResolveConflicts([]state.Candidate{
		{
			WorkspaceState: &state.WorkspaceState{TerminalState: []state.Terminal{{ID: "1"}}},
			LastSavedAt:    time.Now(),
			Source:         "primary",
		},
		{
			WorkspaceState: &state.WorkspaceState{TerminalState: []state.Terminal{{ID: "2"}}},
			LastSavedAt:    time.Now().Add(-time.Hour),
			Source:         "checkpoint",
		},
	})
	require.NoError(t, err)
	assert.Len(t, result.ResolvedState.TerminalState, 2)
}

func TestResolveConflictsHonorsConflictWindow(t *testing.T) {
	build := func() []state.Candidate {
		return []state.Candidate{
			{
				WorkspaceState: &state.WorkspaceState{
					TerminalState: []state.Terminal{{ID: "1", Command: "ls", Timestamp: "2024-03-01T12:00:00Z"}},
				},
				LastSavedAt: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
				Source:      "primary",
			},
			{
				WorkspaceState: &state.WorkspaceState{
					TerminalState: []state.Terminal{{ID: "1", Command: "ls", Timestamp: "2024-03-01T10:00:00Z"}},
				},
				LastSavedAt: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
				Source:      "checkpoint",
			},
		}
	}

	// Under the default 1h window the 2h drift is a conflict.
	m, _ := testManager(t)
	result, err := m.ResolveConflicts(build())
	require.NoError(t, err)
	assert.Len(t, result.Conflicts, 1)

	// Widening the configured window suppresses it.
	cfg := config.Default()
	cfg.Merge.ConflictWindow = 100 * time.Hour
	wide := NewManager(NewMemoryStore(), cfg, nil, nil)
	result, err = wide.ResolveConflicts(build())
	require.NoError(t, err)
	assert.Empty(t, result.Conflicts)
}

func TestResolveConflictsEmpty(t *testing.T) {
	m, _ := testManager(t)
	_, err := m.ResolveConflicts(nil)
	require.ErrorIs(t, err, merge.ErrNoCandidates)
}

// faultyStore wraps MemoryStore so session lookups can be made to fail
// with a transient error.
type faultyStore struct {
	*MemoryStore
	findErr error
}

func (s *faultyStore) FindSession(ctx context.Context, id string) (*Session, error) {
	if s.findErr != nil {
		return nil, s.findErr
	}
	return s.MemoryStore.FindSession(ctx, id)
}

func TestSavePropagatesStoreLookupFailure(t *testing.T) {
	store := &faultyStore{MemoryStore: NewMemoryStore()}
	m := NewManager(store, nil, nil, nil)
	ctx := context.Background()

	_, err := m.Save(ctx, "s1", sampleState())
	require.NoError(t, err)
	rec, err := m.Save(ctx, "s1", sampleState())
	require.NoError(t, err)
	require.Equal(t, 2, rec.Version)

	// A transient lookup failure must not be mistaken for a missing
	// session: Save fails instead of resetting the record to version 1.
	store.findErr = errors.New("transient store i/o failure")
	_, err = m.Save(ctx, "s1", sampleState())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load session s1")

	store.findErr = nil
	kept, err := store.FindSession(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 2, kept.Version)

	rec, err = m.Save(ctx, "s1", sampleState())
	require.NoError(t, err)
	assert.Equal(t, 3, rec.Version)
}

func TestMemoryStoreListCheckpointsNewestFirst(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	for i, id := range []string{"ckpt_a", "ckpt_b", "ckpt_c"} {
		require.NoError(t, store.SaveCheckpoint(ctx, &Checkpoint{
			ID:        id,
			SessionID: "s1",
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}
	require.NoError(t, store.SaveCheckpoint(ctx, &Checkpoint{
		ID:        "ckpt_other",
		SessionID: "s2",
		CreatedAt: base.Add(time.Hour),
	}))

	cps, err := store.ListCheckpoints(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, cps, 3)
	assert.Equal(t, "ckpt_c", cps[0].ID)
	assert.Equal(t, "ckpt_a", cps[2].ID)
}
