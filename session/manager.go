// Package session orchestrates workspace state persistence and the
// escalating recovery workflow: direct restoration, checkpoint
// restoration, then best-effort partial recovery.
package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"go.uber.org/zap"

	"github.com/devworkspace/sessionstate/config"
	"github.com/devworkspace/sessionstate/hash"
	"github.com/devworkspace/sessionstate/id"
	"github.com/devworkspace/sessionstate/logging"
	"github.com/devworkspace/sessionstate/merge"
	"github.com/devworkspace/sessionstate/metrics"
	"github.com/devworkspace/sessionstate/recovery"
	"github.com/devworkspace/sessionstate/state"
)

// Recovery tactics, in escalation order.
const (
	TacticDirect     = "direct"
	TacticCheckpoint = "checkpoint"
	TacticPartial    = "partial"
)

// recoverableHints mark error classes worth attempting partial recovery
// for. Anything else (network, permission, not-found) fails fast.
var recoverableHints = []string{"checksum", "deserialization", "parsing", "structure", "corrupted"}

// Manager drives session persistence and recovery over an opaque store.
type Manager struct {
	store   Store
	hasher  *hash.Hasher
	cfg     *config.Config
	log     *logging.Logger
	metrics *metrics.Metrics
}

// NewManager creates a session manager. cfg, log and m may be nil, in
// which case defaults (or no-ops) are used.
func NewManager(store Store, cfg *config.Config, log *logging.Logger, m *metrics.Metrics) *Manager {
	if cfg == nil {
		cfg = config.Default()
	}
	if log == nil {
		log = logging.Nop()
	}
	return &Manager{
		store:   store,
		hasher:  hash.DefaultHasher(),
		cfg:     cfg,
		log:     log,
		metrics: m,
	}
}

// RestoreResult is the outcome of a recovery attempt.
type RestoreResult struct {
	State      *state.WorkspaceState  `json:"state"`
	Validation state.ValidationResult `json:"validation"`
	Tactic     string                 `json:"tactic"`
	Warnings   []string               `json:"warnings"`
}

// RestoreDirect attempts tactic 1: load the live session record, verify
// its checksum, and deserialize the stored blob.
func (m *Manager) RestoreDirect(ctx context.Context, sessionID string) (*RestoreResult, error) {
	m.countAttempt(TacticDirect)

	rec, err := m.store.FindSession(ctx, sessionID)
	if err != nil {
		m.countFailure(TacticDirect)
		return nil, fmt.Errorf("failed to load session %s: %w", sessionID, err)
	}

	st, validation, err := m.verifyAndDecode(rec.WorkspaceState, rec.StateChecksum)
	if err != nil {
		m.countFailure(TacticDirect)
		return nil, err
	}

	m.countSuccess(TacticDirect)
	return &RestoreResult{
		State:      st,
		Validation: validation,
		Tactic:     TacticDirect,
		Warnings:   []string{},
	}, nil
}

// RestoreCheckpoint attempts tactic 2: restore from a named checkpoint,
// verifying first that it belongs to the requested session.
func (m *Manager) RestoreCheckpoint(ctx context.Context, sessionID, checkpointID string) (*RestoreResult, error) {
	m.countAttempt(TacticCheckpoint)

	cp, err := m.store.FindCheckpoint(ctx, checkpointID)
	if err != nil {
		m.countFailure(TacticCheckpoint)
		return nil, fmt.Errorf("failed to load checkpoint %s: %w", checkpointID, err)
	}
	if cp.SessionID != sessionID {
		m.countFailure(TacticCheckpoint)
		return nil, fmt.Errorf("checkpoint %s does not belong to session %s", checkpointID, sessionID)
	}

	st, validation, err := m.verifyAndDecode(cp.WorkspaceState, cp.StateChecksum)
	if err != nil {
		m.countFailure(TacticCheckpoint)
		return nil, err
	}

	m.countSuccess(TacticCheckpoint)
	return &RestoreResult{
		State:      st,
		Validation: validation,
		Tactic:     TacticCheckpoint,
		Warnings:   []string{fmt.Sprintf("Session restored from checkpoint %s", cp.ID)},
	}, nil
}

// RestorePartial attempts tactic 3: scan the corrupted blob for usable
// fragments, repair them into a complete state, and persist the repaired
// state with an incremented version.
func (m *Manager) RestorePartial(ctx context.Context, sessionID string) (*RestoreResult, error) {
	m.countAttempt(TacticPartial)

	rec, err := m.store.FindSession(ctx, sessionID)
	if err != nil {
		m.countFailure(TacticPartial)
		return nil, fmt.Errorf("failed to load session %s: %w", sessionID, err)
	}

	if max := m.cfg.Recovery.MaxBlobSize; max > 0 && len(rec.WorkspaceState) > max {
		m.countFailure(TacticPartial)
		return nil, fmt.Errorf("corrupted session payload exceeds recovery size limit (%d bytes)", max)
	}

	partial := recovery.ExtractPartialState(rec.WorkspaceState)
	if partial == nil {
		m.countFailure(TacticPartial)
		return nil, errors.New("could not extract any recoverable data from corrupted session")
	}

	repaired, err := recovery.Repair(partial)
	if err != nil {
		m.countFailure(TacticPartial)
		return nil, err
	}

	serialized, err := sonic.MarshalString(repaired.State)
	if err != nil {
		m.countFailure(TacticPartial)
		return nil, fmt.Errorf("failed to serialize repaired state: %w", err)
	}

	rec.WorkspaceState = serialized
	rec.StateChecksum = repaired.Checksum
	rec.Version++
	rec.UpdatedAt = time.Now()
	if err := m.store.SaveSession(ctx, rec); err != nil {
		m.countFailure(TacticPartial)
		return nil, fmt.Errorf("failed to persist repaired session %s: %w", sessionID, err)
	}

	if m.metrics != nil {
		m.metrics.Completeness.Observe(float64(recovery.Completeness(repaired.State)))
	}
	m.countSuccess(TacticPartial)
	m.log.Info("session partially recovered",
		zap.String("session_id", sessionID),
		zap.Int("version", rec.Version))

	return &RestoreResult{
		State:      repaired.State,
		Validation: repaired.Validation,
		Tactic:     TacticPartial,
		Warnings:   []string{"Session data was partially recovered"},
	}, nil
}

// Recover runs the three tactics strictly in order, short-circuiting on
// the first success. Partial recovery is only attempted for error classes
// CanAttemptRecovery accepts.
func (m *Manager) Recover(ctx context.Context, sessionID string) (*RestoreResult, error) {
	attempt := id.NewAttemptID()

	result, directErr := m.RestoreDirect(ctx, sessionID)
	if directErr == nil {
		return result, nil
	}
	m.log.Warn("direct restoration failed",
		zap.String("attempt_id", attempt),
		zap.String("session_id", sessionID),
		zap.Error(directErr))

	if cps, err := m.store.ListCheckpoints(ctx, sessionID); err == nil {
		sort.SliceStable(cps, func(i, j int) bool {
			return cps[i].CreatedAt.After(cps[j].CreatedAt)
		})
		for _, cp := range cps {
			if result, err := m.RestoreCheckpoint(ctx, sessionID, cp.ID); err == nil {
				return result, nil
			}
		}
	}

	if !CanAttemptRecovery(directErr) {
		return nil, directErr
	}
	return m.RestorePartial(ctx, sessionID)
}

// Save serializes a workspace state, checksums it, and persists it under
// the session id with an incremented version.
func (m *Manager) Save(ctx context.Context, sessionID string, st *state.WorkspaceState) (*Session, error) {
	if st == nil {
		return nil, errors.New("no workspace state provided")
	}

	clone := st.Clone()
	clone.Normalize()

	serialized, err := sonic.MarshalString(clone)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize workspace state: %w", err)
	}
	checksum, err := m.hasher.HashCanonicalJSON([]byte(serialized))
	if err != nil {
		return nil, fmt.Errorf("failed to checksum workspace state: %w", err)
	}

	existing, err := m.store.FindSession(ctx, sessionID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("failed to load session %s: %w", sessionID, err)
	}

	rec := &Session{
		ID:      sessionID,
		Version: 1,
	}
	if err == nil {
		rec = existing
		rec.Version++
	}
	if rec.ID == "" {
		rec.ID = string(id.NewSessionID())
	}

	rec.WorkspaceState = serialized
	rec.StateChecksum = checksum
	rec.UpdatedAt = time.Now()

	if err := m.store.SaveSession(ctx, rec); err != nil {
		return nil, fmt.Errorf("failed to persist session %s: %w", rec.ID, err)
	}
	return rec, nil
}

// CreateCheckpoint snapshots the session's current persisted state under
// a new checkpoint id.
func (m *Manager) CreateCheckpoint(ctx context.Context, sessionID, name string) (*Checkpoint, error) {
	rec, err := m.store.FindSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load session %s: %w", sessionID, err)
	}

	cp := &Checkpoint{
		ID:             string(id.NewCheckpointID()),
		SessionID:      sessionID,
		Name:           name,
		WorkspaceState: rec.WorkspaceState,
		StateChecksum:  rec.StateChecksum,
		CreatedAt:      time.Now(),
	}
	if err := m.store.SaveCheckpoint(ctx, cp); err != nil {
		return nil, fmt.Errorf("failed to persist checkpoint %s: %w", cp.ID, err)
	}
	return cp, nil
}

// ResolveConflicts merges candidate states under the configured default
// strategy and conflict window, and records merge metrics.
func (m *Manager) ResolveConflicts(candidates []state.Candidate) (*merge.Result, error) {
	strategy := merge.Strategy(m.cfg.Merge.DefaultStrategy)

	result, err := merge.ResolveWithThreshold(candidates, strategy, m.cfg.Merge.ConflictWindow)
	if err != nil {
		return nil, err
	}

	if m.metrics != nil {
		m.metrics.MergeResolutions.WithLabelValues(string(strategy)).Inc()
		m.metrics.MergeConflicts.Add(float64(len(result.Conflicts)))
	}
	if len(result.Conflicts) > 0 {
		m.log.Info("merge resolved with conflicts",
			zap.String("strategy", string(strategy)),
			zap.Int("conflicts", len(result.Conflicts)))
	}
	return result, nil
}

// CanAttemptRecovery reports whether an error represents a data-quality
// failure worth escalating to partial recovery. The match is a
// case-insensitive scan of the error message.
func CanAttemptRecovery(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, hint := range recoverableHints {
		if strings.Contains(msg, hint) {
			return true
		}
	}
	return false
}

// verifyAndDecode checks blob integrity against the stored checksum, then
// validates and deserializes it into a normalized workspace state.
func (m *Manager) verifyAndDecode(blob, checksum string) (*state.WorkspaceState, state.ValidationResult, error) {
	computed, err := m.hasher.HashCanonicalJSON([]byte(blob))
	if err != nil {
		return nil, state.ValidationResult{}, fmt.Errorf("session state parsing failed: %w", err)
	}
	if computed != checksum {
		return nil, state.ValidationResult{}, fmt.Errorf("session state checksum mismatch (expected %s, got %s)", checksum, computed)
	}

	validation := recovery.ValidateBasicStructure(blob)
	if !validation.CanRecover {
		return nil, validation, fmt.Errorf("session state structure validation failed: %s", strings.Join(validation.Errors, "; "))
	}

	var st state.WorkspaceState
	if err := sonic.UnmarshalString(blob, &st); err != nil {
		return nil, validation, fmt.Errorf("session state deserialization failed: %w", err)
	}
	st.Normalize()

	return &st, validation, nil
}

func (m *Manager) countAttempt(tactic string) {
	if m.metrics != nil {
		m.metrics.RecoveryAttempts.WithLabelValues(tactic).Inc()
	}
}

func (m *Manager) countSuccess(tactic string) {
	if m.metrics != nil {
		m.metrics.RecoverySuccesses.WithLabelValues(tactic).Inc()
	}
}

func (m *Manager) countFailure(tactic string) {
	if m.metrics != nil {
		m.metrics.RecoveryFailures.WithLabelValues(tactic).Inc()
	}
}
