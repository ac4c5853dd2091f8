// Package merge reconciles divergent copies of a workspace state into one
// consistent result under a selectable strategy, producing the merged
// state plus a conflict log and warnings.
package merge

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/bytedance/sonic"

	"github.com/devworkspace/sessionstate/recovery"
	"github.com/devworkspace/sessionstate/state"
)

// Strategy selects how divergent candidates are reconciled.
type Strategy string

const (
	// StrategyLatest seeds from the most recently saved candidate and folds
	// older unique items in.
	StrategyLatest Strategy = "latest"
	// StrategyMostComplete lets the highest-scoring candidate lead instead
	// of the most recent one.
	StrategyMostComplete Strategy = "most-complete"
	// StrategyManual returns the oldest candidate untouched and only logs
	// conflicts for a human to adjudicate.
	StrategyManual Strategy = "manual"
)

// ErrNoCandidates is returned when Resolve is called without input.
var ErrNoCandidates = errors.New("no session states provided for merge resolution")

// ResolutionError wraps an unexpected failure inside the merge pipeline.
// No partially built state escapes alongside it.
type ResolutionError struct {
	Cause error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("merge resolution failed: %v", e.Cause)
}

func (e *ResolutionError) Unwrap() error { return e.Cause }

// Result is the outcome of a merge: a freshly built resolved state, the
// conflicts encountered, and human-readable warnings.
type Result struct {
	ResolvedState *state.WorkspaceState `json:"resolvedState"`
	Conflicts     []state.Conflict      `json:"conflicts"`
	Warnings      []string              `json:"warnings"`
}

// Resolve reconciles N candidate states into one under the given strategy
// (empty strategy means latest). Candidates are never mutated; the result
// is built copy-on-write. Element merges use the coarse timestamp tier.
func Resolve(candidates []state.Candidate, strategy Strategy) (*Result, error) {
	return ResolveWithThreshold(candidates, strategy, CoarseThreshold)
}

// ResolveWithThreshold is Resolve with a caller-supplied timestamp
// divergence window for element-level conflict detection. A non-positive
// threshold falls back to the coarse tier.
func ResolveWithThreshold(candidates []state.Candidate, strategy Strategy, threshold time.Duration) (result *Result, err error) {
	if len(candidates) == 0 {
		return nil, ErrNoCandidates
	}
	if strategy == "" {
		strategy = StrategyLatest
	}
	if threshold <= 0 {
		threshold = CoarseThreshold
	}

	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = &ResolutionError{Cause: fmt.Errorf("%v", r)}
		}
	}()

	if len(candidates) == 1 {
		only := candidates[0]
		resolved := only.WorkspaceState.Clone()
		resolved.Normalize()
		return &Result{
			ResolvedState: resolved,
			Conflicts:     []state.Conflict{},
			Warnings:      []string{fmt.Sprintf("Single session state from %s, no merge needed", only.Source)},
		}, nil
	}

	sorted := sortByRecency(candidates)

	switch strategy {
	case StrategyLatest:
		return resolveLatest(sorted, threshold), nil
	case StrategyMostComplete:
		return resolveMostComplete(sorted, threshold), nil
	case StrategyManual:
		return resolveManual(sorted), nil
	default:
		return nil, &ResolutionError{Cause: fmt.Errorf("unknown merge strategy %q", strategy)}
	}
}

// sortByRecency returns a copy ordered most recent first. The sort is
// stable so equal timestamps keep caller order and results stay
// deterministic.
func sortByRecency(candidates []state.Candidate) []state.Candidate {
	sorted := make([]state.Candidate, len(candidates))
	copy(sorted, candidates)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].LastSavedAt.After(sorted[j].LastSavedAt)
	})
	return sorted
}

// resolveLatest seeds from the leading candidate and folds every other
// candidate in element by element. Conflicting duplicates keep the
// resolved side and are recorded; unique items are appended.
func resolveLatest(sorted []state.Candidate, threshold time.Duration) *Result {
	resolved := sorted[0].WorkspaceState.Clone()
	resolved.Normalize()

	conflicts := []state.Conflict{}
	warnings := []string{}

	for _, older := range sorted[1:] {
		src := older.WorkspaceState
		if src == nil {
			continue
		}

		var cs []state.Conflict
		var ws []string

		resolved.TerminalState, cs, ws = mergeItems(
			"terminalState", "id", resolved.TerminalState, src.TerminalState, older.Source, threshold,
			state.Terminal.Key, func(t state.Terminal) state.Terminal { return t })
		conflicts, warnings = append(conflicts, cs...), append(warnings, ws...)

		resolved.BrowserTabs, cs, ws = mergeItems(
			"browserTabs", "composite", resolved.BrowserTabs, src.BrowserTabs, older.Source, threshold,
			state.BrowserTab.Key, func(t state.BrowserTab) state.BrowserTab { return t })
		conflicts, warnings = append(conflicts, cs...), append(warnings, ws...)

		resolved.AIConversations, cs, ws = mergeItems(
			"aiConversations", "id", resolved.AIConversations, src.AIConversations, older.Source, threshold,
			state.Conversation.Key, state.Conversation.Clone)
		conflicts, warnings = append(conflicts, cs...), append(warnings, ws...)

		resolved.OpenFiles, cs, ws = mergeItems(
			"openFiles", "path", resolved.OpenFiles, src.OpenFiles, older.Source, threshold,
			state.OpenFile.Key, func(f state.OpenFile) state.OpenFile { return f })
		conflicts, warnings = append(conflicts, cs...), append(warnings, ws...)

		resolved.WorkspaceConfig, cs = mergeObjects("workspaceConfig", resolved.WorkspaceConfig, src.WorkspaceConfig, older.Source)
		conflicts = append(conflicts, cs...)

		resolved.Metadata, cs = mergeObjects("metadata", resolved.Metadata, src.Metadata, older.Source)
		conflicts = append(conflicts, cs...)
	}

	return &Result{ResolvedState: resolved, Conflicts: conflicts, Warnings: warnings}
}

// resolveMostComplete scores every candidate, reorders so the richest one
// leads (ties broken by recency), then delegates to the latest algorithm.
func resolveMostComplete(sorted []state.Candidate, threshold time.Duration) *Result {
	now := time.Now()

	scores := make(map[int]int, len(sorted))
	reordered := make([]state.Candidate, len(sorted))
	order := make([]int, len(sorted))
	for i := range sorted {
		scores[i] = recovery.CompletenessAt(sorted[i].WorkspaceState, now)
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		// sorted is already most-recent-first, so the stable sort keeps
		// recency as the tie-break.
		return scores[order[a]] > scores[order[b]]
	})
	for i, idx := range order {
		reordered[i] = sorted[idx]
	}

	result := resolveLatest(reordered, threshold)
	lead := fmt.Sprintf("Using most complete state from %s (score: %d)", reordered[0].Source, scores[order[0]])
	result.Warnings = append([]string{lead}, result.Warnings...)
	return result
}

// resolveManual keeps the oldest candidate as the base and only logs what
// disagrees with it; nothing is resolved automatically.
func resolveManual(sorted []state.Candidate) *Result {
	oldest := sorted[len(sorted)-1]
	base := oldest.WorkspaceState.Clone()
	base.Normalize()

	conflicts := []state.Conflict{}
	for _, other := range sorted[:len(sorted)-1] {
		src := other.WorkspaceState
		if src == nil {
			continue
		}

		conflicts = append(conflicts, lengthConflicts(base, src, other.Source)...)
		conflicts = append(conflicts, objectDiffs("workspaceConfig", base.WorkspaceConfig, src.WorkspaceConfig, other.Source)...)
	}

	return &Result{
		ResolvedState: base,
		Conflicts:     conflicts,
		Warnings:      []string{"Manual merge mode - conflicts detected but require manual resolution"},
	}
}

// mergeItems folds incoming items into the resolved list by identity key.
// It returns updated values instead of mutating accumulators so callers
// can compose the results without hidden aliasing.
func mergeItems[T any](
	field, keyLabel string,
	resolved, incoming []T,
	source string,
	threshold time.Duration,
	key func(T) string,
	clone func(T) T,
) ([]T, []state.Conflict, []string) {
	out := resolved
	var conflicts []state.Conflict
	var warnings []string

	index := make(map[string]int, len(out))
	for i, item := range out {
		index[key(item)] = i
	}

	for _, item := range incoming {
		k := key(item)
		existingIdx, exists := index[k]
		if !exists {
			out = append(out, clone(item))
			index[k] = len(out) - 1
			continue
		}

		existing := out[existingIdx]
		if IsConflict(itemDoc(existing), itemDoc(item), threshold) {
			conflicts = append(conflicts, state.Conflict{
				Field:      field + "." + keyLabel,
				Values:     [2]interface{}{existing, item},
				Resolution: existing,
				Source:     source,
			})
			warnings = append(warnings, fmt.Sprintf("Conflict in %s resolved in favor of newer state from %s", field, source))
		}
	}

	return out, conflicts, warnings
}

// mergeObjects merges incoming keys into the resolved map: existing values
// win, genuine differences are recorded as conflicts, and nested objects
// are merged recursively.
func mergeObjects(prefix string, resolved, incoming map[string]interface{}, source string) (map[string]interface{}, []state.Conflict) {
	out := make(map[string]interface{}, len(resolved))
	for k, v := range resolved {
		out[k] = v
	}

	var conflicts []state.Conflict
	for _, k := range sortedKeys(incoming) {
		inc := incoming[k]
		path := prefix + "." + k

		cur, exists := out[k]
		if !exists {
			out[k] = state.CloneValue(inc)
			continue
		}

		curMap, curIsMap := cur.(map[string]interface{})
		incMap, incIsMap := inc.(map[string]interface{})
		if curIsMap && incIsMap {
			merged, nested := mergeObjects(path, curMap, incMap, source)
			out[k] = merged
			conflicts = append(conflicts, nested...)
			continue
		}

		if !equalValues(cur, inc) {
			conflicts = append(conflicts, state.Conflict{
				Field:      path,
				Values:     [2]interface{}{cur, inc},
				Resolution: cur,
				Source:     source,
			})
		}
	}

	return out, conflicts
}

// lengthConflicts reports per-field element count mismatches between the
// manual base and a newer candidate.
func lengthConflicts(base, other *state.WorkspaceState, source string) []state.Conflict {
	fields := []struct {
		name        string
		base, other int
	}{
		{"terminalState", len(base.TerminalState), len(other.TerminalState)},
		{"browserTabs", len(base.BrowserTabs), len(other.BrowserTabs)},
		{"aiConversations", len(base.AIConversations), len(other.AIConversations)},
		{"openFiles", len(base.OpenFiles), len(other.OpenFiles)},
	}

	var conflicts []state.Conflict
	for _, f := range fields {
		if f.base != f.other {
			conflicts = append(conflicts, state.Conflict{
				Field:  f.name,
				Values: [2]interface{}{f.base, f.other},
				Source: source,
			})
		}
	}
	return conflicts
}

// objectDiffs reports key-by-key differences without resolving them.
func objectDiffs(prefix string, base, other map[string]interface{}, source string) []state.Conflict {
	var conflicts []state.Conflict
	for _, k := range sortedKeys(other) {
		cur, exists := base[k]
		if exists && equalValues(cur, other[k]) {
			continue
		}
		conflicts = append(conflicts, state.Conflict{
			Field:  prefix + "." + k,
			Values: [2]interface{}{cur, other[k]},
			Source: source,
		})
	}
	return conflicts
}

// itemDoc projects a typed item onto its JSON document form so the
// conflict detector can inspect fields generically.
func itemDoc(item interface{}) map[string]interface{} {
	data, err := sonic.Marshal(item)
	if err != nil {
		return nil
	}
	var doc map[string]interface{}
	if err := sonic.Unmarshal(data, &doc); err != nil {
		return nil
	}
	return doc
}

// equalValues compares JSON-shaped values through their serialized form,
// sidestepping numeric type drift between decoded documents. The std
// config sorts map keys so the comparison is order-independent.
func equalValues(a, b interface{}) bool {
	ab, errA := sonic.ConfigStd.Marshal(a)
	bb, errB := sonic.ConfigStd.Marshal(b)
	if errA != nil || errB != nil {
		return false
	}
	return string(ab) == string(bb)
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
