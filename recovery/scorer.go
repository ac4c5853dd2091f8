package recovery

import (
	"time"

	"github.com/devworkspace/sessionstate/state"
)

// Scoring weights for state completeness. The absolute numbers are
// meaningless; only the relative ranking of candidates matters.
const (
	terminalWeight          = 10
	activeTerminalBonus     = 50
	tabWeight               = 5
	activeTabBonus          = 30
	conversationWeight      = 15
	recentConversationBonus = 10
	fileWeight              = 8
	unsavedFileBonus        = 25
	configKeyWeight         = 3
	metadataKeyWeight       = 2

	recentConversationWindow = 24 * time.Hour
)

// Completeness assigns a heuristic richness score to a workspace state,
// used to rank candidates under the most-complete merge strategy.
// Missing or nil fields contribute zero.
func Completeness(s *state.WorkspaceState) int {
	return CompletenessAt(s, time.Now())
}

// CompletenessAt scores a state against a fixed evaluation time, which
// anchors the conversation recency bonus. Pure and side-effect-free.
func CompletenessAt(s *state.WorkspaceState, now time.Time) int {
	if s == nil {
		return 0
	}

	score := 0

	score += terminalWeight * len(s.TerminalState)
	for _, t := range s.TerminalState {
		if t.IsActive {
			score += activeTerminalBonus
			break
		}
	}

	score += tabWeight * len(s.BrowserTabs)
	for _, tab := range s.BrowserTabs {
		if tab.IsActive {
			score += activeTabBonus
			break
		}
	}

	score += conversationWeight * len(s.AIConversations)
	for _, conv := range s.AIConversations {
		if conv.Timestamp.IsZero() {
			continue
		}
		if age := now.Sub(conv.Timestamp); age >= 0 && age <= recentConversationWindow {
			score += recentConversationBonus
			break
		}
	}

	score += fileWeight * len(s.OpenFiles)
	for _, f := range s.OpenFiles {
		if f.HasUnsavedChanges {
			score += unsavedFileBonus
			break
		}
	}

	score += configKeyWeight * len(s.WorkspaceConfig)
	score += metadataKeyWeight * len(s.Metadata)

	return score
}
