package state

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCloneIsDeep(t *testing.T) {
	original := &WorkspaceState{
		TerminalState: []Terminal{{ID: "t1", Command: "ls", IsActive: true}},
		BrowserTabs:   []BrowserTab{{URL: "https://example.com", Title: "Example"}},
		AIConversations: []Conversation{{
			ID:        "c1",
			Messages:  []map[string]interface{}{{"role": "user", "content": "hi"}},
			Timestamp: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		}},
		OpenFiles:       []OpenFile{{Path: "/tmp/a.go", HasUnsavedChanges: true}},
		WorkspaceConfig: map[string]interface{}{"theme": "dark", "nested": map[string]interface{}{"k": "v"}},
		Metadata:        map[string]interface{}{"createdAt": "2024-03-01T00:00:00Z"},
	}

	clone := original.Clone()
	require.Equal(t, original, clone)

	// Mutating the clone must not touch the original.
	clone.TerminalState[0].Command = "pwd"
	clone.AIConversations[0].Messages[0]["content"] = "changed"
	clone.WorkspaceConfig["nested"].(map[string]interface{})["k"] = "changed"

	assert.Equal(t, "ls", original.TerminalState[0].Command)
	assert.Equal(t, "hi", original.AIConversations[0].Messages[0]["content"])
	assert.Equal(t, "v", original.WorkspaceConfig["nested"].(map[string]interface{})["k"])
}

func TestCloneNil(t *testing.T) {
	var s *WorkspaceState
	clone := s.Clone()
	require.NotNil(t, clone)
}

func TestNormalize(t *testing.T) {
	s := &WorkspaceState{}
	s.Normalize()

	assert.NotNil(t, s.TerminalState)
	assert.NotNil(t, s.BrowserTabs)
	assert.NotNil(t, s.AIConversations)
	assert.NotNil(t, s.OpenFiles)
	assert.NotNil(t, s.WorkspaceConfig)
	assert.NotNil(t, s.Metadata)
	assert.Empty(t, s.TerminalState)
}

func TestIdentityKeys(t *testing.T) {
	assert.Equal(t, "t1", Terminal{ID: "t1"}.Key())
	assert.Equal(t, "/a/b", OpenFile{Path: "/a/b"}.Key())
	assert.Equal(t, "c1", Conversation{ID: "c1"}.Key())

	// Tabs with the same URL but different titles are distinct identities.
	a := BrowserTab{URL: "https://x.dev", Title: "one"}
	b := BrowserTab{URL: "https://x.dev", Title: "two"}
	assert.NotEqual(t, a.Key(), b.Key())
}
