// Package state defines the workspace state model shared by the recovery
// and merge pipelines.
//
// A WorkspaceState is the serializable snapshot of a user's editing
// session: terminals, browser tabs, AI conversation history, open files,
// plus free-form config and metadata maps. Instances flowing into the
// recovery and merge engines are treated as read-only; every transform
// returns a freshly built copy.
package state

import "time"

// WorkspaceState is the unit being recovered and merged.
type WorkspaceState struct {
	TerminalState   []Terminal             `json:"terminalState"`
	BrowserTabs     []BrowserTab           `json:"browserTabs"`
	AIConversations []Conversation         `json:"aiConversations"`
	OpenFiles       []OpenFile             `json:"openFiles"`
	WorkspaceConfig map[string]interface{} `json:"workspaceConfig"`
	Metadata        map[string]interface{} `json:"metadata"`
}

// Terminal captures one terminal pane. Identity key: ID.
type Terminal struct {
	ID        string `json:"id"`
	Command   string `json:"command"`
	IsActive  bool   `json:"isActive"`
	Timestamp string `json:"timestamp,omitempty"`
}

// BrowserTab captures one open tab. Identity key: composite (URL, Title);
// conflict comparison for "same tab" uses URL alone.
type BrowserTab struct {
	URL       string `json:"url"`
	Title     string `json:"title"`
	IsActive  bool   `json:"isActive"`
	Timestamp string `json:"timestamp,omitempty"`
}

// Conversation captures one AI chat thread. Identity key: ID.
type Conversation struct {
	ID        string                   `json:"id"`
	Messages  []map[string]interface{} `json:"messages"`
	Timestamp time.Time                `json:"timestamp"`
}

// OpenFile captures one editor buffer. Identity key: Path.
type OpenFile struct {
	Path              string `json:"path"`
	HasUnsavedChanges bool   `json:"hasUnsavedChanges"`
}

// Candidate is one version of the state offered to the merge engine,
// tagged with when it was persisted and where it came from.
type Candidate struct {
	WorkspaceState *WorkspaceState `json:"workspaceState"`
	LastSavedAt    time.Time       `json:"lastSavedAt"`
	Source         string          `json:"source"`
}

// Conflict records a disagreement between two candidate values for the
// same logical item or field. Field is a dotted path such as
// "terminalState.id" or "workspaceConfig.theme".
type Conflict struct {
	Field      string         `json:"field"`
	Values     [2]interface{} `json:"values"`
	Resolution interface{}    `json:"resolution"`
	Source     string         `json:"source"`
}

// ValidationResult describes the outcome of a structural check.
type ValidationResult struct {
	Errors     []string `json:"errors"`
	Warnings   []string `json:"warnings"`
	CanRecover bool     `json:"canRecover"`
}

// Key returns the terminal's identity key.
func (t Terminal) Key() string { return t.ID }

// Key returns the tab's composite identity key.
func (b BrowserTab) Key() string { return b.URL + "\x00" + b.Title }

// Key returns the conversation's identity key.
func (c Conversation) Key() string { return c.ID }

// Key returns the file's identity key.
func (f OpenFile) Key() string { return f.Path }
