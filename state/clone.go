package state

// Clone returns a deep copy of the state. Nested maps and message lists
// are copied so the result shares no mutable memory with the receiver.
func (s *WorkspaceState) Clone() *WorkspaceState {
	if s == nil {
		return &WorkspaceState{}
	}

	out := &WorkspaceState{
		TerminalState:   make([]Terminal, len(s.TerminalState)),
		BrowserTabs:     make([]BrowserTab, len(s.BrowserTabs)),
		OpenFiles:       make([]OpenFile, len(s.OpenFiles)),
		AIConversations: make([]Conversation, 0, len(s.AIConversations)),
		WorkspaceConfig: CloneMap(s.WorkspaceConfig),
		Metadata:        CloneMap(s.Metadata),
	}

	copy(out.TerminalState, s.TerminalState)
	copy(out.BrowserTabs, s.BrowserTabs)
	copy(out.OpenFiles, s.OpenFiles)
	for _, c := range s.AIConversations {
		out.AIConversations = append(out.AIConversations, c.Clone())
	}

	return out
}

// Normalize replaces nil list and map fields with empty ones so downstream
// code never sees a null array.
func (s *WorkspaceState) Normalize() {
	if s.TerminalState == nil {
		s.TerminalState = []Terminal{}
	}
	if s.BrowserTabs == nil {
		s.BrowserTabs = []BrowserTab{}
	}
	if s.AIConversations == nil {
		s.AIConversations = []Conversation{}
	}
	if s.OpenFiles == nil {
		s.OpenFiles = []OpenFile{}
	}
	if s.WorkspaceConfig == nil {
		s.WorkspaceConfig = map[string]interface{}{}
	}
	if s.Metadata == nil {
		s.Metadata = map[string]interface{}{}
	}
}

// Clone returns a deep copy of the conversation, including its messages.
func (c Conversation) Clone() Conversation {
	out := c
	if c.Messages != nil {
		out.Messages = make([]map[string]interface{}, 0, len(c.Messages))
		for _, m := range c.Messages {
			out.Messages = append(out.Messages, CloneMap(m))
		}
	}
	return out
}

// CloneMap deep-copies a JSON-shaped map. Nil input yields nil.
func CloneMap(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return nil
	}
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = CloneValue(v)
	}
	return out
}

// CloneValue deep-copies a JSON-shaped value (maps, slices, scalars).
func CloneValue(v interface{}) interface{} {
	switch typed := v.(type) {
	case map[string]interface{}:
		return CloneMap(typed)
	case []interface{}:
		out := make([]interface{}, len(typed))
		for i, item := range typed {
			out[i] = CloneValue(item)
		}
		return out
	default:
		return v
	}
}
