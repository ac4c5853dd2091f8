package recovery

import (
	"fmt"
	"time"

	"github.com/bytedance/sonic"

	"github.com/devworkspace/sessionstate/hash"
	"github.com/devworkspace/sessionstate/state"
)

// RepairResult bundles a repaired state with its integrity checksum and
// a fresh structural validation.
type RepairResult struct {
	State      *state.WorkspaceState  `json:"state"`
	Checksum   string                 `json:"checksum"`
	Validation state.ValidationResult `json:"validation"`
}

// Repair normalizes a partial or extracted object into a complete,
// well-typed workspace state. Array entries that are not objects or lack
// a non-empty identity key are dropped silently; absent fields default to
// empty. Only a checksum failure is propagated to the caller.
func Repair(partial map[string]interface{}) (*RepairResult, error) {
	return repairAt(partial, hash.DefaultHasher(), time.Now())
}

func repairAt(partial map[string]interface{}, hasher *hash.Hasher, now time.Time) (*RepairResult, error) {
	repaired := &state.WorkspaceState{
		TerminalState:   repairTerminals(fieldItems(partial, "terminalState", "id")),
		BrowserTabs:     repairTabs(fieldItems(partial, "browserTabs", "url")),
		AIConversations: repairConversations(fieldItems(partial, "aiConversations", "id")),
		OpenFiles:       repairFiles(fieldItems(partial, "openFiles", "path")),
		WorkspaceConfig: objectField(partial, "workspaceConfig"),
		Metadata:        repairMetadata(partial, now),
	}

	serialized, err := sonic.Marshal(repaired)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize repaired state: %w", err)
	}

	checksum, err := hasher.HashCanonicalJSON(serialized)
	if err != nil {
		return nil, fmt.Errorf("failed to checksum repaired state: %w", err)
	}

	return &RepairResult{
		State:      repaired,
		Checksum:   checksum,
		Validation: ValidateBasicStructure(string(serialized)),
	}, nil
}

// fieldItems returns the object entries of an array field that carry a
// non-empty string under the field's natural identity key.
func fieldItems(partial map[string]interface{}, field, identityKey string) []map[string]interface{} {
	if partial == nil {
		return nil
	}
	raw, ok := partial[field].([]interface{})
	if !ok {
		return nil
	}

	items := make([]map[string]interface{}, 0, len(raw))
	for _, entry := range raw {
		doc, ok := entry.(map[string]interface{})
		if !ok || doc == nil {
			continue
		}
		if key, _ := doc[identityKey].(string); key == "" {
			continue
		}
		items = append(items, doc)
	}
	return items
}

func repairTerminals(items []map[string]interface{}) []state.Terminal {
	out := make([]state.Terminal, 0, len(items))
	for _, doc := range items {
		out = append(out, state.Terminal{
			ID:        stringField(doc, "id"),
			Command:   stringField(doc, "command"),
			IsActive:  boolField(doc, "isActive"),
			Timestamp: stringField(doc, "timestamp"),
		})
	}
	return out
}

func repairTabs(items []map[string]interface{}) []state.BrowserTab {
	out := make([]state.BrowserTab, 0, len(items))
	for _, doc := range items {
		out = append(out, state.BrowserTab{
			URL:       stringField(doc, "url"),
			Title:     stringField(doc, "title"),
			IsActive:  boolField(doc, "isActive"),
			Timestamp: stringField(doc, "timestamp"),
		})
	}
	return out
}

func repairConversations(items []map[string]interface{}) []state.Conversation {
	out := make([]state.Conversation, 0, len(items))
	for _, doc := range items {
		conv := state.Conversation{
			ID:       stringField(doc, "id"),
			Messages: []map[string]interface{}{},
		}
		if raw, ok := doc["messages"].([]interface{}); ok {
			for _, entry := range raw {
				if msg, ok := entry.(map[string]interface{}); ok && msg != nil {
					conv.Messages = append(conv.Messages, state.CloneMap(msg))
				}
			}
		}
		if ts, ok := parseTimestamp(doc["timestamp"]); ok {
			conv.Timestamp = ts
		}
		out = append(out, conv)
	}
	return out
}

func repairFiles(items []map[string]interface{}) []state.OpenFile {
	out := make([]state.OpenFile, 0, len(items))
	for _, doc := range items {
		out = append(out, state.OpenFile{
			Path:              stringField(doc, "path"),
			HasUnsavedChanges: boolField(doc, "hasUnsavedChanges"),
		})
	}
	return out
}

// repairMetadata preserves an object metadata field exactly; anything
// else is replaced by fresh created/updated timestamps.
func repairMetadata(partial map[string]interface{}, now time.Time) map[string]interface{} {
	if partial != nil {
		if meta, ok := partial["metadata"].(map[string]interface{}); ok && meta != nil {
			return state.CloneMap(meta)
		}
	}
	return map[string]interface{}{
		"createdAt": now.UTC().Format(time.RFC3339Nano),
		"updatedAt": now.UTC().Format(time.RFC3339Nano),
	}
}

func objectField(partial map[string]interface{}, field string) map[string]interface{} {
	if partial != nil {
		if obj, ok := partial[field].(map[string]interface{}); ok && obj != nil {
			return state.CloneMap(obj)
		}
	}
	return map[string]interface{}{}
}

func stringField(doc map[string]interface{}, key string) string {
	s, _ := doc[key].(string)
	return s
}

func boolField(doc map[string]interface{}, key string) bool {
	b, _ := doc[key].(bool)
	return b
}

// parseTimestamp coerces the timestamp representations seen in persisted
// blobs: RFC 3339 strings, epoch milliseconds, or native time values.
func parseTimestamp(v interface{}) (time.Time, bool) {
	switch typed := v.(type) {
	case time.Time:
		return typed, true
	case string:
		if ts, err := time.Parse(time.RFC3339Nano, typed); err == nil {
			return ts, true
		}
	case float64:
		return time.UnixMilli(int64(typed)).UTC(), true
	}
	return time.Time{}, false
}
