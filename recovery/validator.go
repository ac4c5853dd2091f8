package recovery

import (
	"fmt"

	"github.com/bytedance/sonic"

	"github.com/devworkspace/sessionstate/state"
)

// requiredArrays are the list fields a workspace state must carry.
var requiredArrays = []string{"terminalState", "browserTabs", "aiConversations", "openFiles"}

// ValidateBasicStructure checks a raw persisted blob for the required
// workspace state shape. It never fails outright: every problem maps to
// entries in Errors/Warnings plus the CanRecover verdict.
//
// Policy for partially present states: any subset of the four arrays is
// treated as recoverable (with an error noting the missing ones); only a
// state with none of them is unrecoverable.
func ValidateBasicStructure(raw string) state.ValidationResult {
	result := state.ValidationResult{
		Errors:   []string{},
		Warnings: []string{},
	}

	var decoded interface{}
	if err := sonic.UnmarshalString(raw, &decoded); err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("JSON parsing failed: %s", err.Error()))
		return result
	}

	obj, ok := decoded.(map[string]interface{})
	if !ok {
		result.Errors = append(result.Errors, "Invalid JSON structure")
		return result
	}

	present := 0
	for _, key := range requiredArrays {
		value, exists := obj[key]
		if !exists {
			continue
		}
		present++
		if _, isArray := value.([]interface{}); !isArray {
			result.Warnings = append(result.Warnings, fmt.Sprintf("%s should be an array", key))
		}
	}

	if present < len(requiredArrays) {
		result.Errors = append(result.Errors, "Missing required workspace state arrays")
	}
	result.CanRecover = present > 0

	return result
}

// IsWorkspaceStateLike reports whether value is a non-nil object carrying
// all four workspace state arrays (empty arrays qualify).
func IsWorkspaceStateLike(value interface{}) bool {
	obj, ok := value.(map[string]interface{})
	if !ok || obj == nil {
		return false
	}
	for _, key := range requiredArrays {
		if _, isArray := obj[key].([]interface{}); !isArray {
			return false
		}
	}
	return true
}
