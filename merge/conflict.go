package merge

import (
	"reflect"
	"time"
)

// Timestamp sensitivity tiers for conflict detection. Whole-state
// comparisons use the coarse tier; element-level array merges that want
// stricter consistency can opt into the fine tier.
const (
	CoarseThreshold = time.Hour
	FineThreshold   = time.Minute
)

// IsConflict decides whether two same-identity items genuinely disagree.
// Rules are evaluated in precedence order, first hit wins:
//
//  1. both carry "content" and the values differ
//  2. both carry "isActive" and the values differ
//  3. both carry parseable "timestamp"s further apart than threshold
//  4. both carry "url" and "title", same url, differing title
//
// Missing or nil fields count as absent; the function never panics.
func IsConflict(existing, incoming map[string]interface{}, threshold time.Duration) bool {
	if existing == nil || incoming == nil {
		return false
	}

	if a, b, both := fieldPair(existing, incoming, "content"); both && !reflect.DeepEqual(a, b) {
		return true
	}

	if a, b, both := fieldPair(existing, incoming, "isActive"); both && !reflect.DeepEqual(a, b) {
		return true
	}

	if a, aOK := parseInstant(existing["timestamp"]); aOK {
		if b, bOK := parseInstant(incoming["timestamp"]); bOK {
			diff := a.Sub(b)
			if diff < 0 {
				diff = -diff
			}
			if diff > threshold {
				return true
			}
		}
	}

	// Browser-tab rule: same page, diverged titles.
	aURL, aHasURL := existing["url"].(string)
	bURL, bHasURL := incoming["url"].(string)
	if aHasURL && bHasURL && aURL == bURL {
		aTitle, aHasTitle := existing["title"]
		bTitle, bHasTitle := incoming["title"]
		if aHasTitle && bHasTitle && !reflect.DeepEqual(aTitle, bTitle) {
			return true
		}
	}

	return false
}

func fieldPair(a, b map[string]interface{}, key string) (interface{}, interface{}, bool) {
	av, aOK := a[key]
	bv, bOK := b[key]
	return av, bv, aOK && bOK
}

// parseInstant coerces a timestamp field to an instant. Accepts RFC 3339
// strings, epoch milliseconds, and native time values.
func parseInstant(v interface{}) (time.Time, bool) {
	switch typed := v.(type) {
	case time.Time:
		if typed.IsZero() {
			return time.Time{}, false
		}
		return typed, true
	case string:
		if ts, err := time.Parse(time.RFC3339Nano, typed); err == nil && !ts.IsZero() {
			return ts, true
		}
	case float64:
		return time.UnixMilli(int64(typed)).UTC(), true
	case int64:
		return time.UnixMilli(typed).UTC(), true
	}
	return time.Time{}, false
}
