package domain

import (
	"reflect"
)

// ConversationDiff represents the changes between two snapshots of a conversation.
// It is designed to be serialized to JSON for partial updates on the client.
type ConversationDiff struct {
	// ID is always present to identify the target.
	ID string `json:"id"`

	State *ConversationState `json:"state,omitempty"`

	// Items contains line items that were added or whose quantity or price changed.
	Items []LineItem `json:"items,omitempty"`
	// RemovedItems lists product ids no longer present (only after a reset).
	RemovedItems []string `json:"removed_items,omitempty"`

	Labor  *LaborDelta `json:"labor,omitempty"`
	Markup *float64    `json:"markup_percent,omitempty"`

	// Transcript holds turns appended since the old snapshot.
	Transcript []Turn `json:"transcript,omitempty"`
}

// LaborDelta carries the labor fields after a change.
type LaborDelta struct {
	Hours *float64 `json:"hours,omitempty"`
	Rate  *float64 `json:"rate,omitempty"`
}

// Diff calculates the difference between prev and next.
// If prev is nil, it returns a diff representing the entire next snapshot.
// It returns nil when nothing changed.
func Diff(prev, next *Conversation) *ConversationDiff {
	if next == nil {
		return nil
	}
	diff := &ConversationDiff{ID: next.ID}

	if prev == nil || prev.State != next.State {
		st := next.State
		diff.State = &st
	}

	var oldCtx *Context
	if prev != nil {
		oldCtx = prev.Context
	}
	newCtx := next.Context
	if newCtx == nil {
		newCtx = NewContext()
	}
	if oldCtx == nil {
		oldCtx = NewContext()
	}

	diff.Items, diff.RemovedItems = diffItems(oldCtx.Items, newCtx.Items)

	if !floatEqual(oldCtx.LaborHours, newCtx.LaborHours) || !floatEqual(oldCtx.LaborRate, newCtx.LaborRate) {
		diff.Labor = &LaborDelta{Hours: cloneFloat(newCtx.LaborHours), Rate: cloneFloat(newCtx.LaborRate)}
	}
	if !floatEqual(oldCtx.MarkupPercent, newCtx.MarkupPercent) {
		diff.Markup = cloneFloat(newCtx.MarkupPercent)
	}

	diff.Transcript = diffTranscript(oldCtx.Transcript, newCtx.Transcript)

	if diff.IsEmpty() {
		return nil
	}
	return diff
}

func diffItems(old, next []LineItem) (changed []LineItem, removed []string) {
	byID := make(map[string]LineItem, len(old))
	for _, it := range old {
		byID[it.ProductID] = it
	}
	seen := make(map[string]bool, len(next))
	for _, it := range next {
		seen[it.ProductID] = true
		if prev, ok := byID[it.ProductID]; !ok || !reflect.DeepEqual(prev, it) {
			changed = append(changed, it)
		}
	}
	for _, it := range old {
		if !seen[it.ProductID] {
			removed = append(removed, it.ProductID)
		}
	}
	return changed, removed
}

// diffTranscript assumes append-only behavior. A shorter transcript means the
// conversation was reset, in which case the whole new transcript is sent.
func diffTranscript(old, next []Turn) []Turn {
	if len(next) > len(old) {
		return append([]Turn(nil), next[len(old):]...)
	}
	if len(next) < len(old) {
		return append([]Turn(nil), next...)
	}
	return nil
}

func floatEqual(a, b *float64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// IsEmpty checks if the diff contains any actionable changes.
func (d *ConversationDiff) IsEmpty() bool {
	return d.State == nil &&
		len(d.Items) == 0 &&
		len(d.RemovedItems) == 0 &&
		d.Labor == nil &&
		d.Markup == nil &&
		len(d.Transcript) == 0
}
