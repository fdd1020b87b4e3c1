package model

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/google/uuid"
)

// AntiCheatEventType enumerates suspicious client-side events.
type AntiCheatEventType string

const (
	AntiCheatTabSwitch      AntiCheatEventType = "TAB_SWITCH"
	AntiCheatFullscreenExit AntiCheatEventType = "FULLSCREEN_EXIT"
	AntiCheatCopyPaste      AntiCheatEventType = "COPY_PASTE"
	AntiCheatRightClick     AntiCheatEventType = "RIGHT_CLICK"
	AntiCheatBlur           AntiCheatEventType = "BLUR"
)

// LedgerWrite is the outcome of recording an event against an attempt.
// Status and Version describe the attempt row after the write. A terminal
// Status with Recorded false means the attempt was already closed.
type LedgerWrite struct {
	Recorded  bool
	Abandoned bool
	Ledger    AntiCheatLedger
	Status    AttemptStatus
	Version   int
}

// AntiCheatEvent is one append-only ledger entry. EventID is the client's
// idempotency key; retried deliveries with the same key are ignored.
type AntiCheatEvent struct {
	ID         int64              `json:"id"`
	AttemptID  uuid.UUID          `json:"attempt_id"`
	EventID    string             `json:"event_id"`
	Type       AntiCheatEventType `json:"type"`
	Metadata   json.RawMessage    `json:"metadata,omitempty"`
	OccurredAt time.Time          `json:"occurred_at"`
	ReceivedAt time.Time          `json:"received_at"`
}

// AntiCheatLedger is the ordered event history of one attempt.
type AntiCheatLedger []AntiCheatEvent

// Sort orders the ledger by occurrence time, then by ledger id.
func (l AntiCheatLedger) Sort() {
	sort.SliceStable(l, func(i, j int) bool {
		if !l[i].OccurredAt.Equal(l[j].OccurredAt) {
			return l[i].OccurredAt.Before(l[j].OccurredAt)
		}
		return l[i].ID < l[j].ID
	})
}

// Count returns the number of events of type t.
func (l AntiCheatLedger) Count(t AntiCheatEventType) int {
	n := 0
	for _, e := range l {
		if e.Type == t {
			n++
		}
	}
	return n
}

// TabSwitches is the tab-switch counter, derived from the ledger.
func (l AntiCheatLedger) TabSwitches() int {
	return l.Count(AntiCheatTabSwitch)
}

// ExceedsTabLimit reports whether the tab-switch count strictly exceeds the
// policy limit. An unset limit is never exceeded.
func (l AntiCheatLedger) ExceedsTabLimit(p AntiCheatPolicy) bool {
	return p.MaxTabSwitches != nil && l.TabSwitches() > *p.MaxTabSwitches
}

// Suspicious reports whether the ledger shows activity that violates an
// enabled policy rule.
func (l AntiCheatLedger) Suspicious(p AntiCheatPolicy) bool {
	if p.MaxTabSwitches != nil && l.TabSwitches() >= *p.MaxTabSwitches && l.TabSwitches() > 0 {
		return true
	}
	if p.RequireFullscreen && l.Count(AntiCheatFullscreenExit) > 0 {
		return true
	}
	if p.BlockCopyPaste && l.Count(AntiCheatCopyPaste) > 0 {
		return true
	}
	return false
}

// RecordAntiCheatRequest is the payload for reporting an anti-cheat event.
type RecordAntiCheatRequest struct {
	EventID    string             `json:"event_id" binding:"omitempty,max=64"`
	Type       AntiCheatEventType `json:"type" binding:"required,oneof=TAB_SWITCH FULLSCREEN_EXIT COPY_PASTE RIGHT_CLICK BLUR"`
	Metadata   json.RawMessage    `json:"metadata" binding:"omitempty"`
	OccurredAt *time.Time         `json:"occurred_at" binding:"omitempty"`
}
