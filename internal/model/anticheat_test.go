package model

import (
	"testing"
	"time"
)

func limit(n int) *int { return &n }

func ledgerOf(types ...AntiCheatEventType) AntiCheatLedger {
	base := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	l := make(AntiCheatLedger, len(types))
	for i, typ := range types {
		l[i] = AntiCheatEvent{ID: int64(i + 1), Type: typ, OccurredAt: base.Add(time.Duration(i) * time.Second)}
	}
	return l
}

func TestAntiCheatLedger_Sort(t *testing.T) {
	at := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	l := AntiCheatLedger{
		{ID: 3, OccurredAt: at.Add(time.Second)},
		{ID: 2, OccurredAt: at},
		{ID: 1, OccurredAt: at},
	}
	l.Sort()

	for i, want := range []int64{1, 2, 3} {
		if l[i].ID != want {
			t.Fatalf("position %d: expected id %d, got %d", i, want, l[i].ID)
		}
	}
}

func TestAntiCheatLedger_TabLimit(t *testing.T) {
	tests := []struct {
		name       string
		ledger     AntiCheatLedger
		policy     AntiCheatPolicy
		exceeds    bool
		suspicious bool
	}{
		{"no limit", ledgerOf(AntiCheatTabSwitch, AntiCheatTabSwitch), AntiCheatPolicy{}, false, false},
		{"below limit", ledgerOf(AntiCheatTabSwitch), AntiCheatPolicy{MaxTabSwitches: limit(3)}, false, false},
		{"at limit", ledgerOf(AntiCheatTabSwitch, AntiCheatTabSwitch, AntiCheatTabSwitch), AntiCheatPolicy{MaxTabSwitches: limit(3)}, false, true},
		{"over limit", ledgerOf(AntiCheatTabSwitch, AntiCheatTabSwitch, AntiCheatTabSwitch, AntiCheatTabSwitch), AntiCheatPolicy{MaxTabSwitches: limit(3)}, true, true},
		{"zero limit, clean", ledgerOf(AntiCheatBlur), AntiCheatPolicy{MaxTabSwitches: limit(0)}, false, false},
		{"zero limit, one switch", ledgerOf(AntiCheatTabSwitch), AntiCheatPolicy{MaxTabSwitches: limit(0)}, true, true},
		{"other types ignored", ledgerOf(AntiCheatBlur, AntiCheatRightClick), AntiCheatPolicy{MaxTabSwitches: limit(1)}, false, false},
		{"fullscreen exit", ledgerOf(AntiCheatFullscreenExit), AntiCheatPolicy{RequireFullscreen: true}, false, true},
		{"fullscreen not required", ledgerOf(AntiCheatFullscreenExit), AntiCheatPolicy{}, false, false},
		{"copy paste blocked", ledgerOf(AntiCheatCopyPaste), AntiCheatPolicy{BlockCopyPaste: true}, false, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.ledger.ExceedsTabLimit(tc.policy); got != tc.exceeds {
				t.Errorf("ExceedsTabLimit: expected %v, got %v", tc.exceeds, got)
			}
			if got := tc.ledger.Suspicious(tc.policy); got != tc.suspicious {
				t.Errorf("Suspicious: expected %v, got %v", tc.suspicious, got)
			}
		})
	}
}
