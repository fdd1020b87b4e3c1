package model

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
)

// LateCodeAlphabet omits the visually confusable characters 0, O, 1 and I.
const LateCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// NormalizeLateCode trims and upper-cases user input so codes can be typed
// in any case.
func NormalizeLateCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// LateCodeStatus enumerates late-access code states.
type LateCodeStatus string

const (
	LateCodeActive    LateCodeStatus = "ACTIVE"
	LateCodeExhausted LateCodeStatus = "EXHAUSTED"
	LateCodeExpired   LateCodeStatus = "EXPIRED"
	LateCodeRevoked   LateCodeStatus = "REVOKED"
)

// LateCodeUsage is one entry of a code's append-only usage history.
type LateCodeUsage struct {
	UserID int       `json:"user_id"`
	UsedAt time.Time `json:"used_at"`
}

// LateAccessCode grants access to an exam after its window has closed.
type LateAccessCode struct {
	ID             uuid.UUID       `json:"id"`
	Code           string          `json:"code"`
	ExamID         uuid.UUID       `json:"exam_id"`
	GeneratedBy    int             `json:"generated_by"`
	AssignedUserID *int            `json:"assigned_user_id,omitempty"`
	MaxUsages      int             `json:"max_usages"`
	Status         LateCodeStatus  `json:"status"`
	ExpiresAt      time.Time       `json:"expires_at"`
	UsageHistory   []LateCodeUsage `json:"usage_history"`
	CreatedAt      time.Time       `json:"created_at"`
}

// UsagesRemaining is derived from the usage history, never stored.
func (c *LateAccessCode) UsagesRemaining() int {
	n := c.MaxUsages - len(c.UsageHistory)
	if n < 0 {
		return 0
	}
	return n
}

// UsedBy reports whether userID already appears in the usage history.
func (c *LateAccessCode) UsedBy(userID int) bool {
	for _, u := range c.UsageHistory {
		if u.UserID == userID {
			return true
		}
	}
	return false
}

// RecordUsage appends a usage and flips the status to EXHAUSTED once the
// history reaches MaxUsages.
func (c *LateAccessCode) RecordUsage(userID int, at time.Time) {
	c.UsageHistory = append(c.UsageHistory, LateCodeUsage{UserID: userID, UsedAt: at})
	if c.UsagesRemaining() == 0 {
		c.Status = LateCodeExhausted
	}
}

// EffectiveStatus reports EXPIRED for an active code past its expiry.
func (c *LateAccessCode) EffectiveStatus(now time.Time) LateCodeStatus {
	if c.Status == LateCodeActive && now.After(c.ExpiresAt) {
		return LateCodeExpired
	}
	return c.Status
}

// MarshalJSON adds the derived usages_remaining field.
func (c LateAccessCode) MarshalJSON() ([]byte, error) {
	type alias LateAccessCode
	return json.Marshal(struct {
		alias
		UsagesRemaining int `json:"usages_remaining"`
	}{
		alias:           alias(c),
		UsagesRemaining: c.UsagesRemaining(),
	})
}

// GenerateLateCodeRequest is the payload for issuing a late-access code.
type GenerateLateCodeRequest struct {
	AssignedUserID *int `json:"assigned_user_id" binding:"omitempty,min=1"`
	MaxUsages      int  `json:"max_usages" binding:"omitempty,min=1,max=1000"`
	ExpiresInHours int  `json:"expires_in_hours" binding:"omitempty,min=1,max=8760"`
}

// CheckLateCodeRequest is the payload for pre-checking a late-access code.
type CheckLateCodeRequest struct {
	Code string `json:"code" binding:"required,latecode"`
}
