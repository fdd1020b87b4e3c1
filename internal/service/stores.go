package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-attempts/internal/model"
)

// ExamCatalog provides a consistent exam + question bank snapshot.
type ExamCatalog interface {
	GetSnapshot(ctx context.Context, examID uuid.UUID) (*model.ExamSnapshot, error)
}

// AttemptStore persists attempt sessions and their final responses.
type AttemptStore interface {
	Create(ctx context.Context, a *model.AttemptSession) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.AttemptSession, error)
	ListByExamAndUser(ctx context.Context, examID uuid.UUID, userID int) ([]model.AttemptSession, error)
	UpdateStatus(ctx context.Context, a *model.AttemptSession, status model.AttemptStatus) error
	Complete(ctx context.Context, a *model.AttemptSession, responses []model.AttemptResponse) error
	ListResponses(ctx context.Context, attemptID uuid.UUID) ([]model.AttemptResponse, error)
}

// AntiCheatStore is the append-only anti-cheat ledger.
type AntiCheatStore interface {
	// Record appends e while holding the attempt row, so no terminal
	// transition can interleave. Closed attempts accept nothing. When abandon
	// reports true for the resulting ledger, the attempt moves to ABANDONED
	// in the same unit.
	Record(ctx context.Context, e *model.AntiCheatEvent, abandon func(model.AntiCheatLedger) bool) (*model.LedgerWrite, error)
	ListByAttempt(ctx context.Context, attemptID uuid.UUID) (model.AntiCheatLedger, error)
}

// DraftStore holds autosaved answers until submission.
type DraftStore interface {
	Save(ctx context.Context, attemptID uuid.UUID, d model.DraftResponse, ttl time.Duration) error
	List(ctx context.Context, attemptID uuid.UUID) ([]model.DraftResponse, error)
	Clear(ctx context.Context, attemptID uuid.UUID) error
}

// LateCodeStore persists late-access codes. WithLockedCode serialises
// consumption of a single code.
type LateCodeStore interface {
	Create(ctx context.Context, c *model.LateAccessCode) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.LateAccessCode, error)
	FindByCode(ctx context.Context, code string) (*model.LateAccessCode, error)
	ListByExam(ctx context.Context, examID uuid.UUID) ([]model.LateAccessCode, error)
	WithLockedCode(ctx context.Context, code string, fn func(c *model.LateAccessCode) error) error
	UpdateStatus(ctx context.Context, id uuid.UUID, status model.LateCodeStatus) error
}

// LateCodeValidator consumes a late-access code on behalf of a student.
type LateCodeValidator interface {
	Validate(ctx context.Context, code string, examID uuid.UUID, userID int) (*model.LateAccessCode, error)
}

// EventPublisher accepts domain events. Publish must not block the caller
// and must not report failures back to it.
type EventPublisher interface {
	Publish(evt model.AttemptEvent)
}
