package service

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-attempts/internal/model"
)

// Actor is the staff member performing an exam-scoped operation. Inspectors
// may act on any exam; others only on exams they authored.
type Actor struct {
	UserID    int
	Inspector bool
}

var errNotExamStaff = errors.New("actor is neither author nor inspector")

// authorizeExamStaff loads the exam and checks actor may manage it.
func authorizeExamStaff(ctx context.Context, exams ExamCatalog, examID uuid.UUID, actor Actor) (*model.ExamSnapshot, error) {
	snap, err := exams.GetSnapshot(ctx, examID)
	if err != nil {
		return nil, err
	}
	if actor.Inspector || snap.Exam.AuthorID == actor.UserID {
		return snap, nil
	}
	return nil, errNotExamStaff
}
