package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-attempts/internal/model"
	"github.com/stemsi/exstem-attempts/internal/repository"
	"github.com/stemsi/exstem-attempts/internal/scoring"
	"golang.org/x/crypto/bcrypt"
)

const resumeTokenBytes = 32

// AttemptSettings tunes the attempt lifecycle.
type AttemptSettings struct {
	BcryptCost  int
	SubmitGrace time.Duration
	DraftTTL    time.Duration
}

// AttemptService owns the attempt state machine: start, resume, autosave,
// anti-cheat ingestion, lazy expiry and submission.
type AttemptService struct {
	attempts  AttemptStore
	ledger    AntiCheatStore
	drafts    DraftStore
	exams     ExamCatalog
	lateCodes LateCodeValidator
	events    EventPublisher
	settings  AttemptSettings
	now       func() time.Time
	log       zerolog.Logger
}

// NewAttemptService creates a new AttemptService.
func NewAttemptService(
	attempts AttemptStore,
	ledger AntiCheatStore,
	drafts DraftStore,
	exams ExamCatalog,
	lateCodes LateCodeValidator,
	events EventPublisher,
	settings AttemptSettings,
	log zerolog.Logger,
) *AttemptService {
	if settings.BcryptCost == 0 {
		settings.BcryptCost = bcrypt.DefaultCost
	}
	return &AttemptService{
		attempts:  attempts,
		ledger:    ledger,
		drafts:    drafts,
		exams:     exams,
		lateCodes: lateCodes,
		events:    events,
		settings:  settings,
		now:       time.Now,
		log:       log.With().Str("component", "attempt_service").Logger(),
	}
}

// StartResult is returned when an attempt starts. ResumeToken is shown once.
type StartResult struct {
	AttemptID   uuid.UUID           `json:"attempt_id"`
	ResumeToken string              `json:"resume_token"`
	Config      model.AttemptConfig `json:"config"`
	StartedAt   time.Time           `json:"started_at"`
	ExpiresAt   time.Time           `json:"expires_at"`
	LateAccess  bool                `json:"late_access"`
}

// ResumeResult is the session plus the answers recorded so far.
type ResumeResult struct {
	Attempt   *model.AttemptSession `json:"attempt"`
	Responses []model.DraftResponse `json:"responses"`
}

// AttemptDetail is an owner's view of an attempt.
type AttemptDetail struct {
	Attempt   *model.AttemptSession   `json:"attempt"`
	Responses []model.AttemptResponse `json:"responses,omitempty"`
}

// AntiCheatResult reports the ledger state after an event was ingested.
type AntiCheatResult struct {
	Recorded    bool                `json:"recorded"`
	TabSwitches int                 `json:"tab_switches"`
	Suspicious  bool                `json:"suspicious_activity_detected"`
	Status      model.AttemptStatus `json:"status"`
}

// SubmitResult is the outcome of a successful submission.
type SubmitResult struct {
	Attempt    *model.AttemptSession   `json:"attempt"`
	Evaluation scoring.Result          `json:"evaluation"`
	Responses  []model.AttemptResponse `json:"responses"`
}

// ─── Start ──────────────────────────────────────────────────────────────────

// StartAttempt runs the eligibility checks and creates a STARTED session.
// lateCode is only consulted (and consumed) when the exam window has closed.
func (s *AttemptService) StartAttempt(ctx context.Context, examID uuid.UUID, userID int, lateCode string) (*StartResult, error) {
	snap, err := s.exams.GetSnapshot(ctx, examID)
	if err != nil {
		return nil, err
	}
	exam := &snap.Exam

	if exam.Status != model.ExamStatusPublished {
		return nil, ErrExamNotPublished
	}

	now := s.now()
	if exam.StartTime != nil && now.Before(*exam.StartTime) {
		return nil, ErrExamNotOpen
	}
	late := exam.EndTime != nil && now.After(*exam.EndTime)
	if late && strings.TrimSpace(lateCode) == "" {
		return nil, ErrExamClosed
	}

	sessions, err := s.attempts.ListByExamAndUser(ctx, examID, userID)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	if err := s.checkHistory(ctx, exam, sessions, now); err != nil {
		return nil, err
	}

	var codeID *uuid.UUID
	if late {
		code, err := s.lateCodes.Validate(ctx, lateCode, examID, userID)
		if err != nil {
			s.log.Info().Err(err).Int("user_id", userID).Str("exam_id", examID.String()).Msg("Late start rejected")
			return nil, err
		}
		codeID = &code.ID
	}

	token, err := newResumeToken()
	if err != nil {
		return nil, fmt.Errorf("generate resume token: %w", err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(token), s.settings.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash resume token: %w", err)
	}

	expiresAt := now.Add(exam.Duration())
	if !late && exam.EndTime != nil && exam.EndTime.Before(expiresAt) {
		expiresAt = *exam.EndTime
	}

	a := &model.AttemptSession{
		ExamID:           examID,
		UserID:           userID,
		Status:           model.AttemptStatusStarted,
		ResumeTokenHash:  string(hash),
		LateAccessCodeID: codeID,
		StartedAt:        now,
		ExpiresAt:        expiresAt,
	}
	if err := s.attempts.Create(ctx, a); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			// A concurrent start won the one-STARTED-per-exam constraint.
			return nil, s.activeAttemptError(ctx, examID, userID)
		}
		return nil, fmt.Errorf("create attempt: %w", err)
	}

	s.log.Info().
		Str("attempt_id", a.ID.String()).
		Str("exam_id", examID.String()).
		Int("user_id", userID).
		Bool("late", late).
		Msg("Attempt started")
	s.publish(model.EventAttemptStarted, a, map[string]any{"late_access": late})

	return &StartResult{
		AttemptID:   a.ID,
		ResumeToken: token,
		Config: model.AttemptConfig{
			Title:           exam.Title,
			DurationMinutes: exam.DurationMinutes,
			PassingScore:    exam.PassingScore,
			EvaluationType:  exam.EvaluationType,
			AntiCheat:       exam.AntiCheat,
			QuestionCount:   len(snap.Questions),
		},
		StartedAt:  a.StartedAt,
		ExpiresAt:  a.ExpiresAt,
		LateAccess: late,
	}, nil
}

// checkHistory applies the in-progress, attempt-limit and cool-down rules to
// the student's previous sessions. Stale STARTED sessions are expired first
// so they count as neither active nor used.
func (s *AttemptService) checkHistory(ctx context.Context, exam *model.Exam, sessions []model.AttemptSession, now time.Time) error {
	used := 0
	var lastCompleted *time.Time

	for i := range sessions {
		a := &sessions[i]
		if err := s.expireIfDue(ctx, a); err != nil {
			return err
		}

		switch a.Status {
		case model.AttemptStatusStarted:
			return &InProgressError{AttemptID: a.ID}
		case model.AttemptStatusCompleted:
			used++
			finished := a.UpdatedAt
			if a.SubmittedAt != nil {
				finished = *a.SubmittedAt
			}
			if lastCompleted == nil || finished.After(*lastCompleted) {
				lastCompleted = &finished
			}
		}
	}

	if exam.MaxAttempts > 0 && used >= exam.MaxAttempts {
		return ErrAttemptLimitReached
	}

	if exam.TimeBetweenAttempts > 0 && lastCompleted != nil {
		readyAt := lastCompleted.Add(time.Duration(exam.TimeBetweenAttempts) * time.Hour)
		if wait := readyAt.Sub(now); wait > 0 {
			return &CooldownError{Remaining: wait}
		}
	}
	return nil
}

func (s *AttemptService) activeAttemptError(ctx context.Context, examID uuid.UUID, userID int) error {
	sessions, err := s.attempts.ListByExamAndUser(ctx, examID, userID)
	if err != nil {
		return fmt.Errorf("list attempts: %w", err)
	}
	for _, a := range sessions {
		if a.Status == model.AttemptStatusStarted {
			return &InProgressError{AttemptID: a.ID}
		}
	}
	return ErrAttemptInProgress
}

func newResumeToken() (string, error) {
	buf := make([]byte, resumeTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// ─── Reads ──────────────────────────────────────────────────────────────────

// ResumeAttempt verifies the resume token and returns the in-progress session
// with every answer saved so far.
func (s *AttemptService) ResumeAttempt(ctx context.Context, attemptID uuid.UUID, userID int, resumeToken string) (*ResumeResult, error) {
	a, snap, err := s.loadOwned(ctx, attemptID, userID)
	if err != nil {
		return nil, err
	}

	if bcrypt.CompareHashAndPassword([]byte(a.ResumeTokenHash), []byte(resumeToken)) != nil {
		s.log.Warn().
			Str("attempt_id", attemptID.String()).
			Int("user_id", userID).
			Msg("Resume with invalid token, possible session hijack")
		return nil, ErrInvalidResumeToken
	}

	if err := s.expireIfDue(ctx, a); err != nil {
		return nil, err
	}
	if a.Status != model.AttemptStatusStarted {
		return nil, notInProgress(a)
	}

	drafts, err := s.drafts.List(ctx, a.ID)
	if err != nil {
		return nil, fmt.Errorf("list drafts: %w", err)
	}
	if drafts == nil {
		drafts = []model.DraftResponse{}
	}
	sort.SliceStable(drafts, func(i, j int) bool {
		if !drafts[i].SavedAt.Equal(drafts[j].SavedAt) {
			return drafts[i].SavedAt.Before(drafts[j].SavedAt)
		}
		return drafts[i].QuestionID.String() < drafts[j].QuestionID.String()
	})

	if err := s.attachLedger(ctx, a, &snap.Exam); err != nil {
		return nil, err
	}
	return &ResumeResult{Attempt: a, Responses: drafts}, nil
}

// GetAttempt returns the owner's view of an attempt, applying lazy expiry.
func (s *AttemptService) GetAttempt(ctx context.Context, attemptID uuid.UUID, userID int) (*AttemptDetail, error) {
	a, snap, err := s.loadOwned(ctx, attemptID, userID)
	if err != nil {
		return nil, err
	}
	if err := s.expireIfDue(ctx, a); err != nil {
		return nil, err
	}
	if err := s.attachLedger(ctx, a, &snap.Exam); err != nil {
		return nil, err
	}

	detail := &AttemptDetail{Attempt: a}
	if a.Status == model.AttemptStatusCompleted {
		detail.Responses, err = s.attempts.ListResponses(ctx, a.ID)
		if err != nil {
			return nil, fmt.Errorf("list responses: %w", err)
		}
	}
	return detail, nil
}

// ─── Autosave ───────────────────────────────────────────────────────────────

// SaveDraftResponse stores the latest answer to one question. Last write wins.
func (s *AttemptService) SaveDraftResponse(ctx context.Context, attemptID uuid.UUID, userID int, questionID uuid.UUID, req model.SaveDraftRequest) (*model.DraftResponse, error) {
	a, snap, err := s.loadOwned(ctx, attemptID, userID)
	if err != nil {
		return nil, err
	}
	if err := s.expireIfDue(ctx, a); err != nil {
		return nil, err
	}
	if a.Status != model.AttemptStatusStarted {
		return nil, notInProgress(a)
	}
	if _, ok := snap.QuestionByID()[questionID]; !ok {
		return nil, ErrUnknownQuestion
	}

	d := model.DraftResponse{
		QuestionID: questionID,
		Answer:     req.Answer,
		TimeSpent:  req.TimeSpent,
		SavedAt:    s.now(),
	}
	if err := s.drafts.Save(ctx, a.ID, d, s.settings.DraftTTL); err != nil {
		return nil, fmt.Errorf("save draft: %w", err)
	}
	return &d, nil
}

// ─── Anti-cheat ─────────────────────────────────────────────────────────────

// RecordAntiCheatEvent appends an event to the ledger and abandons the
// attempt once the tab-switch count exceeds the exam's limit. Redelivery of
// an event id already in the ledger is a no-op.
func (s *AttemptService) RecordAntiCheatEvent(ctx context.Context, attemptID uuid.UUID, userID int, req model.RecordAntiCheatRequest) (*AntiCheatResult, error) {
	a, snap, err := s.loadOwned(ctx, attemptID, userID)
	if err != nil {
		return nil, err
	}
	if err := s.expireIfDue(ctx, a); err != nil {
		return nil, err
	}
	if a.Status != model.AttemptStatusStarted {
		return nil, notInProgress(a)
	}

	evt := &model.AntiCheatEvent{
		AttemptID:  a.ID,
		EventID:    strings.TrimSpace(req.EventID),
		Type:       req.Type,
		Metadata:   req.Metadata,
		OccurredAt: s.now(),
	}
	if evt.EventID == "" {
		evt.EventID = uuid.NewString()
	}
	if req.OccurredAt != nil && !req.OccurredAt.IsZero() {
		evt.OccurredAt = *req.OccurredAt
	}

	policy := snap.Exam.AntiCheat
	w, err := s.ledger.Record(ctx, evt, func(l model.AntiCheatLedger) bool {
		return l.ExceedsTabLimit(policy)
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrAttemptNotFound
		}
		return nil, fmt.Errorf("record anti-cheat event: %w", err)
	}
	a.Status, a.Version = w.Status, w.Version

	if w.Abandoned {
		s.log.Warn().
			Str("attempt_id", a.ID.String()).
			Int("user_id", userID).
			Int("tab_switches", w.Ledger.TabSwitches()).
			Msg("Attempt abandoned: tab-switch limit exceeded")
		s.publish(model.EventAttemptAbandoned, a, map[string]any{"tab_switches": w.Ledger.TabSwitches()})
		return nil, ErrAttemptAbandoned
	}
	// Closed between the load above and the locked write.
	if a.Status != model.AttemptStatusStarted {
		return nil, notInProgress(a)
	}

	ledger := w.Ledger
	ledger.Sort()
	return &AntiCheatResult{
		Recorded:    w.Recorded,
		TabSwitches: ledger.TabSwitches(),
		Suspicious:  ledger.Suspicious(policy),
		Status:      a.Status,
	}, nil
}

// ─── Submit ─────────────────────────────────────────────────────────────────

// SubmitAttempt grades the attempt against one snapshot of the question bank
// and commits the responses together with the COMPLETED transition.
func (s *AttemptService) SubmitAttempt(ctx context.Context, attemptID uuid.UUID, userID int, req model.SubmitAttemptRequest) (*SubmitResult, error) {
	a, snap, err := s.loadOwned(ctx, attemptID, userID)
	if err != nil {
		return nil, err
	}
	if err := s.expireIfDue(ctx, a); err != nil {
		return nil, err
	}
	if a.Status != model.AttemptStatusStarted {
		return nil, notInProgress(a)
	}

	drafts, err := s.drafts.List(ctx, a.ID)
	if err != nil {
		return nil, fmt.Errorf("list drafts: %w", err)
	}
	responses, err := mergeResponses(snap, drafts, req.Responses)
	if err != nil {
		return nil, err
	}

	exam := &snap.Exam
	base := scoring.ForType(exam.EvaluationType).Evaluate(exam, responses, snap.Questions)

	names := req.Decorators
	if len(names) == 0 {
		names = exam.Decorators
	}
	chain, err := scoring.NewChain(names...)
	if err != nil {
		s.log.Warn().Err(err).Str("exam_id", exam.ID.String()).Msg("Invalid decorator configuration, grading without decorators")
		chain, _ = scoring.NewChain()
	}

	ledger, err := s.ledger.ListByAttempt(ctx, a.ID)
	cheats := len(ledger)
	if err != nil {
		s.log.Warn().Err(err).Str("attempt_id", a.ID.String()).Msg("Load ledger for grading")
		cheats = scoring.AntiCheatUnknown
	}

	now := s.now()
	spent := now.Sub(a.StartedAt)
	result, decErrs := chain.Apply(scoring.Submission{
		Exam:            exam,
		Questions:       snap.Questions,
		Responses:       responses,
		TimeSpent:       spent,
		AntiCheatEvents: cheats,
	}, base)
	for _, e := range decErrs {
		s.log.Warn().Err(e).Str("attempt_id", a.ID.String()).Msg("Score decorator failed, skipped")
	}

	attachGrading(responses, result)

	evaluation, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("marshal evaluation: %w", err)
	}
	seconds := int(spent.Seconds())
	a.SubmittedAt = &now
	a.Score = &result.Score
	a.MaxScore = &result.MaxScore
	a.Percentage = &result.Percentage
	a.Passed = &result.Passed
	a.TimeSpentSeconds = &seconds
	a.Evaluation = evaluation

	if err := s.attempts.Complete(ctx, a, responses); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrDuplicateResponse
		}
		return nil, s.resolveConflict(ctx, a, err)
	}

	if err := s.drafts.Clear(ctx, a.ID); err != nil {
		s.log.Warn().Err(err).Str("attempt_id", a.ID.String()).Msg("Failed to clear drafts")
	}

	s.log.Info().
		Str("attempt_id", a.ID.String()).
		Int("user_id", userID).
		Float64("score", result.Score).
		Float64("percentage", result.Percentage).
		Bool("passed", result.Passed).
		Msg("Attempt submitted")
	s.publish(model.EventAttemptSubmitted, a, map[string]any{"time_spent_seconds": seconds})
	s.publish(model.EventAttemptGraded, a, map[string]any{
		"score":          result.Score,
		"max_score":      result.MaxScore,
		"percentage":     result.Percentage,
		"passed":         result.Passed,
		"pending_review": result.PendingReview,
		"badges":         result.Badges,
	})

	if len(ledger) > 0 {
		ledger.Sort()
	}
	a.AntiCheatEvents = ledger
	a.TabSwitches = ledger.TabSwitches()
	a.SuspiciousActivityDetected = ledger.Suspicious(exam.AntiCheat)

	return &SubmitResult{Attempt: a, Evaluation: result, Responses: responses}, nil
}

// mergeResponses builds one final response per question: drafts first,
// then submitted answers, with the last write for a question winning.
// Questions are returned in display order.
func mergeResponses(snap *model.ExamSnapshot, drafts []model.DraftResponse, submitted []model.ResponseInput) ([]model.AttemptResponse, error) {
	questions := snap.QuestionByID()
	latest := make(map[uuid.UUID]model.ResponseInput, len(questions))

	for _, d := range drafts {
		if _, ok := questions[d.QuestionID]; !ok {
			continue
		}
		latest[d.QuestionID] = model.ResponseInput{QuestionID: d.QuestionID, Answer: d.Answer, TimeSpent: d.TimeSpent}
	}
	for _, in := range submitted {
		if _, ok := questions[in.QuestionID]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownQuestion, in.QuestionID)
		}
		latest[in.QuestionID] = in
	}

	responses := make([]model.AttemptResponse, 0, len(latest))
	for _, q := range snap.Questions {
		in, ok := latest[q.ID]
		if !ok {
			continue
		}
		responses = append(responses, model.AttemptResponse{
			QuestionID: q.ID,
			Answer:     in.Answer,
			IsCorrect:  q.Judge(in.Answer),
			TimeSpent:  in.TimeSpent,
		})
	}
	return responses, nil
}

// attachGrading copies per-question credit from the evaluation onto the
// responses that will be persisted.
func attachGrading(responses []model.AttemptResponse, result scoring.Result) {
	byQuestion := make(map[uuid.UUID]scoring.QuestionResult, len(result.Details))
	for _, d := range result.Details {
		byQuestion[d.QuestionID] = d
	}
	for i := range responses {
		d, ok := byQuestion[responses[i].QuestionID]
		if !ok {
			continue
		}
		earned := d.Earned
		responses[i].EarnedPoints = &earned
		responses[i].IsCorrect = d.IsCorrect
		if details, err := json.Marshal(d); err == nil {
			responses[i].GradingDetails = details
		}
	}
}

// ─── Helpers ────────────────────────────────────────────────────────────────

// loadOwned fetches an attempt and its exam snapshot, enforcing ownership.
func (s *AttemptService) loadOwned(ctx context.Context, attemptID uuid.UUID, userID int) (*model.AttemptSession, *model.ExamSnapshot, error) {
	a, err := s.attempts.GetByID(ctx, attemptID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil, ErrAttemptNotFound
		}
		return nil, nil, fmt.Errorf("get attempt: %w", err)
	}
	if a.UserID != userID {
		s.log.Warn().
			Str("attempt_id", attemptID.String()).
			Int("owner_id", a.UserID).
			Int("user_id", userID).
			Msg("Access to another user's attempt")
		return nil, nil, ErrNotAttemptOwner
	}

	snap, err := s.exams.GetSnapshot(ctx, a.ExamID)
	if err != nil {
		return nil, nil, err
	}
	return a, snap, nil
}

// expireIfDue applies lazy expiry: a STARTED session past its deadline plus
// grace is moved to EXPIRED. Losing the race to another transition reloads
// the session instead.
func (s *AttemptService) expireIfDue(ctx context.Context, a *model.AttemptSession) error {
	if a.Status != model.AttemptStatusStarted || !a.PastDeadline(s.now(), s.settings.SubmitGrace) {
		return nil
	}

	err := s.attempts.UpdateStatus(ctx, a, model.AttemptStatusExpired)
	if errors.Is(err, repository.ErrVersionConflict) {
		fresh, getErr := s.attempts.GetByID(ctx, a.ID)
		if getErr != nil {
			return fmt.Errorf("reload attempt: %w", getErr)
		}
		*a = *fresh
		return nil
	}
	if err != nil {
		return fmt.Errorf("expire attempt: %w", err)
	}

	s.log.Info().Str("attempt_id", a.ID.String()).Msg("Attempt expired")
	s.publish(model.EventAttemptExpired, a, nil)
	return nil
}

// resolveConflict turns a lost optimistic update into the terminal state
// that won.
func (s *AttemptService) resolveConflict(ctx context.Context, a *model.AttemptSession, err error) error {
	if !errors.Is(err, repository.ErrVersionConflict) {
		return fmt.Errorf("update attempt: %w", err)
	}
	fresh, getErr := s.attempts.GetByID(ctx, a.ID)
	if getErr != nil {
		return fmt.Errorf("reload attempt: %w", getErr)
	}
	if fresh.Status != model.AttemptStatusStarted {
		return notInProgress(fresh)
	}
	return fmt.Errorf("update attempt: %w", err)
}

func notInProgress(a *model.AttemptSession) error {
	if a.Status == model.AttemptStatusExpired {
		return ErrAttemptExpired
	}
	return fmt.Errorf("%w (status %s)", ErrAttemptNotInProgress, a.Status)
}

// attachLedger fills the derived anti-cheat fields from the ledger.
func (s *AttemptService) attachLedger(ctx context.Context, a *model.AttemptSession, exam *model.Exam) error {
	ledger, err := s.ledger.ListByAttempt(ctx, a.ID)
	if err != nil {
		return fmt.Errorf("load ledger: %w", err)
	}
	ledger.Sort()
	a.AntiCheatEvents = ledger
	a.TabSwitches = ledger.TabSwitches()
	a.SuspiciousActivityDetected = ledger.Suspicious(exam.AntiCheat)
	return nil
}

func (s *AttemptService) publish(t model.AttemptEventType, a *model.AttemptSession, payload map[string]any) {
	if s.events == nil {
		return
	}
	s.events.Publish(model.AttemptEvent{
		ID:         uuid.New(),
		Type:       t,
		AttemptID:  a.ID,
		ExamID:     a.ExamID,
		UserID:     a.UserID,
		OccurredAt: s.now(),
		Payload:    payload,
	})
}
