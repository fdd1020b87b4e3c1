package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-attempts/internal/model"
	"github.com/stemsi/exstem-attempts/internal/repository"
)

const maxCodeGenerationTries = 5

// LateAccessService issues, validates and consumes late-access codes.
type LateAccessService struct {
	codes      LateCodeStore
	exams      ExamCatalog
	codeLength int
	defaultTTL time.Duration
	now        func() time.Time
	log        zerolog.Logger
}

// NewLateAccessService creates a new LateAccessService.
func NewLateAccessService(codes LateCodeStore, exams ExamCatalog, codeLength int, defaultTTL time.Duration, log zerolog.Logger) *LateAccessService {
	if codeLength < 6 {
		codeLength = 6
	}
	return &LateAccessService{
		codes:      codes,
		exams:      exams,
		codeLength: codeLength,
		defaultTTL: defaultTTL,
		now:        time.Now,
		log:        log.With().Str("component", "late_access_service").Logger(),
	}
}

func (s *LateAccessService) authorize(ctx context.Context, examID uuid.UUID, actor Actor) error {
	if _, err := authorizeExamStaff(ctx, s.exams, examID, actor); err != nil {
		if errors.Is(err, errNotExamStaff) {
			s.log.Warn().
				Int("user_id", actor.UserID).
				Str("exam_id", examID.String()).
				Msg("Unauthorized late-code management attempt")
			return ErrNotAuthorizedForCodes
		}
		return err
	}
	return nil
}

// Generate issues a new code for an exam. Defaults: single use, expiring
// after the configured TTL.
func (s *LateAccessService) Generate(ctx context.Context, examID uuid.UUID, actor Actor, req model.GenerateLateCodeRequest) (*model.LateAccessCode, error) {
	if err := s.authorize(ctx, examID, actor); err != nil {
		return nil, err
	}

	maxUsages := req.MaxUsages
	if maxUsages <= 0 {
		maxUsages = 1
	}
	ttl := s.defaultTTL
	if req.ExpiresInHours > 0 {
		ttl = time.Duration(req.ExpiresInHours) * time.Hour
	}

	for try := 0; try < maxCodeGenerationTries; try++ {
		code, err := randomCode(s.codeLength)
		if err != nil {
			return nil, fmt.Errorf("generate code: %w", err)
		}

		c := &model.LateAccessCode{
			Code:           code,
			ExamID:         examID,
			GeneratedBy:    actor.UserID,
			AssignedUserID: req.AssignedUserID,
			MaxUsages:      maxUsages,
			Status:         model.LateCodeActive,
			ExpiresAt:      s.now().Add(ttl),
		}
		err = s.codes.Create(ctx, c)
		if errors.Is(err, repository.ErrDuplicate) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("create code: %w", err)
		}

		s.log.Info().
			Str("code_id", c.ID.String()).
			Str("exam_id", examID.String()).
			Int("generated_by", actor.UserID).
			Int("max_usages", maxUsages).
			Msg("Late-access code issued")
		return c, nil
	}
	return nil, errors.New("could not generate a unique late-access code")
}

// randomCode draws n characters uniformly from LateCodeAlphabet. The
// alphabet has 32 symbols, so masking a random byte is unbiased.
func randomCode(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	for i, b := range buf {
		buf[i] = model.LateCodeAlphabet[int(b)&(len(model.LateCodeAlphabet)-1)]
	}
	return string(buf), nil
}

// checkCode runs the validation steps in order, each with its own reason.
// A user who already consumed the code is told so even when that use was
// the last one available.
func checkCode(c *model.LateAccessCode, examID uuid.UUID, userID int, now time.Time) error {
	if c == nil || c.ExamID != examID {
		return ErrLateCodeInvalid
	}
	if c.Status != model.LateCodeActive && c.Status != model.LateCodeExhausted {
		return ErrLateCodeDeactivated
	}
	if now.After(c.ExpiresAt) {
		return ErrLateCodeExpired
	}
	if c.UsedBy(userID) {
		return ErrLateCodeAlreadyUsed
	}
	if c.UsagesRemaining() <= 0 {
		return ErrLateCodeExhausted
	}
	if c.AssignedUserID != nil && *c.AssignedUserID != userID {
		return ErrLateCodeNotYours
	}
	return nil
}

// Check validates a code for examID and userID without consuming it.
func (s *LateAccessService) Check(ctx context.Context, code string, examID uuid.UUID, userID int) (*model.LateAccessCode, error) {
	c, err := s.codes.FindByCode(ctx, model.NormalizeLateCode(code))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrLateCodeInvalid
		}
		return nil, fmt.Errorf("find code: %w", err)
	}
	if err := checkCode(c, examID, userID, s.now()); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate checks and consumes one usage of a code under a row lock, so
// concurrent consumers of a limited code cannot overdraw it.
func (s *LateAccessService) Validate(ctx context.Context, code string, examID uuid.UUID, userID int) (*model.LateAccessCode, error) {
	var consumed *model.LateAccessCode
	err := s.codes.WithLockedCode(ctx, model.NormalizeLateCode(code), func(c *model.LateAccessCode) error {
		now := s.now()
		if err := checkCode(c, examID, userID, now); err != nil {
			return err
		}
		c.RecordUsage(userID, now)
		consumed = c
		return nil
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrLateCodeInvalid
		}
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrLateCodeAlreadyUsed
		}
		return nil, err
	}

	s.log.Info().
		Str("code_id", consumed.ID.String()).
		Int("user_id", userID).
		Int("usages_remaining", consumed.UsagesRemaining()).
		Msg("Late-access code consumed")
	return consumed, nil
}

// Revoke deactivates a code permanently.
func (s *LateAccessService) Revoke(ctx context.Context, codeID uuid.UUID, actor Actor) (*model.LateAccessCode, error) {
	c, err := s.codes.GetByID(ctx, codeID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrLateCodeNotFound
		}
		return nil, fmt.Errorf("get code: %w", err)
	}
	if err := s.authorize(ctx, c.ExamID, actor); err != nil {
		return nil, err
	}

	if err := s.codes.UpdateStatus(ctx, c.ID, model.LateCodeRevoked); err != nil {
		return nil, fmt.Errorf("revoke code: %w", err)
	}
	c.Status = model.LateCodeRevoked

	s.log.Info().Str("code_id", c.ID.String()).Int("revoked_by", actor.UserID).Msg("Late-access code revoked")
	return c, nil
}

// List returns an exam's codes with their effective status.
func (s *LateAccessService) List(ctx context.Context, examID uuid.UUID, actor Actor) ([]model.LateAccessCode, error) {
	if err := s.authorize(ctx, examID, actor); err != nil {
		return nil, err
	}

	codes, err := s.codes.ListByExam(ctx, examID)
	if err != nil {
		return nil, fmt.Errorf("list codes: %w", err)
	}
	if codes == nil {
		codes = []model.LateAccessCode{}
	}

	now := s.now()
	for i := range codes {
		codes[i].Status = codes[i].EffectiveStatus(now)
	}
	return codes, nil
}
