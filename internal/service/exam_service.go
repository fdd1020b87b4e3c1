package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-attempts/internal/config"
	"github.com/stemsi/exstem-attempts/internal/model"
	"github.com/stemsi/exstem-attempts/internal/repository"
)

// ExamService serves exam + question bank snapshots from Redis, falling back
// to PostgreSQL on a miss.
type ExamService struct {
	examRepo     *repository.ExamRepository
	questionRepo *repository.QuestionRepository
	rdb          *redis.Client
	ttl          time.Duration
	log          zerolog.Logger
}

// NewExamService creates a new ExamService.
func NewExamService(
	examRepo *repository.ExamRepository,
	questionRepo *repository.QuestionRepository,
	rdb *redis.Client,
	ttl time.Duration,
	log zerolog.Logger,
) *ExamService {
	return &ExamService{
		examRepo:     examRepo,
		questionRepo: questionRepo,
		rdb:          rdb,
		ttl:          ttl,
		log:          log.With().Str("component", "exam_service").Logger(),
	}
}

// GetSnapshot returns the exam and its question bank as one consistent view.
func (s *ExamService) GetSnapshot(ctx context.Context, examID uuid.UUID) (*model.ExamSnapshot, error) {
	key := config.CacheKey.ExamSnapshotKey(examID.String())

	data, err := s.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var snap model.ExamSnapshot
		if err := json.Unmarshal(data, &snap); err == nil {
			return &snap, nil
		}
		s.log.Warn().Str("exam_id", examID.String()).Msg("Corrupt snapshot in cache, reloading")
	case !errors.Is(err, redis.Nil):
		s.log.Warn().Err(err).Str("exam_id", examID.String()).Msg("Snapshot cache read failed")
	}

	snap, err := s.load(ctx, examID)
	if err != nil {
		return nil, err
	}
	s.store(ctx, snap)
	return snap, nil
}

func (s *ExamService) load(ctx context.Context, examID uuid.UUID) (*model.ExamSnapshot, error) {
	exam, err := s.examRepo.GetByID(ctx, examID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrExamNotFound
		}
		return nil, fmt.Errorf("get exam: %w", err)
	}

	questions, err := s.questionRepo.ListByExam(ctx, examID)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	if questions == nil {
		questions = []model.Question{}
	}
	return &model.ExamSnapshot{Exam: *exam, Questions: questions}, nil
}

func (s *ExamService) store(ctx context.Context, snap *model.ExamSnapshot) {
	data, err := json.Marshal(snap)
	if err != nil {
		s.log.Error().Err(err).Msg("Marshal snapshot")
		return
	}
	if err := s.rdb.Set(ctx, config.CacheKey.ExamSnapshotKey(snap.Exam.ID.String()), data, s.ttl).Err(); err != nil {
		s.log.Warn().Err(err).Str("exam_id", snap.Exam.ID.String()).Msg("Snapshot cache write failed")
	}
}

// Invalidate drops a cached snapshot so the next read reloads it.
func (s *ExamService) Invalidate(ctx context.Context, examID uuid.UUID) error {
	return s.rdb.Del(ctx, config.CacheKey.ExamSnapshotKey(examID.String())).Err()
}

// PrewarmAllCaches loads all published exams into Redis on application startup.
func (s *ExamService) PrewarmAllCaches(ctx context.Context) error {
	exams, err := s.examRepo.ListPublished(ctx)
	if err != nil {
		return fmt.Errorf("list published exams: %w", err)
	}

	if len(exams) == 0 {
		s.log.Info().Msg("No published exams to prewarm")
		return nil
	}

	warmed := 0
	for i := range exams {
		snap, err := s.load(ctx, exams[i].ID)
		if err != nil {
			s.log.Warn().
				Err(err).
				Str("exam_id", exams[i].ID.String()).
				Msg("Failed to warm exam, skipping")
			continue
		}
		s.store(ctx, snap)
		warmed++
	}

	s.log.Info().
		Int("warmed", warmed).
		Int("total", len(exams)).
		Msg("Prewarming complete")
	return nil
}
