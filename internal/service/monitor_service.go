package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-attempts/internal/config"
	"github.com/stemsi/exstem-attempts/internal/model"
)

// MonitorStore lists the attempts of an exam for the live monitor.
type MonitorStore interface {
	ListProgress(ctx context.Context, examID uuid.UUID) ([]model.AttemptProgress, error)
}

// DraftCounter counts autosaved answers per attempt.
type DraftCounter interface {
	CountMany(ctx context.Context, attemptIDs []uuid.UUID) (map[uuid.UUID]int64, error)
}

// MonitorService builds live exam monitor snapshots and exposes the exam's
// event channel.
type MonitorService struct {
	exams    ExamCatalog
	progress MonitorStore
	drafts   DraftCounter
	rdb      *redis.Client
	grace    time.Duration
	now      func() time.Time
	log      zerolog.Logger
}

// NewMonitorService creates a new MonitorService. rdb may be nil when only
// snapshots are needed.
func NewMonitorService(exams ExamCatalog, progress MonitorStore, drafts DraftCounter, rdb *redis.Client, grace time.Duration, log zerolog.Logger) *MonitorService {
	return &MonitorService{
		exams:    exams,
		progress: progress,
		drafts:   drafts,
		rdb:      rdb,
		grace:    grace,
		now:      time.Now,
		log:      log.With().Str("component", "monitor_service").Logger(),
	}
}

// Snapshot authorizes actor and returns the current state of every attempt
// of the exam.
func (s *MonitorService) Snapshot(ctx context.Context, examID uuid.UUID, actor Actor) (*model.MonitorSnapshot, error) {
	snap, err := authorizeExamStaff(ctx, s.exams, examID, actor)
	if errors.Is(err, errNotExamStaff) {
		s.log.Warn().
			Int("user_id", actor.UserID).
			Str("exam_id", examID.String()).
			Msg("Unauthorized monitor attempt")
		return nil, ErrNotAuthorizedToWatch
	}
	if err != nil {
		return nil, err
	}
	return s.build(ctx, snap)
}

// Refresh rebuilds the snapshot for a monitor that was already authorized.
func (s *MonitorService) Refresh(ctx context.Context, examID uuid.UUID) (*model.MonitorSnapshot, error) {
	snap, err := s.exams.GetSnapshot(ctx, examID)
	if err != nil {
		return nil, err
	}
	return s.build(ctx, snap)
}

func (s *MonitorService) build(ctx context.Context, snap *model.ExamSnapshot) (*model.MonitorSnapshot, error) {
	rows, err := s.progress.ListProgress(ctx, snap.Exam.ID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	started := make([]uuid.UUID, 0, len(rows))
	for i := range rows {
		if rows[i].Status != model.AttemptStatusStarted {
			continue
		}
		started = append(started, rows[i].AttemptID)
		rows[i].Overdue = now.After(rows[i].ExpiresAt.Add(s.grace))
	}

	// Draft counts are best-effort.
	if len(started) > 0 {
		counts, err := s.drafts.CountMany(ctx, started)
		if err != nil {
			s.log.Warn().Err(err).Str("exam_id", snap.Exam.ID.String()).Msg("Draft counts unavailable")
		}
		for i := range rows {
			if n, ok := counts[rows[i].AttemptID]; ok {
				rows[i].AnsweredCount = n
			}
		}
	}

	if rows == nil {
		rows = []model.AttemptProgress{}
	}
	return &model.MonitorSnapshot{
		ExamID:          snap.Exam.ID,
		Title:           snap.Exam.Title,
		DurationMinutes: snap.Exam.DurationMinutes,
		TotalQuestions:  len(snap.Questions),
		Stats:           model.SummarizeProgress(rows),
		Attempts:        rows,
	}, nil
}

// Subscribe streams raw event payloads published on the exam's monitor
// channel until ctx is done or the returned stop func is called.
func (s *MonitorService) Subscribe(ctx context.Context, examID uuid.UUID) (<-chan string, func()) {
	pubsub := s.rdb.Subscribe(ctx, config.CacheKey.ExamMonitorChannel(examID.String()))
	out := make(chan string)

	var once sync.Once
	stop := func() { once.Do(func() { _ = pubsub.Close() }) }

	go func() {
		defer close(out)
		defer stop()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				select {
				case out <- msg.Payload:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, stop
}
