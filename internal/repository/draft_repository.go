package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stemsi/exstem-attempts/internal/config"
	"github.com/stemsi/exstem-attempts/internal/model"
)

// DraftRepository keeps autosaved answers in a Redis hash per attempt,
// keyed by question id. Drafts live only until submission or TTL.
type DraftRepository struct {
	rdb *redis.Client
}

// NewDraftRepository creates a new DraftRepository.
func NewDraftRepository(rdb *redis.Client) *DraftRepository {
	return &DraftRepository{rdb: rdb}
}

// Save overwrites the draft for one question and refreshes the hash TTL.
func (r *DraftRepository) Save(ctx context.Context, attemptID uuid.UUID, d model.DraftResponse, ttl time.Duration) error {
	data, err := json.Marshal(d)
	if err != nil {
		return err
	}

	key := config.CacheKey.AttemptDraftsKey(attemptID.String())
	pipe := r.rdb.TxPipeline()
	pipe.HSet(ctx, key, d.QuestionID.String(), data)
	pipe.Expire(ctx, key, ttl)
	_, err = pipe.Exec(ctx)
	return err
}

// List returns all drafts of an attempt ordered by save time.
func (r *DraftRepository) List(ctx context.Context, attemptID uuid.UUID) ([]model.DraftResponse, error) {
	raw, err := r.rdb.HGetAll(ctx, config.CacheKey.AttemptDraftsKey(attemptID.String())).Result()
	if err != nil {
		return nil, err
	}

	drafts := make([]model.DraftResponse, 0, len(raw))
	for field, v := range raw {
		var d model.DraftResponse
		if err := json.Unmarshal([]byte(v), &d); err != nil {
			return nil, fmt.Errorf("decode draft %s: %w", field, err)
		}
		drafts = append(drafts, d)
	}
	sort.Slice(drafts, func(i, j int) bool { return drafts[i].SavedAt.Before(drafts[j].SavedAt) })
	return drafts, nil
}

// Clear drops every draft of an attempt.
func (r *DraftRepository) Clear(ctx context.Context, attemptID uuid.UUID) error {
	return r.rdb.Del(ctx, config.CacheKey.AttemptDraftsKey(attemptID.String())).Err()
}

// CountMany returns the number of drafted questions per attempt in one
// pipeline. Attempts without drafts are absent from the map.
func (r *DraftRepository) CountMany(ctx context.Context, attemptIDs []uuid.UUID) (map[uuid.UUID]int64, error) {
	counts := make(map[uuid.UUID]int64, len(attemptIDs))
	if len(attemptIDs) == 0 {
		return counts, nil
	}

	pipe := r.rdb.Pipeline()
	cmds := make([]*redis.IntCmd, len(attemptIDs))
	for i, id := range attemptIDs {
		cmds[i] = pipe.HLen(ctx, config.CacheKey.AttemptDraftsKey(id.String()))
	}
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, err
	}

	for i, cmd := range cmds {
		if n := cmd.Val(); n > 0 {
			counts[attemptIDs[i]] = n
		}
	}
	return counts, nil
}
