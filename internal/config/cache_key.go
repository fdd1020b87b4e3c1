package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// ExamSnapshotKey returns the cache key for an exam's config + question bank snapshot
func (r *CacheKeyStruct) ExamSnapshotKey(examID string) string {
	return fmt.Sprintf("exam:%s:snapshot", examID)
}

// AttemptDraftsKey returns the cache key for an attempt's autosaved draft answers
func (r *CacheKeyStruct) AttemptDraftsKey(attemptID string) string {
	return fmt.Sprintf("attempt:%s:drafts", attemptID)
}

// ExamMonitorChannel returns the Redis PubSub channel name for an exam monitor
func (r *CacheKeyStruct) ExamMonitorChannel(examID string) string {
	return fmt.Sprintf("exam:%s:monitor", examID)
}

var CacheKey = NewCacheKeyStruct()
