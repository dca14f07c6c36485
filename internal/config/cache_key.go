package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// ExamAnswerKey returns the hash key holding an exam's questions (question id -> JSON question).
func (r *CacheKeyStruct) ExamAnswerKey(examID string) string {
	return fmt.Sprintf("exam:%s:key", examID)
}

// ExamPaperKey returns the cache key for an exam's student-facing paper (no correct answers).
func (r *CacheKeyStruct) ExamPaperKey(examID string) string {
	return fmt.Sprintf("exam:%s:paper", examID)
}

// ExamMonitorChannel returns the Redis PubSub channel name for an exam monitor
func (r *CacheKeyStruct) ExamMonitorChannel(examID string) string {
	return fmt.Sprintf("exam:%s:monitor", examID)
}

// SessionEventsChannel returns the PubSub channel carrying notifications for one session.
func (r *CacheKeyStruct) SessionEventsChannel(sessionID string) string {
	return fmt.Sprintf("session:%s:events", sessionID)
}

// SessionCameraKey returns the lease key of a session's camera.
func (r *CacheKeyStruct) SessionCameraKey(sessionID string) string {
	return fmt.Sprintf("session:%s:camera", sessionID)
}

var CacheKey = NewCacheKeyStruct()
