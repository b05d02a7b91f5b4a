package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// LearnerSessionKey returns the cache key holding a learner's current login session
func (r *CacheKeyStruct) LearnerSessionKey(learnerID int) string {
	return fmt.Sprintf("login:%d", learnerID)
}

// ExamDefinitionKey returns the cache key for an exam's full definition payload
func (r *CacheKeyStruct) ExamDefinitionKey(examID string) string {
	return fmt.Sprintf("exam:%s:definition", examID)
}

// AttemptMetaKey returns the hash holding an attempt's owner, exam and status
func (r *CacheKeyStruct) AttemptMetaKey(attemptID string) string {
	return fmt.Sprintf("attempt:%s:meta", attemptID)
}

// AttemptAnswersKey returns the autosave hash of an attempt's answers (question id -> option)
func (r *CacheKeyStruct) AttemptAnswersKey(attemptID string) string {
	return fmt.Sprintf("attempt:%s:answers", attemptID)
}

// AttemptResultKey returns the cache key for a completed attempt's result
func (r *CacheKeyStruct) AttemptResultKey(attemptID string) string {
	return fmt.Sprintf("attempt:%s:result", attemptID)
}

// LocalAttemptAnswersKey returns the hash of a local-mode attempt's answers
func (r *CacheKeyStruct) LocalAttemptAnswersKey(localID string) string {
	return fmt.Sprintf("local_attempt:%s:answers", localID)
}

// LocalAttemptResultKey returns the cache key for a local-mode attempt's result
func (r *CacheKeyStruct) LocalAttemptResultKey(localID string) string {
	return fmt.Sprintf("local_attempt:%s:result", localID)
}

var CacheKey = NewCacheKeyStruct()
