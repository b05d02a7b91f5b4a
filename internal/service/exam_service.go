package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/drivetheory/theory-backend/internal/assessment"
	"github.com/drivetheory/theory-backend/internal/config"
	"github.com/drivetheory/theory-backend/internal/model"
	"github.com/drivetheory/theory-backend/internal/repository"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Domain Errors
var (
	ErrExamNotFound     = repository.ErrExamNotFound
	ErrExamNotPublished = errors.New("exam status is not PUBLISHED")
	ErrExamInvalid      = errors.New("exam definition is invalid")
)

// examStore is the slice of ExamRepository the service depends on.
type examStore interface {
	ListPublished(ctx context.Context) ([]model.Exam, error)
	GetDefinition(ctx context.Context, id uuid.UUID) (*model.ExamDefinition, model.ExamStatus, error)
	SaveDefinition(ctx context.Context, def *model.ExamDefinition, status model.ExamStatus) error
}

// ExamService serves exam definitions from a Redis cache backed by PostgreSQL.
type ExamService struct {
	examRepo examStore
	rdb      *redis.Client
	ttl      time.Duration
	log      zerolog.Logger
}

// NewExamService creates a new ExamService.
func NewExamService(examRepo examStore, rdb *redis.Client, ttl time.Duration, log zerolog.Logger) *ExamService {
	return &ExamService{
		examRepo: examRepo,
		rdb:      rdb,
		ttl:      ttl,
		log:      log.With().Str("component", "exam_service").Logger(),
	}
}

// ListPublished returns the exams learners can take.
func (s *ExamService) ListPublished(ctx context.Context) ([]model.Exam, error) {
	return s.examRepo.ListPublished(ctx)
}

// GetDefinition returns a published, valid exam definition. The cached payload
// is served when present; on a miss the definition is loaded from PostgreSQL
// and written back to the cache.
func (s *ExamService) GetDefinition(ctx context.Context, examID uuid.UUID) (*model.ExamDefinition, error) {
	key := config.CacheKey.ExamDefinitionKey(examID.String())

	data, err := s.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var def model.ExamDefinition
		if err := json.Unmarshal(data, &def); err == nil {
			return &def, nil
		}
		s.log.Warn().Str("exam_id", examID.String()).Msg("Discarding unreadable cached exam")
	case !errors.Is(err, redis.Nil):
		// Redis trouble degrades to the database instead of failing the learner.
		s.log.Warn().Err(err).Str("exam_id", examID.String()).Msg("Exam cache read failed")
	}

	def, status, err := s.examRepo.GetDefinition(ctx, examID)
	if err != nil {
		return nil, fmt.Errorf("get exam definition: %w", err)
	}
	if status != model.ExamStatusPublished {
		return nil, ErrExamNotPublished
	}
	if err := assessment.Validate(def); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrExamInvalid, err)
	}

	if err := s.WarmExamCache(ctx, def); err != nil {
		s.log.Warn().Err(err).Str("exam_id", examID.String()).Msg("Failed to self-heal exam cache")
	}
	return def, nil
}

// WarmExamCache stores a definition in Redis.
func (s *ExamService) WarmExamCache(ctx context.Context, def *model.ExamDefinition) error {
	data, err := json.Marshal(def)
	if err != nil {
		return fmt.Errorf("marshal definition: %w", err)
	}
	if err := s.rdb.Set(ctx, config.CacheKey.ExamDefinitionKey(def.ID.String()), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("cache to redis: %w", err)
	}

	s.log.Debug().
		Str("exam_id", def.ID.String()).
		Int("questions", len(def.Questions)).
		Msg("Cache warmed")
	return nil
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
		if _, err := s.GetDefinition(ctx, exams[i].ID); err != nil {
			s.log.Warn().
				Err(err).
				Str("exam_id", exams[i].ID.String()).
				Msg("Failed to warm exam, skipping")
			continue
		}
		warmed++
	}

	s.log.Info().
		Int("warmed", warmed).
		Int("total", len(exams)).
		Msg("Prewarming complete")
	return nil
}

// Import validates and stores a definition, replacing any exam with the same id.
// The cached copy is dropped so the next read picks up the new version.
func (s *ExamService) Import(ctx context.Context, def *model.ExamDefinition, status model.ExamStatus) error {
	if def.ID == uuid.Nil {
		def.ID = uuid.New()
	}
	for i := range def.Questions {
		if def.Questions[i].ID == uuid.Nil {
			def.Questions[i].ID = uuid.New()
		}
	}
	if err := assessment.Validate(def); err != nil {
		return fmt.Errorf("%w: %w", ErrExamInvalid, err)
	}

	if err := s.examRepo.SaveDefinition(ctx, def, status); err != nil {
		return fmt.Errorf("save definition: %w", err)
	}
	if err := s.rdb.Del(ctx, config.CacheKey.ExamDefinitionKey(def.ID.String())).Err(); err != nil {
		s.log.Warn().Err(err).Str("exam_id", def.ID.String()).Msg("Failed to invalidate exam cache")
	}
	return nil
}
