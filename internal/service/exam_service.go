package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/proctor"
)

// Domain Errors
var (
	ErrExamNotFound = errors.New("exam not found")
	ErrNoQuestions  = errors.New("exam has no questions")
)

type examStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Exam, error)
	ListByExaminer(ctx context.Context, examinerID uuid.UUID) ([]model.Exam, error)
	Create(ctx context.Context, e *model.Exam, questions []model.Question) error
}

type questionStore interface {
	ListByExam(ctx context.Context, examID uuid.UUID) ([]model.Question, error)
}

// ExamService handles exam business logic and the Redis answer-key cache.
// It is the QuestionBank the grader reads from.
type ExamService struct {
	examRepo     examStore
	questionRepo questionStore
	rdb          *redis.Client
	defaults     proctor.Settings
	cacheTTL     time.Duration
	log          zerolog.Logger
}

var _ proctor.QuestionBank = (*ExamService)(nil)

// NewExamService creates a new ExamService. defaults fill exams created
// without a duration or warning limit.
func NewExamService(
	examRepo examStore,
	questionRepo questionStore,
	rdb *redis.Client,
	defaults proctor.Settings,
	log zerolog.Logger,
) *ExamService {
	return &ExamService{
		examRepo:     examRepo,
		questionRepo: questionRepo,
		rdb:          rdb,
		defaults:     defaults.WithDefaults(proctor.Settings{}),
		cacheTTL:     24 * time.Hour,
		log:          log.With().Str("component", "exam_service").Logger(),
	}
}

// GetByID retrieves an exam by its UUID.
func (s *ExamService) GetByID(ctx context.Context, id uuid.UUID) (*model.Exam, error) {
	exam, err := s.examRepo.GetByID(ctx, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrExamNotFound
	}
	return exam, err
}

// List retrieves the exams of an examiner.
func (s *ExamService) List(ctx context.Context, examinerID uuid.UUID) ([]model.Exam, error) {
	return s.examRepo.ListByExaminer(ctx, examinerID)
}

// Create inserts an exam with its questions and warms its cache.
func (s *ExamService) Create(ctx context.Context, examinerID uuid.UUID, req model.CreateExamRequest) (*model.Exam, error) {
	questions := make([]model.Question, 0, len(req.Questions))
	for i, q := range req.Questions {
		question := model.Question{
			Text:          q.Text,
			Options:       q.Options,
			CorrectAnswer: q.CorrectAnswer,
			OrderNum:      i + 1,
		}
		if !question.HasOption(q.CorrectAnswer) {
			return nil, fmt.Errorf("%w: question %d: correct answer is not one of the options", proctor.ErrValidation, i+1)
		}
		questions = append(questions, question)
	}

	exam := &model.Exam{
		Title:           req.Title,
		Description:     req.Description,
		ExaminerID:      examinerID,
		DurationSeconds: req.DurationSeconds,
		MaxWarnings:     req.MaxWarnings,
	}
	if exam.DurationSeconds == 0 {
		exam.DurationSeconds = int(s.defaults.Duration / time.Second)
	}
	if exam.MaxWarnings == 0 {
		exam.MaxWarnings = s.defaults.MaxWarnings
	}

	if err := s.examRepo.Create(ctx, exam, questions); err != nil {
		return nil, fmt.Errorf("create exam: %w", err)
	}

	if len(questions) > 0 {
		if err := s.warm(ctx, exam, questions); err != nil {
			s.log.Warn().Err(err).Str("exam_id", exam.ID.String()).Msg("Failed to warm exam cache")
		}
	}

	s.log.Info().
		Str("exam_id", exam.ID.String()).
		Int("questions", len(questions)).
		Msg("Exam created")
	return exam, nil
}

// Questions returns an exam's questions with their correct answers, for examiners.
func (s *ExamService) Questions(ctx context.Context, examID uuid.UUID) ([]model.Question, error) {
	if _, err := s.GetByID(ctx, examID); err != nil {
		return nil, err
	}
	questions, err := s.questionRepo.ListByExam(ctx, examID)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	if questions == nil {
		questions = []model.Question{}
	}
	return questions, nil
}

// Settings returns the proctoring parameters of an exam.
func (s *ExamService) Settings(ctx context.Context, examID uuid.UUID) (proctor.Settings, error) {
	exam, err := s.GetByID(ctx, examID)
	if err != nil {
		return proctor.Settings{}, err
	}
	return proctor.Settings{
		MaxWarnings: exam.MaxWarnings,
		Duration:    time.Duration(exam.DurationSeconds) * time.Second,
	}, nil
}

// Paper returns the student-facing paper, from Redis when cached.
func (s *ExamService) Paper(ctx context.Context, examID uuid.UUID) (*model.ExamPaper, error) {
	data, err := s.rdb.Get(ctx, config.CacheKey.ExamPaperKey(examID.String())).Bytes()
	if err == nil {
		var paper model.ExamPaper
		if err := json.Unmarshal(data, &paper); err == nil {
			return &paper, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		s.log.Warn().Err(err).Msg("Redis paper lookup failed, using database")
	}

	exam, err := s.GetByID(ctx, examID)
	if err != nil {
		return nil, err
	}
	questions, err := s.questionRepo.ListByExam(ctx, examID)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	if len(questions) == 0 {
		return nil, ErrNoQuestions
	}

	if err := s.warm(ctx, exam, questions); err != nil {
		s.log.Warn().Err(err).Str("exam_id", examID.String()).Msg("Failed to warm exam cache")
	}
	paper := buildPaper(exam, questions)
	return &paper, nil
}

// Question returns one question with its correct answer. The answer key is
// read from Redis and refilled from PostgreSQL on a miss.
func (s *ExamService) Question(ctx context.Context, examID, questionID uuid.UUID) (model.Question, error) {
	key := config.CacheKey.ExamAnswerKey(examID.String())

	data, err := s.rdb.HGet(ctx, key, questionID.String()).Bytes()
	if err == nil {
		var q model.Question
		if err := json.Unmarshal(data, &q); err == nil {
			return q, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		s.log.Warn().Err(err).Msg("Redis answer key lookup failed, using database")
	}

	questions, err := s.questionRepo.ListByExam(ctx, examID)
	if err != nil {
		return model.Question{}, fmt.Errorf("list questions: %w", err)
	}

	var found *model.Question
	for i := range questions {
		if questions[i].ID == questionID {
			found = &questions[i]
		}
	}

	if len(questions) > 0 {
		if err := s.cacheKey(ctx, examID, questions); err != nil {
			s.log.Warn().Err(err).Str("exam_id", examID.String()).Msg("Failed to cache answer key")
		}
	}

	if found == nil {
		return model.Question{}, proctor.ErrUnknownQuestion
	}
	return *found, nil
}

// warm caches both the paper and the answer key in one pipeline.
func (s *ExamService) warm(ctx context.Context, exam *model.Exam, questions []model.Question) error {
	paperJSON, err := json.Marshal(buildPaper(exam, questions))
	if err != nil {
		return fmt.Errorf("marshal paper: %w", err)
	}
	answerKey, err := answerKeyFields(questions)
	if err != nil {
		return err
	}

	key := config.CacheKey.ExamAnswerKey(exam.ID.String())
	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, config.CacheKey.ExamPaperKey(exam.ID.String()), paperJSON, s.cacheTTL)
	pipe.Del(ctx, key)
	pipe.HSet(ctx, key, answerKey)
	pipe.Expire(ctx, key, s.cacheTTL)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("cache to redis: %w", err)
	}

	s.log.Debug().
		Str("exam_id", exam.ID.String()).
		Int("questions", len(questions)).
		Msg("Cache warmed")
	return nil
}

func (s *ExamService) cacheKey(ctx context.Context, examID uuid.UUID, questions []model.Question) error {
	answerKey, err := answerKeyFields(questions)
	if err != nil {
		return err
	}
	key := config.CacheKey.ExamAnswerKey(examID.String())
	pipe := s.rdb.TxPipeline()
	pipe.HSet(ctx, key, answerKey)
	pipe.Expire(ctx, key, s.cacheTTL)
	_, err = pipe.Exec(ctx)
	return err
}

func answerKeyFields(questions []model.Question) (map[string]interface{}, error) {
	fields := make(map[string]interface{}, len(questions))
	for _, q := range questions {
		data, err := json.Marshal(q)
		if err != nil {
			return nil, fmt.Errorf("marshal question: %w", err)
		}
		fields[q.ID.String()] = data
	}
	return fields, nil
}

func buildPaper(exam *model.Exam, questions []model.Question) model.ExamPaper {
	items := make([]model.QuestionForStudent, len(questions))
	for i, q := range questions {
		items[i] = q.ForStudent()
	}
	return model.ExamPaper{
		ExamID:          exam.ID,
		Title:           exam.Title,
		DurationSeconds: exam.DurationSeconds,
		MaxWarnings:     exam.MaxWarnings,
		Questions:       items,
	}
}
