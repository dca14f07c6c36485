package proctor

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/stemsi/exstem-proctor/internal/model"
)

// QuestionBank resolves questions of an exam. Missing ids return ErrUnknownQuestion.
type QuestionBank interface {
	Question(ctx context.Context, examID, questionID uuid.UUID) (model.Question, error)
}

// StaticBank is an immutable in-memory QuestionBank.
type StaticBank struct {
	questions map[uuid.UUID]model.Question
}

func NewStaticBank(questions ...model.Question) *StaticBank {
	b := &StaticBank{questions: make(map[uuid.UUID]model.Question, len(questions))}
	for _, q := range questions {
		b.questions[q.ID] = q
	}
	return b
}

func (b *StaticBank) Question(_ context.Context, examID, questionID uuid.UUID) (model.Question, error) {
	q, ok := b.questions[questionID]
	if !ok || q.ExamID != examID {
		return model.Question{}, ErrUnknownQuestion
	}
	return q, nil
}

// AnswerGrader grades against the canonical option value, not its index.
type AnswerGrader struct {
	bank QuestionBank
	now  func() time.Time
}

func NewAnswerGrader(bank QuestionBank, now func() time.Time) AnswerGrader {
	if now == nil {
		now = time.Now
	}
	return AnswerGrader{bank: bank, now: now}
}

// Grade builds the answer row. Client-reported correctness never reaches here.
func (g AnswerGrader) Grade(ctx context.Context, sessionID, examID, questionID uuid.UUID, answerText string) (model.Answer, error) {
	q, err := g.bank.Question(ctx, examID, questionID)
	if err != nil {
		return model.Answer{}, fmt.Errorf("question %s: %w", questionID, err)
	}

	correct := answerText == q.CorrectAnswer
	marks := 0
	if correct {
		marks = 1
	}

	return model.Answer{
		SessionID:    sessionID,
		QuestionID:   questionID,
		QuestionText: q.Text,
		AnswerText:   answerText,
		IsCorrect:    correct,
		Marks:        marks,
		Timestamp:    g.now(),
	}, nil
}

// Score sums the marks of current answers.
func Score(answers []model.Answer) int {
	total := 0
	for _, a := range answers {
		total += a.Marks
	}
	return total
}

// RecordAnswer grades and upserts the answer for questionID. Answers that
// arrive after the terminal transition are rejected.
func (l *Lifecycle) RecordAnswer(ctx context.Context, questionID uuid.UUID, answerText string) (model.Answer, error) {
	if questionID == uuid.Nil {
		return model.Answer{}, fmt.Errorf("%w: question id is required", ErrValidation)
	}

	l.mu.Lock()
	active := l.session.Status == model.SessionStatusActive
	l.mu.Unlock()
	if !active {
		return model.Answer{}, ErrSessionNotActive
	}

	a, err := l.grader.Grade(ctx, l.session.ID, l.session.ExamID, questionID, answerText)
	if err != nil {
		return model.Answer{}, err
	}

	l.mu.Lock()
	if l.session.Status != model.SessionStatusActive {
		l.mu.Unlock()
		return model.Answer{}, ErrSessionNotActive
	}
	l.answers[questionID] = a
	l.mu.Unlock()

	l.logPersist("answer", l.deps.Journal.AnswerRecorded(context.WithoutCancel(ctx), a))
	return a, nil
}

// Score is computed on demand over the current answers.
func (l *Lifecycle) Score() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	total := 0
	for _, a := range l.answers {
		total += a.Marks
	}
	return total
}
