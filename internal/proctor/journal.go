package proctor

import (
	"context"

	"github.com/stemsi/exstem-proctor/internal/model"
)

// Journal receives every state change for asynchronous persistence. Errors are
// logged by the lifecycle and never roll back local state.
type Journal interface {
	SessionSaved(ctx context.Context, s model.ExamSession) error
	WarningRecorded(ctx context.Context, w model.Warning) error
	AnswerRecorded(ctx context.Context, a model.Answer) error
	RecordingAppended(ctx context.Context, seg model.RecordingSegment) error
}

type nopJournal struct{}

func (nopJournal) SessionSaved(context.Context, model.ExamSession) error           { return nil }
func (nopJournal) WarningRecorded(context.Context, model.Warning) error            { return nil }
func (nopJournal) AnswerRecorded(context.Context, model.Answer) error              { return nil }
func (nopJournal) RecordingAppended(context.Context, model.RecordingSegment) error { return nil }
