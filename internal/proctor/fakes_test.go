package proctor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/stemsi/exstem-proctor/internal/model"
)

type fakeCamera struct {
	fail     bool
	acquired atomic.Int32
	released atomic.Int32
}

func (c *fakeCamera) Acquire(_ context.Context, req CameraRequest) (CameraLease, error) {
	if c.fail || !req.DeviceReady {
		return nil, ErrCameraUnavailable
	}
	c.acquired.Add(1)
	return &fakeLease{cam: c}, nil
}

type fakeLease struct{ cam *fakeCamera }

func (l *fakeLease) Release(context.Context) error {
	l.cam.released.Add(1)
	return nil
}

type recordingNotifier struct {
	mu    sync.Mutex
	items []model.Notification
}

func (n *recordingNotifier) Notify(_ context.Context, note model.Notification) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.items = append(n.items, note)
}

func (n *recordingNotifier) ofKind(kind model.NotificationKind) []model.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []model.Notification
	for _, it := range n.items {
		if it.Kind == kind {
			out = append(out, it)
		}
	}
	return out
}

type memJournal struct {
	mu         sync.Mutex
	fail       bool
	sessions   []model.ExamSession
	warnings   []model.Warning
	answers    []model.Answer
	recordings []model.RecordingSegment
}

var errJournalDown = errors.New("journal down")

func (j *memJournal) SessionSaved(_ context.Context, s model.ExamSession) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.fail {
		return &PersistenceError{Op: "session", Err: errJournalDown}
	}
	j.sessions = append(j.sessions, s)
	return nil
}

func (j *memJournal) WarningRecorded(_ context.Context, w model.Warning) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.fail {
		return &PersistenceError{Op: "warning", Err: errJournalDown}
	}
	j.warnings = append(j.warnings, w)
	return nil
}

func (j *memJournal) AnswerRecorded(_ context.Context, a model.Answer) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.fail {
		return &PersistenceError{Op: "answer", Err: errJournalDown}
	}
	j.answers = append(j.answers, a)
	return nil
}

func (j *memJournal) RecordingAppended(_ context.Context, seg model.RecordingSegment) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.fail {
		return &PersistenceError{Op: "recording", Err: errJournalDown}
	}
	j.recordings = append(j.recordings, seg)
	return nil
}

func (j *memJournal) stoppedSegments() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	n := 0
	for _, seg := range j.recordings {
		if seg.Status == model.RecordingStopped {
			n++
		}
	}
	return n
}

var examID = uuid.MustParse("5b0e1c55-2f6a-4d7e-9c31-8a1f0c7d2e11")

// dsaQuestions is the six-question answer key used by the exam page.
func dsaQuestions() []model.Question {
	items := []struct {
		text    string
		correct string
		options []string
	}{
		{"What is the time complexity of binary search?", "O(log n)", []string{"O(n)", "O(log n)", "O(n²)", "O(1)"}},
		{"Which data structure uses LIFO principle?", "Stack", []string{"Queue", "Stack", "Array", "Linked List"}},
		{"What is the worst-case time complexity of QuickSort?", "O(n²)", []string{"O(n log n)", "O(n²)", "O(n)", "O(log n)"}},
		{"What is a hash collision?", "When two keys hash to the same value", []string{
			"When two keys hash to the same value", "When hash table is full", "When memory is corrupted", "When function is undefined",
		}},
		{"Which sorting algorithm has the best average-case time complexity?", "Merge Sort", []string{"Bubble Sort", "Merge Sort", "Selection Sort", "Insertion Sort"}},
		{"What is the space complexity of merge sort?", "O(n)", []string{"O(1)", "O(log n)", "O(n)", "O(n²)"}},
	}
	qs := make([]model.Question, 0, len(items))
	for i, it := range items {
		qs = append(qs, model.Question{
			ID:            uuid.New(),
			ExamID:        examID,
			Text:          it.text,
			Options:       it.options,
			CorrectAnswer: it.correct,
			OrderNum:      i + 1,
		})
	}
	return qs
}

type harness struct {
	cam       *fakeCamera
	notifier  *recordingNotifier
	journal   *memJournal
	questions []model.Question
	deps      Deps
}

func newHarness() *harness {
	h := &harness{
		cam:       &fakeCamera{},
		notifier:  &recordingNotifier{},
		journal:   &memJournal{},
		questions: dsaQuestions(),
	}
	h.deps = Deps{
		Bank:     NewStaticBank(h.questions...),
		Camera:   h.cam,
		Notifier: h.notifier,
		Journal:  h.journal,
	}
	return h
}

// examSettings: three warnings, 7200 one-second ticks, no motion checks.
func examSettings() Settings {
	return Settings{MaxWarnings: 3, Duration: 7200 * time.Second, TimerTick: time.Second}
}

func (h *harness) start(t *testing.T, settings Settings, deviceReady bool) *Lifecycle {
	t.Helper()
	l := New(h.deps, StartOptions{
		ExamID:      examID,
		StudentID:   uuid.New(),
		DeviceReady: deviceReady,
		Settings:    settings,
	})
	_, err := l.Start(context.Background())
	require.NoError(t, err)
	t.Cleanup(l.suspend)
	return l
}

func waitDone(t *testing.T, l *Lifecycle) {
	t.Helper()
	select {
	case <-l.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("session did not finalize")
	}
}
