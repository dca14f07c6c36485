package proctor

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-proctor/internal/model"
)

// Reasons recorded on terminal transitions.
const (
	ReasonSubmitted            = "submitted"
	ReasonTimeExpired          = "time_expired"
	ReasonMaxWarnings          = "max_warnings_exceeded"
	ReasonTerminatedByExaminer = "terminated_by_examiner"
)

// Defaults applied to zero Settings fields.
const (
	DefaultMaxWarnings = 3
	DefaultDuration    = 2 * time.Hour
	DefaultTimerTick   = time.Second
)

// Settings are the per-attempt proctoring parameters.
type Settings struct {
	MaxWarnings int
	Duration    time.Duration
	TimerTick   time.Duration
	// MotionInterval is the period of the motion check; zero disables it.
	MotionInterval time.Duration
}

// WithDefaults fills zero fields from d, then from the package defaults.
func (s Settings) WithDefaults(d Settings) Settings {
	if s.MaxWarnings <= 0 {
		s.MaxWarnings = d.MaxWarnings
	}
	if s.Duration <= 0 {
		s.Duration = d.Duration
	}
	if s.TimerTick <= 0 {
		s.TimerTick = d.TimerTick
	}
	if s.MotionInterval <= 0 {
		s.MotionInterval = d.MotionInterval
	}

	if s.MaxWarnings <= 0 {
		s.MaxWarnings = DefaultMaxWarnings
	}
	if s.Duration <= 0 {
		s.Duration = DefaultDuration
	}
	if s.TimerTick <= 0 {
		s.TimerTick = DefaultTimerTick
	}
	return s
}

// Deps are the collaborators shared by every lifecycle. Nil fields get
// in-process defaults.
type Deps struct {
	Bank     QuestionBank
	Camera   Camera
	Notifier Notifier
	Journal  Journal
	Motion   MotionDetector
	Now      func() time.Time
	Log      zerolog.Logger
}

func (d Deps) normalize() Deps {
	if d.Bank == nil {
		d.Bank = NewStaticBank()
	}
	if d.Camera == nil {
		d.Camera = DeviceCamera{}
	}
	if d.Notifier == nil {
		d.Notifier = nopNotifier{}
	}
	if d.Journal == nil {
		d.Journal = nopJournal{}
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return d
}

// StartOptions identify a new attempt.
type StartOptions struct {
	SessionID   uuid.UUID
	ExamID      uuid.UUID
	StudentID   uuid.UUID
	DeviceReady bool
	Settings    Settings
}

// Lifecycle is the state machine of one exam attempt. It is the explicit
// session context: every operation on the attempt goes through it.
type Lifecycle struct {
	deps        Deps
	settings    Settings
	policy      EscalationPolicy
	grader      AnswerGrader
	log         zerolog.Logger
	deviceReady bool

	mu        sync.Mutex
	session   model.ExamSession
	warnings  []model.Warning
	answers   map[uuid.UUID]model.Answer
	recording RecordingLog
	lease     CameraLease
	released  bool

	releaseOnce sync.Once
	timer       *Timer
	detector    *Detector
	done        chan struct{}
}

// New builds a NOT_STARTED lifecycle.
func New(deps Deps, opts StartOptions) *Lifecycle {
	deps = deps.normalize()
	settings := opts.Settings.WithDefaults(Settings{})

	id := opts.SessionID
	if id == uuid.Nil {
		id = uuid.New()
	}

	l := &Lifecycle{
		deps:        deps,
		settings:    settings,
		policy:      EscalationPolicy{MaxWarnings: settings.MaxWarnings},
		grader:      NewAnswerGrader(deps.Bank, deps.Now),
		deviceReady: opts.DeviceReady,
		session: model.ExamSession{
			ID:           id,
			ExamID:       opts.ExamID,
			StudentID:    opts.StudentID,
			Status:       model.SessionStatusNotStarted,
			WebcamStatus: model.WebcamOff,
		},
		answers: make(map[uuid.UUID]model.Answer),
		done:    make(chan struct{}),
	}
	l.log = deps.Log.With().
		Str("component", "session").
		Str("session_id", id.String()).
		Str("exam_id", opts.ExamID.String()).
		Logger()
	l.timer = NewTimer(settings.Duration, settings.TimerTick, l.expire)
	l.detector = newDetector(id, deps.Motion, settings.MotionInterval, l.ReportViolation, l.log)
	return l
}

// Start moves the attempt to ACTIVE, acquires the camera best-effort and
// starts the timer and detector.
func (l *Lifecycle) Start(ctx context.Context) (model.ExamSession, error) {
	now := l.deps.Now()

	l.mu.Lock()
	if l.session.Status != model.SessionStatusNotStarted {
		l.mu.Unlock()
		return model.ExamSession{}, ErrAlreadyStarted
	}
	l.session.Status = model.SessionStatusActive
	l.session.StartTime = now
	l.mu.Unlock()

	lease, camErr := l.deps.Camera.Acquire(ctx, CameraRequest{
		SessionID:   l.session.ID,
		ExamID:      l.session.ExamID,
		StudentID:   l.session.StudentID,
		DeviceReady: l.deviceReady,
	})

	var (
		seg      *model.RecordingSegment
		orphaned CameraLease
	)
	l.mu.Lock()
	if camErr == nil {
		if l.session.Status == model.SessionStatusActive && !l.released {
			l.lease = lease
			l.session.WebcamStatus = model.WebcamOn
			s := l.recording.Append(newSegment(l.session.ID, nil, model.RecordingActive, now))
			seg = &s
		} else {
			orphaned = lease
		}
	}
	session := l.session
	l.mu.Unlock()

	ctx = context.WithoutCancel(ctx)

	if orphaned != nil {
		l.logPersist("camera release", orphaned.Release(ctx))
	}

	l.logPersist("session", l.deps.Journal.SessionSaved(ctx, session))
	if seg != nil {
		l.logPersist("recording", l.deps.Journal.RecordingAppended(ctx, *seg))
	}

	if camErr != nil {
		l.log.Warn().Err(camErr).Msg("Camera unavailable, continuing without webcam")
		l.deps.Notifier.Notify(ctx, l.notification(model.NotificationCameraDenied, session, l.Recording(), camErr.Error()))
	}
	l.deps.Notifier.Notify(ctx, l.notification(model.NotificationSessionUpdate, session, l.Recording(), ""))

	l.timer.Start()
	l.detector.Start()

	l.log.Info().
		Str("student_id", session.StudentID.String()).
		Str("webcam", string(session.WebcamStatus)).
		Int("max_warnings", l.settings.MaxWarnings).
		Dur("duration", l.settings.Duration).
		Msg("Exam session started")

	return session, nil
}

// Submit finishes the attempt. Returns false when it was already terminal.
func (l *Lifecycle) Submit(ctx context.Context) bool {
	return l.finalize(ctx, model.SessionStatusFinished, ReasonSubmitted)
}

// Terminate ends the attempt as TERMINATED. Returns false when it was already terminal.
func (l *Lifecycle) Terminate(ctx context.Context, reason string) bool {
	if reason == "" {
		reason = ReasonTerminatedByExaminer
	}
	return l.finalize(ctx, model.SessionStatusTerminated, reason)
}

func (l *Lifecycle) expire() {
	l.finalize(context.Background(), model.SessionStatusFinished, ReasonTimeExpired)
}

// finalization carries what finish needs after the state flipped under the lock.
type finalization struct {
	session model.ExamSession
	stopped *model.RecordingSegment
}

func (l *Lifecycle) finalize(ctx context.Context, target model.SessionStatus, reason string) bool {
	l.mu.Lock()
	f, ok := l.finalizeLocked(target, reason)
	l.mu.Unlock()
	if !ok {
		return false
	}
	l.finish(ctx, f)
	return true
}

// finalizeLocked performs the terminal transition. Caller holds l.mu.
func (l *Lifecycle) finalizeLocked(target model.SessionStatus, reason string) (finalization, bool) {
	if l.session.Status != model.SessionStatusActive {
		return finalization{}, false
	}

	now := l.deps.Now()
	var f finalization
	if l.recording.Current() == model.RecordingActive {
		seg := l.recording.Append(newSegment(l.session.ID, nil, model.RecordingStopped, now))
		f.stopped = &seg
	}

	l.session.Status = target
	l.session.WebcamStatus = model.WebcamOff
	l.session.EndTime = &now
	l.session.EndReason = reason
	f.session = l.session
	return f, true
}

// finish runs the side effects of a terminal transition. Every step is
// attempted; failures are joined and logged.
func (l *Lifecycle) finish(ctx context.Context, f finalization) {
	ctx = context.WithoutCancel(ctx)

	l.timer.Cancel()
	l.detector.Stop()

	var errs []error
	if err := l.releaseCamera(ctx); err != nil {
		errs = append(errs, fmt.Errorf("release camera: %w", err))
	}
	if f.stopped != nil {
		if err := l.deps.Journal.RecordingAppended(ctx, *f.stopped); err != nil {
			errs = append(errs, err)
		}
	}
	if err := l.deps.Journal.SessionSaved(ctx, f.session); err != nil {
		errs = append(errs, err)
	}

	kind := model.NotificationFinished
	if f.session.Status == model.SessionStatusTerminated {
		kind = model.NotificationTermination
	}
	l.deps.Notifier.Notify(ctx, l.notification(kind, f.session, model.RecordingStopped, f.session.EndReason))

	close(l.done)

	if err := errors.Join(errs...); err != nil {
		l.log.Warn().Err(err).Msg("Finalize side effects failed")
	}
	l.log.Info().
		Str("status", string(f.session.Status)).
		Str("reason", f.session.EndReason).
		Int("warning_count", f.session.WarningCount).
		Msg("Exam session finalized")
}

// releaseCamera releases the lease exactly once across finalize and teardown.
func (l *Lifecycle) releaseCamera(ctx context.Context) error {
	var err error
	l.releaseOnce.Do(func() {
		l.mu.Lock()
		lease := l.lease
		l.lease = nil
		l.released = true
		l.mu.Unlock()

		if lease != nil {
			err = lease.Release(ctx)
		}
	})
	return err
}

// ReleaseCamera is the external teardown path (client gone). It shares the
// once-only release with finalize and turns the webcam off while ACTIVE.
func (l *Lifecycle) ReleaseCamera(ctx context.Context) {
	ctx = context.WithoutCancel(ctx)

	l.mu.Lock()
	var changed *model.ExamSession
	if l.session.Status == model.SessionStatusActive && l.session.WebcamStatus == model.WebcamOn {
		l.session.WebcamStatus = model.WebcamOff
		s := l.session
		changed = &s
	}
	l.mu.Unlock()

	if err := l.releaseCamera(ctx); err != nil {
		l.log.Warn().Err(err).Msg("Camera release failed")
	}
	if changed != nil {
		l.logPersist("session", l.deps.Journal.SessionSaved(ctx, *changed))
		l.deps.Notifier.Notify(ctx, l.notification(model.NotificationSessionUpdate, *changed, l.Recording(), "camera_released"))
	}
}

// SetWebcam toggles the webcam status. Only allowed while ACTIVE.
func (l *Lifecycle) SetWebcam(ctx context.Context, status model.WebcamStatus) (model.ExamSession, error) {
	if status != model.WebcamOn && status != model.WebcamOff {
		return model.ExamSession{}, fmt.Errorf("%w: webcam status %q", ErrValidation, status)
	}

	l.mu.Lock()
	if l.session.Status != model.SessionStatusActive {
		l.mu.Unlock()
		return model.ExamSession{}, ErrSessionNotActive
	}
	l.session.WebcamStatus = status
	session := l.session
	recording := l.recording.Current()
	l.mu.Unlock()

	ctx = context.WithoutCancel(ctx)
	l.logPersist("session", l.deps.Journal.SessionSaved(ctx, session))
	l.deps.Notifier.Notify(ctx, l.notification(model.NotificationSessionUpdate, session, recording, ""))
	return session, nil
}

// Attach subscribes the session's detector to an event source.
func (l *Lifecycle) Attach(src EventSource) { l.detector.Attach(src) }

// Observe classifies and reports one signal synchronously.
func (l *Lifecycle) Observe(s Signal) Outcome { return l.detector.Observe(s) }

// ID returns the session id.
func (l *Lifecycle) ID() uuid.UUID { return l.session.ID }

// ExamID returns the exam the attempt belongs to.
func (l *Lifecycle) ExamID() uuid.UUID { return l.session.ExamID }

// StudentID returns the student taking the attempt.
func (l *Lifecycle) StudentID() uuid.UUID { return l.session.StudentID }

// MaxWarnings returns the escalation threshold.
func (l *Lifecycle) MaxWarnings() int { return l.settings.MaxWarnings }

// Done is closed after the first terminal transition has run its side effects.
func (l *Lifecycle) Done() <-chan struct{} { return l.done }

// Snapshot returns a copy of the session.
func (l *Lifecycle) Snapshot() model.ExamSession {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.session
}

// Warnings returns the warning log, oldest first.
func (l *Lifecycle) Warnings() []model.Warning {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]model.Warning, len(l.warnings))
	copy(out, l.warnings)
	return out
}

// Answers returns the current answers ordered by submission time.
func (l *Lifecycle) Answers() []model.Answer {
	l.mu.Lock()
	out := make([]model.Answer, 0, len(l.answers))
	for _, a := range l.answers {
		out = append(out, a)
	}
	l.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out
}

// Remaining returns the seconds left on the timer; zero once terminal.
func (l *Lifecycle) Remaining() int {
	l.mu.Lock()
	terminal := l.session.Status.Terminal()
	l.mu.Unlock()
	if terminal {
		return 0
	}
	return l.timer.Remaining()
}

// Detail returns the session with its derived values.
func (l *Lifecycle) Detail() model.SessionDetail {
	return model.SessionDetail{
		ExamSession:      l.Snapshot(),
		Score:            l.Score(),
		MaxWarnings:      l.settings.MaxWarnings,
		RemainingSeconds: l.Remaining(),
		Recording:        l.Recording(),
	}
}

// LiveState is the monitor overlay of one live lifecycle.
type LiveState struct {
	Session          model.ExamSession
	Recording        model.RecordingStatus
	RemainingSeconds int
}

// State returns the monitor overlay.
func (l *Lifecycle) State() LiveState {
	l.mu.Lock()
	st := LiveState{Session: l.session, Recording: l.recording.Current()}
	l.mu.Unlock()
	if !st.Session.Status.Terminal() {
		st.RemainingSeconds = l.timer.Remaining()
	}
	return st
}

// suspend stops background work without a transition, for server shutdown.
func (l *Lifecycle) suspend() {
	l.timer.Cancel()
	l.detector.Stop()
}

func (l *Lifecycle) notification(kind model.NotificationKind, s model.ExamSession, rec model.RecordingStatus, reason string) model.Notification {
	return model.Notification{
		Kind:         kind,
		SessionID:    s.ID,
		ExamID:       s.ExamID,
		StudentID:    s.StudentID,
		Status:       s.Status,
		WebcamStatus: s.WebcamStatus,
		WarningCount: s.WarningCount,
		Recording:    rec,
		Remaining:    l.policy.Remaining(s.WarningCount),
		Reason:       reason,
		Dismissable:  kind != model.NotificationTermination,
		At:           l.deps.Now(),
	}
}

func (l *Lifecycle) logPersist(op string, err error) {
	if err != nil {
		l.log.Warn().Err(err).Str("op", op).Msg("Persistence failed, state kept")
	}
}

// RestoreOptions rehydrate a persisted ACTIVE attempt after a restart.
type RestoreOptions struct {
	Session  model.ExamSession
	Warnings []model.Warning
	Answers  []model.Answer
	Segments []model.RecordingSegment
	Settings Settings
}

// Restore rebuilds an ACTIVE lifecycle from persisted state. The timer resumes
// from start time plus duration; the camera is not re-acquired.
func Restore(deps Deps, opts RestoreOptions) (*Lifecycle, error) {
	if opts.Session.Status != model.SessionStatusActive {
		return nil, ErrSessionNotActive
	}

	deps = deps.normalize()
	settings := opts.Settings.WithDefaults(Settings{})
	remaining := settings.Duration - deps.Now().Sub(opts.Session.StartTime)
	if remaining < 0 {
		remaining = 0
	}

	timed := settings
	timed.Duration = remaining
	l := New(deps, StartOptions{
		SessionID: opts.Session.ID,
		ExamID:    opts.Session.ExamID,
		StudentID: opts.Session.StudentID,
		Settings:  timed,
	})
	// New rounds a zero duration up to the default; restore the real one.
	l.timer = NewTimer(remaining, settings.TimerTick, l.expire)
	l.settings = settings

	l.session = opts.Session
	l.session.WebcamStatus = model.WebcamOff
	l.warnings = append(l.warnings, opts.Warnings...)
	l.session.WarningCount = len(l.warnings)
	for _, a := range opts.Answers {
		l.answers[a.QuestionID] = a
	}
	for _, seg := range opts.Segments {
		l.recording.Append(seg)
	}

	// An attempt restored over the limit terminates before the timer can run,
	// so an elapsed deadline never turns it into FINISHED.
	var (
		f          finalization
		terminated bool
	)
	l.mu.Lock()
	if l.policy.Exceeded(l.session.WarningCount) {
		f, terminated = l.finalizeLocked(model.SessionStatusTerminated, ReasonMaxWarnings)
	}
	l.mu.Unlock()

	l.log.Info().
		Int("warning_count", l.session.WarningCount).
		Int("remaining_seconds", l.timer.Remaining()).
		Bool("over_limit", terminated).
		Msg("Exam session restored")

	if terminated {
		l.finish(context.Background(), f)
		return l, nil
	}
	l.timer.Start()
	l.detector.Start()
	return l, nil
}
