package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/shikkha-backend/internal/metrics"
	"github.com/stemsi/shikkha-backend/internal/quiz"
	"github.com/stemsi/shikkha-backend/internal/repository"
)

// tickInterval is the countdown resolution of every attempt timer.
const tickInterval = time.Second

var (
	ErrResultNotSaved   = errors.New("result could not be saved")
	ErrAttemptAbandoned = quiz.ErrAbandoned
	ErrAttemptIDTaken   = errors.New("attempt id already in use")
)

// ResultSink is the result persistence boundary. Save is called exactly once
// per submitted attempt.
type ResultSink interface {
	Save(ctx context.Context, res quiz.Result) error
}

// ResultLookup reads results that already reached storage. Missing results
// are reported as repository.ErrNotFound.
type ResultLookup interface {
	GetByAttempt(ctx context.Context, attemptID uuid.UUID) (*quiz.Result, error)
}

// AttemptView is the actor-facing snapshot of an attempt.
type AttemptView struct {
	ID               uuid.UUID    `json:"id"`
	QuizID           uuid.UUID    `json:"quiz_id"`
	State            quiz.State   `json:"state"`
	Abandoned        bool         `json:"abandoned"`
	Position         int          `json:"position"`
	QuestionCount    int          `json:"question_count"`
	AnsweredCount    int          `json:"answered_count"`
	Answers          map[int]int  `json:"answers"`
	RemainingSeconds int          `json:"remaining_seconds"`
	StartedAt        time.Time    `json:"started_at"`
	Result           *quiz.Result `json:"result,omitempty"`
}

// QuestionView is the current question without its answer key.
type QuestionView struct {
	quiz.QuestionForStudent
	Selected *int `json:"selected,omitempty"`
}

type actorQuiz struct {
	actor uuid.UUID
	quiz  uuid.UUID
}

// session is the registry entry for one attempt.
type session struct {
	attempt    *quiz.Attempt
	timer      *quiz.Timer
	snapshot   bool
	finishedAt time.Time
	saveErr    error
	settled    chan struct{}
}

// AttemptServiceOption customizes an AttemptService.
type AttemptServiceOption func(*AttemptService)

// WithResultLookup lets snapshot submits find results of earlier requests
// that have already been evicted from memory.
func WithResultLookup(l ResultLookup) AttemptServiceOption {
	return func(s *AttemptService) { s.results = l }
}

// WithTimerOptions passes options to every attempt timer.
func WithTimerOptions(opts ...quiz.TimerOption) AttemptServiceOption {
	return func(s *AttemptService) { s.timerOpts = opts }
}

// AttemptService owns all in-progress attempts of this process. Every
// attempt is reachable only by the actor that started it.
type AttemptService struct {
	delivery  *quiz.Delivery
	sink      ResultSink
	notifier  Notifier
	results   ResultLookup
	log       zerolog.Logger
	timerOpts []quiz.TimerOption

	mu       sync.Mutex
	sessions map[uuid.UUID]*session
	active   map[actorQuiz]uuid.UUID
}

// NewAttemptService creates a new AttemptService.
func NewAttemptService(
	delivery *quiz.Delivery,
	sink ResultSink,
	notifier Notifier,
	log zerolog.Logger,
	opts ...AttemptServiceOption,
) *AttemptService {
	s := &AttemptService{
		delivery: delivery,
		sink:     sink,
		notifier: notifier,
		log:      log.With().Str("component", "attempt_service").Logger(),
		sessions: make(map[uuid.UUID]*session),
		active:   make(map[actorQuiz]uuid.UUID),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ─── Lifecycle ──────────────────────────────────────────────────────

// Start begins an attempt, or returns the actor's attempt already in
// progress for this quiz.
func (s *AttemptService) Start(ctx context.Context, quizID, actorID uuid.UUID) (*AttemptView, error) {
	key := actorQuiz{actor: actorID, quiz: quizID}

	s.mu.Lock()
	if id, ok := s.active[key]; ok {
		if sess := s.sessions[id]; sess != nil && sess.attempt.State() == quiz.StateInProgress {
			s.mu.Unlock()
			return s.view(sess), nil
		}
	}
	s.mu.Unlock()

	a, err := s.delivery.Begin(ctx, quizID, actorID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	// Another request from the same actor may have won the race.
	if id, ok := s.active[key]; ok {
		if sess := s.sessions[id]; sess != nil && sess.attempt.State() == quiz.StateInProgress {
			s.mu.Unlock()
			return s.view(sess), nil
		}
	}
	sess := &session{attempt: a, settled: make(chan struct{})}
	s.sessions[a.ID] = sess
	s.active[key] = a.ID
	sess.timer = quiz.StartTimer(a, tickInterval, func(res quiz.Result) {
		s.afterSubmit(context.Background(), sess, res)
	}, s.timerOpts...)
	s.mu.Unlock()

	metrics.AttemptsStarted.Inc()
	metrics.AttemptsActive.Inc()
	s.log.Info().
		Str("attempt_id", a.ID.String()).
		Str("quiz_id", quizID.String()).
		Str("actor_id", actorID.String()).
		Int("time_limit_seconds", a.Remaining()).
		Msg("Attempt started")

	s.notifier.Notify(ctx, PresenceEvent{
		Type:      EventAttemptStarted,
		QuizID:    quizID,
		AttemptID: a.ID,
		ActorID:   actorID,
		At:        a.StartedAt(),
	})
	return s.view(sess), nil
}

// Get returns the actor's attempt.
func (s *AttemptService) Get(attemptID, actorID uuid.UUID) (*AttemptView, error) {
	sess, err := s.lookup(attemptID, actorID)
	if err != nil {
		return nil, err
	}
	return s.view(sess), nil
}

// Current returns the question at the attempt's position.
func (s *AttemptService) Current(attemptID, actorID uuid.UUID) (*QuestionView, error) {
	sess, err := s.lookupLive(attemptID, actorID)
	if err != nil {
		return nil, err
	}
	return currentQuestion(sess.attempt)
}

// Navigate moves the position by delta, clamped to the question range.
func (s *AttemptService) Navigate(attemptID, actorID uuid.UUID, delta int) (*QuestionView, error) {
	sess, err := s.lookupLive(attemptID, actorID)
	if err != nil {
		return nil, err
	}
	if _, err := sess.attempt.Advance(delta); err != nil {
		return nil, err
	}
	return currentQuestion(sess.attempt)
}

// Answer records the selected option for a question.
func (s *AttemptService) Answer(ctx context.Context, attemptID, actorID uuid.UUID, position, option int) (*AttemptView, error) {
	sess, err := s.lookupLive(attemptID, actorID)
	if err != nil {
		return nil, err
	}
	a := sess.attempt
	if err := a.Record(position, option); err != nil {
		return nil, err
	}

	answered := a.AnsweredCount()
	s.notifier.Notify(ctx, PresenceEvent{
		Type:          EventAnswerSelected,
		QuizID:        a.Quiz().ID,
		AttemptID:     a.ID,
		ActorID:       actorID,
		Position:      &position,
		AnsweredCount: &answered,
		At:            time.Now(),
	})
	return s.view(sess), nil
}

// Submit finishes the attempt. A repeated submit returns the stored result.
// Unanswered questions never block submission.
func (s *AttemptService) Submit(ctx context.Context, attemptID, actorID uuid.UUID) (*quiz.Result, error) {
	sess, err := s.lookup(attemptID, actorID)
	if err != nil {
		return nil, err
	}

	// Fails with ErrAttemptAbandoned once Abandon has won.
	res, first, err := sess.attempt.Submit(quiz.ReasonManual, s.delivery.Now())
	if err != nil {
		return nil, err
	}
	if first {
		s.afterSubmit(ctx, sess, res)
	} else {
		// The timer may still be persisting its own submission.
		select {
		case <-sess.settled:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return s.settledResult(sess, res)
}

// Abandon stops the attempt's timer. The attempt stays in progress with no
// result and can no longer be mutated through the service.
func (s *AttemptService) Abandon(ctx context.Context, attemptID, actorID uuid.UUID) error {
	sess, err := s.lookupLive(attemptID, actorID)
	if err != nil {
		return err
	}

	a := sess.attempt

	// Fails with ErrAlreadySubmitted if a submit, manual or expiry, got
	// there first.
	if err := a.Abandon(); err != nil {
		return err
	}
	if sess.timer != nil {
		sess.timer.Stop()
	}

	s.mu.Lock()
	sess.finishedAt = time.Now()
	delete(s.active, actorQuiz{actor: a.ActorID, quiz: a.Quiz().ID})
	s.mu.Unlock()

	metrics.AttemptsActive.Dec()
	metrics.AttemptsAbandoned.Inc()
	s.log.Info().
		Str("attempt_id", a.ID.String()).
		Int("remaining_seconds", a.Remaining()).
		Msg("Attempt abandoned")

	s.notifier.Notify(ctx, PresenceEvent{
		Type:      EventAttemptAbandoned,
		QuizID:    a.Quiz().ID,
		AttemptID: a.ID,
		ActorID:   actorID,
		At:        time.Now(),
	})
	return nil
}

// Done returns a channel closed once the attempt has been submitted by
// either path and its result handed to persistence.
func (s *AttemptService) Done(attemptID, actorID uuid.UUID) (<-chan struct{}, error) {
	sess, err := s.lookup(attemptID, actorID)
	if err != nil {
		return nil, err
	}
	return sess.settled, nil
}

// Result returns the stored result of a settled attempt, together with
// ErrResultNotSaved if persistence failed.
func (s *AttemptService) Result(attemptID, actorID uuid.UUID) (*quiz.Result, error) {
	sess, err := s.lookup(attemptID, actorID)
	if err != nil {
		return nil, err
	}
	res, ok := sess.attempt.Result()
	if !ok {
		return nil, quiz.ErrNotStarted
	}
	return s.settledResult(sess, res)
}

// ActiveCount reports attempts of quizID currently in progress.
func (s *AttemptService) ActiveCount(quizID uuid.UUID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for key, id := range s.active {
		if key.quiz != quizID {
			continue
		}
		if sess := s.sessions[id]; sess != nil && sess.attempt.State() == quiz.StateInProgress {
			n++
		}
	}
	return n
}

// SubmitSnapshot scores a whole attempt sent in one request and persists it.
// A supplied attemptID makes client retries idempotent: a retry by the same
// actor returns the result of the first request unchanged, while an ID that
// belongs to another actor, another quiz or an interactive attempt fails
// with ErrAttemptIDTaken.
func (s *AttemptService) SubmitSnapshot(
	ctx context.Context,
	quizID, actorID uuid.UUID,
	attemptID *uuid.UUID,
	answers map[int]int,
	elapsedSeconds int,
) (*quiz.Result, error) {
	id := uuid.New()
	if attemptID != nil && *attemptID != uuid.Nil {
		id = *attemptID
		if res, err := s.priorSnapshot(ctx, id, quizID, actorID); res != nil || err != nil {
			return res, err
		}
	}

	q, err := s.delivery.LoadForActor(ctx, quizID, actorID)
	if err != nil {
		return nil, err
	}
	a, err := quiz.SubmitSnapshot(q, id, actorID, answers, elapsedSeconds, s.delivery.Now())
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	if _, ok := s.sessions[id]; ok {
		// A concurrent request with the same ID registered first.
		s.mu.Unlock()
		res, err := s.priorSnapshot(ctx, id, quizID, actorID)
		if res == nil && err == nil {
			err = ErrAttemptIDTaken
		}
		return res, err
	}
	sess := &session{attempt: a, snapshot: true, settled: make(chan struct{})}
	s.sessions[id] = sess
	s.mu.Unlock()

	res, _ := a.Result()
	s.afterSubmit(ctx, sess, res)
	return s.settledResult(sess, res)
}

// priorSnapshot resolves an attempt ID the client chose. It returns a nil
// result and nil error when the ID has never been used.
func (s *AttemptService) priorSnapshot(ctx context.Context, id, quizID, actorID uuid.UUID) (*quiz.Result, error) {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	s.mu.Unlock()

	if ok {
		a := sess.attempt
		if !sess.snapshot || a.ActorID != actorID || a.Quiz().ID != quizID {
			return nil, ErrAttemptIDTaken
		}
		select {
		case <-sess.settled:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		res, _ := a.Result()
		return s.settledResult(sess, res)
	}

	if s.results == nil {
		return nil, nil
	}
	stored, err := s.results.GetByAttempt(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("look up attempt %s: %w", id, err)
	}
	if stored.ActorID != actorID || stored.QuizID != quizID {
		return nil, ErrAttemptIDTaken
	}
	return stored, nil
}

// ─── Housekeeping ───────────────────────────────────────────────────

// Sweep evicts attempts that finished (submitted or abandoned) more than
// retention ago. It returns the number evicted.
func (s *AttemptService) Sweep(now time.Time, retention time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	evicted := 0
	for id, sess := range s.sessions {
		if sess.finishedAt.IsZero() || now.Sub(sess.finishedAt) < retention {
			continue
		}
		delete(s.sessions, id)
		key := actorQuiz{actor: sess.attempt.ActorID, quiz: sess.attempt.Quiz().ID}
		if s.active[key] == id {
			delete(s.active, key)
		}
		evicted++
	}
	return evicted
}

// Len reports how many attempts the registry holds.
func (s *AttemptService) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Shutdown stops every running timer. In-progress attempts are left unscored.
func (s *AttemptService) Shutdown() {
	s.mu.Lock()
	timers := make([]*quiz.Timer, 0, len(s.sessions))
	for _, sess := range s.sessions {
		if sess.timer != nil {
			timers = append(timers, sess.timer)
		}
	}
	s.mu.Unlock()

	for _, t := range timers {
		t.Stop()
	}
}

// ─── Internals ──────────────────────────────────────────────────────

// afterSubmit runs once per attempt, on whichever path performed the
// submission: it persists, records metrics and notifies the room.
func (s *AttemptService) afterSubmit(ctx context.Context, sess *session, res quiz.Result) {
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	saveErr := s.sink.Save(saveCtx, res)

	s.mu.Lock()
	sess.finishedAt = time.Now()
	sess.saveErr = saveErr
	s.mu.Unlock()
	close(sess.settled)

	reason := string(res.Reason)
	if sess.snapshot {
		reason = "SNAPSHOT"
	} else {
		metrics.AttemptsActive.Dec()
	}
	metrics.AttemptsSubmitted.WithLabelValues(reason).Inc()
	metrics.ScorePercentage.Observe(float64(res.Percentage))

	logEvt := s.log.Info()
	if saveErr != nil {
		metrics.ResultSaveFailures.Inc()
		logEvt = s.log.Error().Err(saveErr)
	}
	logEvt.
		Str("attempt_id", res.AttemptID.String()).
		Str("quiz_id", res.QuizID.String()).
		Str("reason", reason).
		Int("achieved_points", res.AchievedPoints).
		Int("total_points", res.TotalPoints).
		Int("percentage", res.Percentage).
		Msg("Attempt submitted")

	pct := res.Percentage
	s.notifier.Notify(ctx, PresenceEvent{
		Type:       EventAttemptSubmitted,
		QuizID:     res.QuizID,
		AttemptID:  res.AttemptID,
		ActorID:    res.ActorID,
		Percentage: &pct,
		At:         res.SubmittedAt,
	})
}

// lookup finds an attempt owned by actorID. Attempts of other actors are
// reported as not found.
func (s *AttemptService) lookup(attemptID, actorID uuid.UUID) (*session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[attemptID]
	if !ok || sess.attempt.ActorID != actorID {
		return nil, quiz.ErrAttemptNotFound
	}
	return sess, nil
}

// lookupLive is lookup for operations that are refused on abandoned attempts.
func (s *AttemptService) lookupLive(attemptID, actorID uuid.UUID) (*session, error) {
	sess, err := s.lookup(attemptID, actorID)
	if err != nil {
		return nil, err
	}
	if s.isAbandoned(sess) {
		return nil, ErrAttemptAbandoned
	}
	return sess, nil
}

func (s *AttemptService) isAbandoned(sess *session) bool {
	return sess.attempt.Abandoned()
}

// settledResult pairs a submitted result with the outcome of its save.
func (s *AttemptService) settledResult(sess *session, res quiz.Result) (*quiz.Result, error) {
	s.mu.Lock()
	saveErr := sess.saveErr
	s.mu.Unlock()
	if saveErr != nil {
		return &res, fmt.Errorf("%w: %v", ErrResultNotSaved, saveErr)
	}
	return &res, nil
}

func (s *AttemptService) view(sess *session) *AttemptView {
	a := sess.attempt
	answers := a.Answers()
	v := &AttemptView{
		ID:               a.ID,
		QuizID:           a.Quiz().ID,
		State:            a.State(),
		Position:         a.Position(),
		QuestionCount:    len(a.Quiz().Questions),
		AnsweredCount:    len(answers),
		Answers:          answers,
		RemainingSeconds: a.Remaining(),
		StartedAt:        a.StartedAt(),
		Abandoned:        s.isAbandoned(sess),
	}
	if res, ok := a.Result(); ok {
		v.Result = &res
	}
	return v
}

func currentQuestion(a *quiz.Attempt) (*QuestionView, error) {
	q, err := a.Current()
	if err != nil {
		return nil, err
	}
	v := &QuestionView{
		QuestionForStudent: quiz.QuestionForStudent{
			Position: q.Position,
			Prompt:   q.Prompt,
			Options:  q.Options,
			Points:   q.Points,
		},
	}
	if sel, ok := a.Answers()[q.Position]; ok {
		v.Selected = &sel
	}
	return v, nil
}
