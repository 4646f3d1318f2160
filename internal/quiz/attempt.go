package quiz

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// State is the submission state of an attempt.
type State string

const (
	StateNotStarted State = "NOT_STARTED"
	StateInProgress State = "IN_PROGRESS"
	StateSubmitted  State = "SUBMITTED"
)

// Attempt is one actor's pass through a quiz. It is safe for concurrent use
// so the owning session and its timer can both drive it.
type Attempt struct {
	ID      uuid.UUID
	ActorID uuid.UUID

	quiz *Quiz

	mu        sync.Mutex
	state     State
	position  int
	answers   map[int]int
	remaining int
	startedAt time.Time
	result    *Result
	abandoned bool
	done      chan struct{}
}

// NewAttempt creates a NotStarted attempt with a full time budget.
func NewAttempt(q *Quiz, actorID uuid.UUID) *Attempt {
	return &Attempt{
		ID:        uuid.New(),
		ActorID:   actorID,
		quiz:      q,
		state:     StateNotStarted,
		answers:   make(map[int]int),
		remaining: q.TimeLimitSeconds(),
		done:      make(chan struct{}),
	}
}

// Quiz returns the definition the attempt was started against.
func (a *Attempt) Quiz() *Quiz {
	return a.quiz
}

// Start moves NotStarted → InProgress. Starting an InProgress attempt is a no-op.
func (a *Attempt) Start(now time.Time) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	switch a.state {
	case StateSubmitted:
		return ErrAlreadySubmitted
	case StateInProgress:
		return nil
	}
	a.state = StateInProgress
	a.startedAt = now
	return nil
}

// Record stores optionIndex as the answer at questionPosition, replacing any
// earlier answer. A rejected call leaves the answers untouched.
func (a *Attempt) Record(questionPosition, optionIndex int) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.mutableLocked(); err != nil {
		return err
	}
	if questionPosition < 0 || questionPosition >= len(a.quiz.Questions) {
		return &RangeError{Field: "question position", Index: questionPosition, Len: len(a.quiz.Questions)}
	}
	options := len(a.quiz.Questions[questionPosition].Options)
	if optionIndex < 0 || optionIndex >= options {
		return &RangeError{Field: "option index", Index: optionIndex, Len: options}
	}

	a.answers[questionPosition] = optionIndex
	return nil
}

// AnsweredCount is the number of distinct positions with an answer.
func (a *Attempt) AnsweredCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.answers)
}

// Answers returns a copy of the answer map.
func (a *Attempt) Answers() map[int]int {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make(map[int]int, len(a.answers))
	for k, v := range a.answers {
		out[k] = v
	}
	return out
}

// Current returns the question at the attempt's position.
func (a *Attempt) Current() (Question, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if len(a.quiz.Questions) == 0 {
		return Question{}, &RangeError{Field: "question position", Index: a.position, Len: 0}
	}
	return a.quiz.Questions[a.position], nil
}

// Position is the current navigation index.
func (a *Attempt) Position() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.position
}

// Advance moves the position by delta, clamped to the question range.
// Moving past either end leaves the position at the boundary.
func (a *Attempt) Advance(delta int) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.mutableLocked(); err != nil {
		return a.position, err
	}

	last := len(a.quiz.Questions) - 1
	p := a.position + delta
	if p > last {
		p = last
	}
	if p < 0 {
		p = 0
	}
	a.position = p
	return p, nil
}

// Remaining is the number of seconds left on the countdown.
func (a *Attempt) Remaining() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.remaining
}

// StartedAt is when the attempt entered InProgress.
func (a *Attempt) StartedAt() time.Time {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.startedAt
}

// State returns the current submission state.
func (a *Attempt) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Tick consumes one second of the countdown. expired is true exactly when
// this tick brought the remaining time to zero.
func (a *Attempt) Tick() (remaining int, expired bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.state != StateInProgress || a.abandoned || a.remaining <= 0 {
		return a.remaining, false
	}
	a.remaining--
	return a.remaining, a.remaining == 0
}

// Submit is the single InProgress → Submitted transition shared by manual
// submission and timer expiry. The first call scores the attempt and returns
// first=true; later calls return the stored Result with first=false.
func (a *Attempt) Submit(reason SubmitReason, at time.Time) (Result, bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	switch {
	case a.state == StateSubmitted:
		return *a.result, false, nil
	case a.state == StateNotStarted:
		return Result{}, false, ErrNotStarted
	case a.abandoned:
		return Result{}, false, ErrAbandoned
	}

	res := Score(a.quiz, Submission{
		AttemptID:        a.ID,
		ActorID:          a.ActorID,
		Answers:          a.answers,
		RemainingSeconds: a.remaining,
	})
	res.Reason = reason
	res.SubmittedAt = at

	a.result = &res
	a.state = StateSubmitted
	close(a.done)
	return res, true, nil
}

// Abandon freezes an InProgress attempt without scoring it. The state stays
// InProgress; every later mutation, submission or second Abandon fails with
// ErrAbandoned. Abandon and Submit exclude each other: exactly one wins.
func (a *Attempt) Abandon() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.mutableLocked(); err != nil {
		return err
	}
	a.abandoned = true
	return nil
}

// Abandoned reports whether Abandon succeeded on the attempt.
func (a *Attempt) Abandoned() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.abandoned
}

// Result returns the stored result once the attempt is submitted.
func (a *Attempt) Result() (Result, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.result == nil {
		return Result{}, false
	}
	return *a.result, true
}

// Done is closed when the attempt is submitted.
func (a *Attempt) Done() <-chan struct{} {
	return a.done
}

// elapse consumes seconds of the countdown at once, flooring at zero.
func (a *Attempt) elapse(seconds int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if seconds <= 0 {
		return
	}
	a.remaining -= seconds
	if a.remaining < 0 {
		a.remaining = 0
	}
}

func (a *Attempt) mutableLocked() error {
	switch a.state {
	case StateSubmitted:
		return ErrAlreadySubmitted
	case StateNotStarted:
		return ErrNotStarted
	}
	if a.abandoned {
		return ErrAbandoned
	}
	return nil
}

// SubmitSnapshot rebuilds a whole attempt delivered in one request and
// submits it: the answer map and elapsed time go through the same
// Record/Submit path as an interactive attempt. The returned attempt is in
// the Submitted state and carries the Result.
func SubmitSnapshot(q *Quiz, attemptID, actorID uuid.UUID, answers map[int]int, elapsedSeconds int, at time.Time) (*Attempt, error) {
	a := NewAttempt(q, actorID)
	if attemptID != uuid.Nil {
		a.ID = attemptID
	}
	if err := a.Start(at); err != nil {
		return nil, err
	}
	for position, option := range answers {
		if err := a.Record(position, option); err != nil {
			return nil, err
		}
	}
	a.elapse(elapsedSeconds)

	if _, _, err := a.Submit(ReasonManual, at); err != nil {
		return nil, err
	}
	return a, nil
}
