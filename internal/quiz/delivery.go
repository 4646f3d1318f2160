package quiz

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Catalog is the read-only quiz persistence boundary.
type Catalog interface {
	FetchQuiz(ctx context.Context, id uuid.UUID) (*Quiz, error)
	ListActiveQuizzes(ctx context.Context, courseID *uuid.UUID) ([]Quiz, error)
}

// Delivery hands quizzes to identified actors. Identity is verified by the
// caller before any method here is reached.
type Delivery struct {
	catalog Catalog
	now     func() time.Time
}

// NewDelivery creates a Delivery. A nil clock uses time.Now.
func NewDelivery(catalog Catalog, now func() time.Time) *Delivery {
	if now == nil {
		now = time.Now
	}
	return &Delivery{catalog: catalog, now: now}
}

// LoadForActor fetches a quiz the actor may start right now.
func (d *Delivery) LoadForActor(ctx context.Context, quizID, actorID uuid.UUID) (*Quiz, error) {
	q, err := d.catalog.FetchQuiz(ctx, quizID)
	if err != nil {
		return nil, err
	}
	if err := q.CheckAvailable(d.now()); err != nil {
		return nil, err
	}
	return q, nil
}

// Begin loads the quiz and returns a started attempt for the actor.
func (d *Delivery) Begin(ctx context.Context, quizID, actorID uuid.UUID) (*Attempt, error) {
	q, err := d.LoadForActor(ctx, quizID, actorID)
	if err != nil {
		return nil, err
	}
	a := NewAttempt(q, actorID)
	if err := a.Start(d.now()); err != nil {
		return nil, err
	}
	return a, nil
}

// Now exposes the delivery clock so callers stamp results consistently.
func (d *Delivery) Now() time.Time {
	return d.now()
}
