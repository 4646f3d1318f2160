package quiz

import (
	"time"

	"github.com/google/uuid"
)

// Outcome classifies a single question in a scored attempt.
type Outcome string

const (
	OutcomeCorrect    Outcome = "CORRECT"
	OutcomeIncorrect  Outcome = "INCORRECT"
	OutcomeUnanswered Outcome = "UNANSWERED"
)

// SubmitReason records which path moved an attempt to Submitted.
type SubmitReason string

const (
	ReasonManual  SubmitReason = "MANUAL"
	ReasonExpired SubmitReason = "EXPIRED"
)

// QuestionOutcome is the per-question breakdown used for answer review.
type QuestionOutcome struct {
	Position      int     `json:"position"`
	Selected      *int    `json:"selected,omitempty"`
	CorrectOption int     `json:"correct_option"`
	Points        int     `json:"points"`
	Awarded       int     `json:"awarded"`
	Outcome       Outcome `json:"outcome"`
	Explanation   string  `json:"explanation,omitempty"`
}

// Result is the immutable scored outcome of a submitted attempt.
type Result struct {
	AttemptID        uuid.UUID         `json:"attempt_id"`
	QuizID           uuid.UUID         `json:"quiz_id"`
	ActorID          uuid.UUID         `json:"actor_id"`
	AchievedPoints   int               `json:"achieved_points"`
	TotalPoints      int               `json:"total_points"`
	Correct          int               `json:"correct"`
	Incorrect        int               `json:"incorrect"`
	Unanswered       int               `json:"unanswered"`
	TimeTakenSeconds int               `json:"time_taken_seconds"`
	Percentage       int               `json:"percentage"`
	Reason           SubmitReason      `json:"reason,omitempty"`
	SubmittedAt      time.Time         `json:"submitted_at"`
	Outcomes         []QuestionOutcome `json:"outcomes"`
}

// Submission is the scorer input captured from an attempt.
type Submission struct {
	AttemptID        uuid.UUID
	ActorID          uuid.UUID
	Answers          map[int]int
	RemainingSeconds int
}

// Score grades a submission against the quiz's answer key. It is pure:
// Reason and SubmittedAt are left for the caller to stamp.
// Answers for positions outside the quiz are ignored.
func Score(q *Quiz, s Submission) Result {
	res := Result{
		AttemptID:   s.AttemptID,
		QuizID:      q.ID,
		ActorID:     s.ActorID,
		TotalPoints: q.TotalPoints(),
		Outcomes:    make([]QuestionOutcome, len(q.Questions)),
	}

	for p, question := range q.Questions {
		out := QuestionOutcome{
			Position:      p,
			CorrectOption: question.CorrectOption,
			Points:        question.Points,
			Explanation:   question.Explanation,
		}
		selected, answered := s.Answers[p]
		switch {
		case !answered:
			out.Outcome = OutcomeUnanswered
			res.Unanswered++
		case selected == question.CorrectOption:
			out.Selected = &selected
			out.Outcome = OutcomeCorrect
			out.Awarded = question.Points
			res.Correct++
			res.AchievedPoints += question.Points
		default:
			out.Selected = &selected
			out.Outcome = OutcomeIncorrect
			res.Incorrect++
		}
		res.Outcomes[p] = out
	}

	res.Percentage = percentage(res.AchievedPoints, res.TotalPoints)

	taken := q.TimeLimitSeconds() - s.RemainingSeconds
	if taken < 0 {
		taken = 0
	}
	res.TimeTakenSeconds = taken
	return res
}

// percentage is round-half-up of achieved/total*100; 0 when total is 0.
func percentage(achieved, total int) int {
	if total <= 0 {
		return 0
	}
	return (achieved*200 + total) / (2 * total)
}
