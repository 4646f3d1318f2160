package websocket

import "github.com/stemsi/shikkha-backend/internal/quiz"

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionAnswer   Action = "answer"
	ActionNavigate Action = "navigate"
	ActionSubmit   Action = "submit"
	ActionPing     Action = "ping"
)

// RequestEnvelope is used to peek at the action before full parsing.
type RequestEnvelope struct {
	Action Action `json:"action"`
}

// AnswerRequest records the selected option of one question.
type AnswerRequest struct {
	Action   Action `json:"action"`
	Position int    `json:"position"`
	Option   int    `json:"option"`
}

// NavigateRequest moves the attempt cursor by Delta questions.
type NavigateRequest struct {
	Action Action `json:"action"`
	Delta  int    `json:"delta"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventState    Event = "state"
	EventSaved    Event = "saved"
	EventQuestion Event = "question"
	EventGraded   Event = "graded"
	EventError    Event = "error"
	EventPong     Event = "pong"
	EventPresence Event = "presence"
)

// StateResponse carries the full attempt snapshot, sent on connect.
type StateResponse struct {
	Event   Event       `json:"event"`
	Attempt interface{} `json:"attempt"`
}

type SavedResponse struct {
	Event         Event `json:"event"`
	Position      int   `json:"position"`
	Option        int   `json:"option"`
	AnsweredCount int   `json:"answered_count"`
}

type QuestionResponse struct {
	Event    Event       `json:"event"`
	Question interface{} `json:"question"`
}

// GradedResponse is pushed after a manual submit and after timer expiry.
type GradedResponse struct {
	Event  Event        `json:"event"`
	Result *quiz.Result `json:"result"`
	Saved  bool         `json:"saved"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Code  string `json:"code,omitempty"`
	Error string `json:"error"`
}

type PongResponse struct {
	Event Event `json:"event"`
}

// PresenceResponse relays one quiz-room event to an observer.
type PresenceResponse struct {
	Event    Event       `json:"event"`
	Presence interface{} `json:"presence"`
}
