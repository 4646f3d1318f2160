package response

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Authentication ────────────────────────────────────────────────
	ErrInvalidCredentials ErrCode = "INVALID_CREDENTIALS"
	ErrSessionInvalidated ErrCode = "SESSION_INVALIDATED"
	ErrTokenRequired      ErrCode = "TOKEN_REQUIRED"
	ErrTokenInvalid       ErrCode = "TOKEN_INVALID"
	ErrTokenExpired       ErrCode = "TOKEN_EXPIRED"
	ErrEmailTaken         ErrCode = "EMAIL_TAKEN"

	// ─── Authorization ─────────────────────────────────────────────────
	ErrForbidden     ErrCode = "FORBIDDEN"
	ErrNotQuizAuthor ErrCode = "NOT_QUIZ_AUTHOR"

	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation     ErrCode = "VALIDATION_ERROR"
	ErrInvalidID      ErrCode = "INVALID_ID"
	ErrInvalidPayload ErrCode = "INVALID_PAYLOAD"

	// ─── Resources ─────────────────────────────────────────────────────
	ErrNotFound        ErrCode = "NOT_FOUND"
	ErrConflict        ErrCode = "CONFLICT"
	ErrAlreadyEnrolled ErrCode = "ALREADY_ENROLLED"
	ErrCourseNotFound  ErrCode = "COURSE_NOT_FOUND"
	ErrQuizNotFound    ErrCode = "QUIZ_NOT_FOUND"
	ErrAttemptNotFound ErrCode = "ATTEMPT_NOT_FOUND"

	// ─── Quiz attempts ─────────────────────────────────────────────────
	ErrQuizNotAvailable ErrCode = "QUIZ_NOT_AVAILABLE"
	ErrOutOfRange       ErrCode = "OUT_OF_RANGE"
	ErrAlreadySubmitted ErrCode = "ALREADY_SUBMITTED"
	ErrNotStarted       ErrCode = "NOT_STARTED"
	ErrAttemptAbandoned ErrCode = "ATTEMPT_ABANDONED"
	ErrAttemptIDTaken   ErrCode = "ATTEMPT_ID_TAKEN"
	ErrResultNotSaved   ErrCode = "RESULT_NOT_SAVED"

	// ─── Rate Limiting ─────────────────────────────────────────────────
	ErrRateLimitExceeded ErrCode = "RATE_LIMIT_EXCEEDED"

	// ─── Server ────────────────────────────────────────────────────────
	ErrInternal ErrCode = "INTERNAL_ERROR"
)

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	switch code {
	// ─── Authentication ────────────────────────────────────────────────
	case ErrInvalidCredentials:
		return "Incorrect email or password."
	case ErrSessionInvalidated:
		return "Your session has ended. Please log in again."
	case ErrTokenRequired:
		return "An authentication token is required."
	case ErrTokenInvalid:
		return "The authentication token is invalid."
	case ErrTokenExpired:
		return "The authentication token has expired."
	case ErrEmailTaken:
		return "An account with this email already exists."

	// ─── Authorization ─────────────────────────────────────────────────
	case ErrForbidden:
		return "You do not have permission to access this resource."
	case ErrNotQuizAuthor:
		return "Only the quiz author can change this quiz."

	// ─── Validation ────────────────────────────────────────────────────
	case ErrValidation:
		return "Validation failed. Please check your input."
	case ErrInvalidID:
		return "Invalid ID format."
	case ErrInvalidPayload:
		return "Invalid request payload."

	// ─── Resources ─────────────────────────────────────────────────────
	case ErrNotFound:
		return "Resource not found."
	case ErrConflict:
		return "Resource already exists."
	case ErrAlreadyEnrolled:
		return "You are already enrolled in this course."
	case ErrCourseNotFound:
		return "Course not found."
	case ErrQuizNotFound:
		return "Quiz not found."
	case ErrAttemptNotFound:
		return "Attempt not found."

	// ─── Quiz attempts ─────────────────────────────────────────────────
	case ErrQuizNotAvailable:
		return "This quiz is not available right now."
	case ErrOutOfRange:
		return "Question or option index is out of range."
	case ErrAlreadySubmitted:
		return "This attempt has already been submitted."
	case ErrNotStarted:
		return "This attempt has not started."
	case ErrAttemptAbandoned:
		return "This attempt was abandoned."
	case ErrAttemptIDTaken:
		return "This attempt ID is already in use."
	case ErrResultNotSaved:
		return "Your result was graded but could not be saved."

	// ─── Rate Limiting ─────────────────────────────────────────────────
	case ErrRateLimitExceeded:
		return "Too many requests. Please try again later."

	// ─── Server ────────────────────────────────────────────────────────
	case ErrInternal:
		return "Internal server error."
	default:
		return "An unexpected error occurred."
	}
}
