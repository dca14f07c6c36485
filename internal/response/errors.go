package response

// ErrCode identifies an API error to clients.
type ErrCode string

const (
	// Authentication
	ErrTokenRequired ErrCode = "TOKEN_REQUIRED"
	ErrTokenInvalid  ErrCode = "TOKEN_INVALID"
	ErrTokenExpired  ErrCode = "TOKEN_EXPIRED"

	// Authorization
	ErrForbidden          ErrCode = "FORBIDDEN"
	ErrStudentAccessOnly  ErrCode = "STUDENT_ACCESS_ONLY"
	ErrExaminerAccessOnly ErrCode = "EXAMINER_ACCESS_ONLY"
	ErrNotSessionOwner    ErrCode = "NOT_SESSION_OWNER"
	ErrNotExamOwner       ErrCode = "NOT_EXAM_OWNER"

	// Validation
	ErrValidation ErrCode = "VALIDATION_ERROR"
	ErrInvalidID  ErrCode = "INVALID_ID"

	// Resources
	ErrNotFound ErrCode = "NOT_FOUND"

	// Session-specific
	ErrSessionNotActive     ErrCode = "SESSION_NOT_ACTIVE"
	ErrSessionAlreadyActive ErrCode = "SESSION_ALREADY_STARTED"
	ErrUnknownQuestion      ErrCode = "UNKNOWN_QUESTION"

	// Rate Limiting
	ErrRateLimitExceeded ErrCode = "RATE_LIMIT_EXCEEDED"

	// Server
	ErrInternal ErrCode = "INTERNAL_ERROR"
)

// GetMessage returns the message shown for code.
func GetMessage(code ErrCode) string {
	switch code {
	// Authentication
	case ErrTokenRequired:
		return "Authentication token is required."
	case ErrTokenInvalid:
		return "Authentication token is invalid."
	case ErrTokenExpired:
		return "Authentication token has expired."

	// Authorization
	case ErrForbidden:
		return "You do not have permission to access this resource."
	case ErrStudentAccessOnly:
		return "This resource is restricted to students."
	case ErrExaminerAccessOnly:
		return "This resource is restricted to examiners."
	case ErrNotSessionOwner:
		return "This exam session belongs to another student."
	case ErrNotExamOwner:
		return "This exam belongs to another examiner."

	// Validation
	case ErrValidation:
		return "Validation failed. Please check your input."
	case ErrInvalidID:
		return "Invalid ID format."

	// Resources
	case ErrNotFound:
		return "Resource not found."

	// Session-specific
	case ErrSessionNotActive:
		return "The exam session is not active."
	case ErrSessionAlreadyActive:
		return "You have already started this exam."
	case ErrUnknownQuestion:
		return "The question does not belong to this exam."

	// Rate Limiting
	case ErrRateLimitExceeded:
		return "Too many requests. Please try again later."

	// Server
	case ErrInternal:
		return "An internal server error occurred."
	default:
		return "An unexpected error occurred."
	}
}
