package services

import (
	"errors"
)

// Kind classifies a failure so the HTTP layer can choose a status code.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindConfig
	KindMissingBaseURL
	KindInvalidToken
	KindSignatureMismatch
	KindTokenExpired
	KindSessionNotFound
	KindPolicyViolation
	KindTooManyAttempts
	KindPersonNotFound
	KindWrongTokenType
	KindStore
)

var kindNames = map[Kind]string{
	KindInternal:          "Internal",
	KindValidation:        "ValidationError",
	KindConfig:            "ConfigError",
	KindMissingBaseURL:    "MissingBaseUrl",
	KindInvalidToken:      "InvalidToken",
	KindSignatureMismatch: "SignatureMismatch",
	KindTokenExpired:      "TokenExpired",
	KindSessionNotFound:   "SessionNotFound",
	KindPolicyViolation:   "PolicyViolation",
	KindTooManyAttempts:   "TooManyAttempts",
	KindPersonNotFound:    "PersonNotFound",
	KindWrongTokenType:    "WrongTokenType",
	KindStore:             "StoreWriteFailed",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "Unknown"
}

// Error carries a caller-facing Message; Err holds the underlying cause,
// which is logged but never sent to clients.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Kind.String() + ": " + e.Message + ": " + e.Err.Error()
	}
	return e.Kind.String() + ": " + e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func wrapError(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf reports the Kind of err, or KindInternal when err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Caller-facing messages.
const (
	msgMissingSecret    = "Check-in token secret is not configured (CHECKIN_TOKEN_SECRET)"
	msgMissingBaseURL   = "A base URL is required to build the link. Pass baseUrl or configure PUBLIC_BASE_URL."
	msgInvalidToken     = "Invalid check-in token"
	msgBadSignature     = "Invalid check-in token signature"
	msgTokenExpired     = "This check-in link has expired. Please request a new one."
	msgSessionNotFound  = "Check-in session not found"
	msgSessionMismatch  = "This check-in token does not match its session"
	msgWrongChannel     = "This check-in link cannot be used here"
	msgSessionClosed    = "This check-in session has been closed"
	msgAlreadyUsed      = "This check-in link has already been used"
	msgWrongServiceCode = "Incorrect service code"
	msgTooManyAttempts  = "Too many check-in attempts. Please wait a few minutes and try again."
	msgPersonNotFound   = "We could not match your details to a member of this church"
	msgStoreFailure     = "Unable to complete the request right now. Please try again."
	msgInviteExpired    = "This invite link has expired. Please ask for a new one."
	msgInvalidInvite    = "Invalid invite link"
	msgNotAnInvite      = "This link is not a member invite"
	msgInvalidPersonID  = "Invalid person ID format"
)
