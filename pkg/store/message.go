package store

import "time"

// Role identifies who authored a message in the conversation log.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// FailureReply is the assistant text shown in place of an answer when a question could not be resolved.
const FailureReply = "Sorry, I encountered an error while processing your question. Please try again."

// Message is one entry of the conversation log. Its text never changes after it is appended.
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
	IsError   bool      `json:"is_error"`
}

// ErrorKind classifies why a question failed.
type ErrorKind string

const (
	ErrorKindNetwork         ErrorKind = "network"
	ErrorKindTimeout         ErrorKind = "timeout"
	ErrorKindHTTPStatus      ErrorKind = "http_status"
	ErrorKindInvalidResponse ErrorKind = "invalid_response"
	ErrorKindCanceled        ErrorKind = "canceled"
	ErrorKindInternal        ErrorKind = "internal"
)

// ErrorDescriptor is the normalized failure recorded as the session's last error.
type ErrorDescriptor struct {
	Kind    ErrorKind `json:"kind"`
	Status  int       `json:"status,omitempty"`
	Message string    `json:"message"`
}

// Turn is one question/answer pair of a prior conversation.
type Turn struct {
	Question  string
	Answer    string
	CreatedAt time.Time
}

// History is a prior conversation used to hydrate a new session.
type History struct {
	SessionID string
	Turns     []Turn
}
