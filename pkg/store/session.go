package store

import (
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	ErrEmptyQuestion   = errors.New("question must not be empty")
	ErrQuestionPending = errors.New("a question is already awaiting an answer")
	ErrNotPending      = errors.New("no question is awaiting an answer")
	ErrSessionClosed   = errors.New("session is closed")
)

// Session is the canonical state of one document conversation.
// All transitions are serialized by an internal lock, so a Session may be shared between goroutines.
type Session struct {
	mu sync.Mutex

	documentID string
	sessionID  *string
	messages   []Message
	pending    bool
	highlights []int
	lastError  *ErrorDescriptor
	revision   uint64
	closed     bool

	now   func() time.Time
	newID func() string
}

// Option customizes a Session at construction time.
type Option func(*Session)

// WithClock overrides the time source used to stamp new messages.
func WithClock(now func() time.Time) Option {
	return func(s *Session) {
		s.now = now
	}
}

// WithIDGenerator overrides how message ids are produced. Generated ids must never repeat.
func WithIDGenerator(gen func() string) Option {
	return func(s *Session) {
		s.newID = gen
	}
}

// Initialize creates the session for a document. When history is given, its session id is adopted and its turns
// are flattened into alternating user/assistant messages in chronological order.
func Initialize(documentID string, history *History, opts ...Option) *Session {
	s := &Session{
		documentID: documentID,
		messages:   []Message{},
		highlights: []int{},
		now:        time.Now,
		newID:      uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}

	if history == nil {
		return s
	}

	if history.SessionID != "" {
		id := history.SessionID
		s.sessionID = &id
	}

	turns := make([]Turn, len(history.Turns))
	copy(turns, history.Turns)
	sort.SliceStable(turns, func(i, j int) bool {
		return turns[i].CreatedAt.Before(turns[j].CreatedAt)
	})

	for _, t := range turns {
		s.messages = append(s.messages,
			Message{ID: s.newID(), Role: RoleUser, Text: t.Question, CreatedAt: t.CreatedAt},
			Message{ID: s.newID(), Role: RoleAssistant, Text: t.Answer, CreatedAt: t.CreatedAt},
		)
	}

	return s
}

// BeginQuestion appends the user's message and marks the session as awaiting an answer.
func (s *Session) BeginQuestion(text string) (Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return Message{}, ErrSessionClosed
	}
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return Message{}, ErrEmptyQuestion
	}
	if s.pending {
		return Message{}, ErrQuestionPending
	}

	msg := Message{
		ID:        s.newID(),
		Role:      RoleUser,
		Text:      trimmed,
		CreatedAt: s.now(),
	}
	s.messages = append(s.messages, msg)
	s.pending = true
	s.lastError = nil
	s.revision++

	return msg, nil
}

// ApplyAnswer resolves the pending question with the service's answer.
// The highlight set is replaced wholesale; a nil or empty slice clears it.
func (s *Session) ApplyAnswer(answer, newSessionID string, highlights []int) (Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return Message{}, ErrSessionClosed
	}
	if !s.pending {
		return Message{}, ErrNotPending
	}

	msg := Message{
		ID:        s.newID(),
		Role:      RoleAssistant,
		Text:      answer,
		CreatedAt: s.now(),
	}
	s.messages = append(s.messages, msg)

	if newSessionID != "" {
		id := newSessionID
		s.sessionID = &id
	} else {
		s.sessionID = nil
	}

	s.highlights = make([]int, len(highlights))
	copy(s.highlights, highlights)
	s.pending = false
	s.revision++

	return msg, nil
}

// ApplyFailure resolves the pending question with an error message. Highlights and session id are kept.
func (s *Session) ApplyFailure(desc ErrorDescriptor) (Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return Message{}, ErrSessionClosed
	}
	if !s.pending {
		return Message{}, ErrNotPending
	}

	msg := Message{
		ID:        s.newID(),
		Role:      RoleAssistant,
		Text:      FailureReply,
		CreatedAt: s.now(),
		IsError:   true,
	}
	s.messages = append(s.messages, msg)

	d := desc
	s.lastError = &d
	s.pending = false
	s.revision++

	return msg, nil
}

// Close discards the session. Every later transition fails with ErrSessionClosed.
// It reports whether this call performed the close.
func (s *Session) Close() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}
	s.closed = true
	s.pending = false
	s.revision++
	return true
}

func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Session) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending
}

func (s *Session) DocumentID() string {
	return s.documentID
}

// SessionID returns the server-issued conversation id, or "" while none has been assigned.
func (s *Session) SessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sessionID == nil {
		return ""
	}
	return *s.sessionID
}

// Snapshot is an immutable copy of a session's state.
type Snapshot struct {
	DocumentID string           `json:"document_id"`
	SessionID  *string          `json:"session_id"`
	Messages   []Message        `json:"messages"`
	Pending    bool             `json:"pending"`
	Highlights []int            `json:"highlights"`
	LastError  *ErrorDescriptor `json:"last_error"`
	Revision   uint64           `json:"revision"`
	Closed     bool             `json:"closed"`
}

// Snapshot returns a deep copy of the current state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		DocumentID: s.documentID,
		Messages:   make([]Message, len(s.messages)),
		Pending:    s.pending,
		Highlights: make([]int, len(s.highlights)),
		Revision:   s.revision,
		Closed:     s.closed,
	}
	copy(snap.Messages, s.messages)
	copy(snap.Highlights, s.highlights)

	if s.sessionID != nil {
		id := *s.sessionID
		snap.SessionID = &id
	}
	if s.lastError != nil {
		e := *s.lastError
		snap.LastError = &e
	}

	return snap
}
