package entity

import (
	"context"
	"sync"
	"time"

	"ai-docchat/pkg/docservice"
	"ai-docchat/pkg/store"
)

// ChatView binds one open document chat view to its live session.
type ChatView struct {
	ID       string
	Document docservice.Document
	Chunks   []docservice.Chunk
	Session  *store.Session
	OpenedAt time.Time

	// BearerToken is the caller token the view was opened with, forwarded on questions that carry none.
	BearerToken string

	mu     sync.Mutex
	cancel context.CancelFunc
}

func NewChatView(id string, doc docservice.Document, chunks []docservice.Chunk, session *store.Session) *ChatView {
	return &ChatView{
		ID:       id,
		Document: doc,
		Chunks:   chunks,
		Session:  session,
		OpenedAt: time.Now(),
	}
}

// Track records the cancel func of the request currently in flight.
func (v *ChatView) Track(cancel context.CancelFunc) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.cancel = cancel
}

func (v *ChatView) Untrack() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.cancel = nil
}

// Discard closes the session and aborts any in-flight request. Safe to call more than once.
func (v *ChatView) Discard() bool {
	closed := v.Session.Close()

	v.mu.Lock()
	cancel := v.cancel
	v.cancel = nil
	v.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	return closed
}

func (v *ChatView) Closed() bool {
	return v.Session.Closed()
}
