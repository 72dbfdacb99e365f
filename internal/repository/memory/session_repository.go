package memory

import (
	"time"

	"ai-docchat/internal/entity"

	"github.com/patrickmn/go-cache"
)

// SessionRepository holds the chat views that are currently open.
// A view that is not touched within the idle TTL expires, and every removal discards its session.
type SessionRepository struct {
	cache *cache.Cache
}

func NewSessionRepository(idleTTL time.Duration) *SessionRepository {
	c := cache.New(idleTTL, time.Minute)
	c.OnEvicted(func(_ string, v interface{}) {
		if view, ok := v.(*entity.ChatView); ok {
			view.Discard()
		}
	})
	return &SessionRepository{
		cache: c,
	}
}

func (r *SessionRepository) Save(view *entity.ChatView) {
	r.cache.Set(view.ID, view, cache.DefaultExpiration)
}

func (r *SessionRepository) Get(viewID string) (*entity.ChatView, bool) {
	if x, found := r.cache.Get(viewID); found {
		return x.(*entity.ChatView), true
	}
	return nil, false
}

// Touch extends the idle expiry of an open view.
func (r *SessionRepository) Touch(viewID string) bool {
	view, ok := r.Get(viewID)
	if !ok || view.Closed() {
		return false
	}
	r.Save(view)
	return true
}

// Delete removes the view and discards its session. It reports whether the view was open.
func (r *SessionRepository) Delete(viewID string) bool {
	if _, found := r.cache.Get(viewID); !found {
		return false
	}
	r.cache.Delete(viewID)
	return true
}

func (r *SessionRepository) Count() int {
	return r.cache.ItemCount()
}

// Flush discards every open view.
func (r *SessionRepository) Flush() {
	for id := range r.cache.Items() {
		r.cache.Delete(id)
	}
}
