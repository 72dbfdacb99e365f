package service

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"ai-docchat/internal/dto"
	"ai-docchat/internal/pkg/logger"
	"ai-docchat/internal/repository/memory"
	"ai-docchat/pkg/docservice"
	"ai-docchat/pkg/events"
	"ai-docchat/pkg/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeProvider answers from configurable funcs and counts ask requests.
type fakeProvider struct {
	getDocument func(ctx context.Context, id string) (*docservice.Document, error)
	getChunks   func(ctx context.Context, id string) ([]docservice.Chunk, error)
	getHistory  func(ctx context.Context, id string) ([]docservice.ChatSession, error)
	ask         func(ctx context.Context, req docservice.AskRequest) (*docservice.AskResponse, error)

	mu       sync.Mutex
	requests []docservice.AskRequest
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		getDocument: func(ctx context.Context, id string) (*docservice.Document, error) {
			return &docservice.Document{ID: docservice.ID(id), Title: "Doc " + id, ProcessingStatus: docservice.StatusCompleted}, nil
		},
		getChunks: func(ctx context.Context, id string) ([]docservice.Chunk, error) {
			return []docservice.Chunk{}, nil
		},
		getHistory: func(ctx context.Context, id string) ([]docservice.ChatSession, error) {
			return []docservice.ChatSession{}, nil
		},
		ask: func(ctx context.Context, req docservice.AskRequest) (*docservice.AskResponse, error) {
			return &docservice.AskResponse{Answer: "ok", SessionID: "S1", HighlightIndexes: []int{}}, nil
		},
	}
}

func (f *fakeProvider) GetDocument(ctx context.Context, id string) (*docservice.Document, error) {
	return f.getDocument(ctx, id)
}

func (f *fakeProvider) GetChunks(ctx context.Context, id string) ([]docservice.Chunk, error) {
	return f.getChunks(ctx, id)
}

func (f *fakeProvider) GetChatHistory(ctx context.Context, id string) ([]docservice.ChatSession, error) {
	return f.getHistory(ctx, id)
}

func (f *fakeProvider) Ask(ctx context.Context, req docservice.AskRequest) (*docservice.AskResponse, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	return f.ask(ctx, req)
}

func (f *fakeProvider) ListDocuments(ctx context.Context) ([]docservice.Document, error) {
	return []docservice.Document{}, nil
}

func (f *fakeProvider) UploadDocument(ctx context.Context, name string, r io.Reader) (*docservice.UploadResult, error) {
	return &docservice.UploadResult{ID: "1", Title: name}, nil
}

func (f *fakeProvider) DeleteDocument(ctx context.Context, id string) error {
	return nil
}

func (f *fakeProvider) askCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func (f *fakeProvider) lastRequest() docservice.AskRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[len(f.requests)-1]
}

type recordingBus struct {
	mu     sync.Mutex
	frames map[string][]dto.ChatSessionResponse
}

func newRecordingBus() *recordingBus {
	return &recordingBus{frames: map[string][]dto.ChatSessionResponse{}}
}

func (b *recordingBus) Publish(viewID string, payload []byte) error {
	var res dto.ChatSessionResponse
	if err := json.Unmarshal(payload, &res); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.frames[viewID] = append(b.frames[viewID], res)
	return nil
}

func (b *recordingBus) published(viewID string) []dto.ChatSessionResponse {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]dto.ChatSessionResponse, len(b.frames[viewID]))
	copy(out, b.frames[viewID])
	return out
}

func newTestDriver(p docservice.Provider, bus SnapshotPublisher, timeout time.Duration) ISessionDriver {
	return NewSessionDriver(p, memory.NewSessionRepository(time.Hour), bus, nil, logger.NewNopLogger(), SessionDriverConfig{AskTimeout: timeout})
}

func TestLoad_DegradesChunksAndHistory(t *testing.T) {
	p := newFakeProvider()
	p.getChunks = func(ctx context.Context, id string) ([]docservice.Chunk, error) {
		return nil, &docservice.Error{Op: "get chunks", Kind: docservice.KindNetwork}
	}
	p.getHistory = func(ctx context.Context, id string) ([]docservice.ChatSession, error) {
		return nil, &docservice.Error{Op: "get chat history", Kind: docservice.KindHTTPStatus, Status: 500}
	}
	d := newTestDriver(p, nil, 0)

	h, err := d.Load(context.Background(), "D1")
	require.NoError(t, err)
	assert.Equal(t, "Doc D1", h.Document.Title)
	assert.NotNil(t, h.Chunks)
	assert.Empty(t, h.Chunks)
	assert.Nil(t, h.History)
}

func TestLoad_MetadataFailureIsFatal(t *testing.T) {
	p := newFakeProvider()
	p.getDocument = func(ctx context.Context, id string) (*docservice.Document, error) {
		return nil, &docservice.Error{Op: "get document", Kind: docservice.KindHTTPStatus, Status: 404}
	}
	d := newTestDriver(p, nil, 0)

	_, err := d.Load(context.Background(), "D1")
	assert.ErrorIs(t, err, ErrHydration)
	assert.True(t, docservice.IsNotFound(err))

	_, err = d.Open(context.Background(), "D1", OpenOptions{})
	assert.ErrorIs(t, err, ErrHydration)
}

func TestLoad_AdoptsLatestHistoryAndSortsChunks(t *testing.T) {
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	p := newFakeProvider()
	p.getChunks = func(ctx context.Context, id string) ([]docservice.Chunk, error) {
		return []docservice.Chunk{{ChunkIndex: 2}, {ChunkIndex: 0}, {ChunkIndex: 1}}, nil
	}
	p.getHistory = func(ctx context.Context, id string) ([]docservice.ChatSession, error) {
		return []docservice.ChatSession{
			{SessionID: "S9", CreatedAt: base.Add(time.Hour), Messages: []docservice.ChatTurn{{Question: "a", Answer: "b", CreatedAt: base.Add(time.Hour)}}},
			{SessionID: "S1", CreatedAt: base, Messages: []docservice.ChatTurn{{Question: "old", Answer: "older", CreatedAt: base}}},
		}, nil
	}
	d := newTestDriver(p, nil, 0)

	h, err := d.Load(context.Background(), "D1")
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2}, []int{h.Chunks[0].ChunkIndex, h.Chunks[1].ChunkIndex, h.Chunks[2].ChunkIndex})
	require.NotNil(t, h.History)
	assert.Equal(t, "S9", h.History.SessionID)

	view, err := d.Open(context.Background(), "D1", OpenOptions{})
	require.NoError(t, err)
	snap := view.Session.Snapshot()
	assert.Equal(t, "S9", *snap.SessionID)
	require.Len(t, snap.Messages, 2)
	assert.Equal(t, "a", snap.Messages[0].Text)

	fresh, err := d.Open(context.Background(), "D1", OpenOptions{Fresh: true})
	require.NoError(t, err)
	snap = fresh.Session.Snapshot()
	assert.Nil(t, snap.SessionID)
	assert.Empty(t, snap.Messages)
	assert.NotEqual(t, view.ID, fresh.ID)
}

func TestAsk_AnswerAdoptsSessionAndHighlights(t *testing.T) {
	p := newFakeProvider()
	p.ask = func(ctx context.Context, req docservice.AskRequest) (*docservice.AskResponse, error) {
		return &docservice.AskResponse{Answer: "X is Y.", SessionID: "S7", HighlightIndexes: []int{2, 5}}, nil
	}
	bus := newRecordingBus()
	d := newTestDriver(p, bus, time.Second)

	view, err := d.Open(context.Background(), "D1", OpenOptions{})
	require.NoError(t, err)

	snap, err := d.Ask(context.Background(), view, "What is X?")
	require.NoError(t, err)

	assert.Equal(t, 1, p.askCount())
	req := p.lastRequest()
	assert.Equal(t, docservice.ID("D1"), req.DocumentID)
	assert.Equal(t, "What is X?", req.Question)
	assert.Nil(t, req.SessionID)

	require.Len(t, snap.Messages, 2)
	assert.Equal(t, "X is Y.", snap.Messages[1].Text)
	assert.Equal(t, "S7", *snap.SessionID)
	assert.Equal(t, []int{2, 5}, snap.Highlights)
	assert.False(t, snap.Pending)

	_, err = d.Ask(context.Background(), view, "And Z?")
	require.NoError(t, err)
	require.NotNil(t, p.lastRequest().SessionID)
	assert.Equal(t, docservice.ID("S7"), *p.lastRequest().SessionID)

	frames := bus.published(view.ID)
	require.NotEmpty(t, frames)
	for i := 1; i < len(frames); i++ {
		assert.Greater(t, frames[i].Revision, frames[i-1].Revision)
	}
	assert.False(t, frames[len(frames)-1].Pending)
}

func TestAsk_FailureAppendsApology(t *testing.T) {
	p := newFakeProvider()
	p.ask = func(ctx context.Context, req docservice.AskRequest) (*docservice.AskResponse, error) {
		return nil, &docservice.Error{Op: "ask question", Kind: docservice.KindHTTPStatus, Status: 500, Message: "boom"}
	}
	d := newTestDriver(p, nil, time.Second)

	view, err := d.Open(context.Background(), "D1", OpenOptions{})
	require.NoError(t, err)

	snap, err := d.Ask(context.Background(), view, "c")
	require.NoError(t, err)
	require.Len(t, snap.Messages, 2)
	assert.True(t, snap.Messages[1].IsError)
	assert.Equal(t, store.FailureReply, snap.Messages[1].Text)
	require.NotNil(t, snap.LastError)
	assert.Equal(t, store.ErrorKindHTTPStatus, snap.LastError.Kind)
	assert.Equal(t, 500, snap.LastError.Status)
	assert.Equal(t, "boom", snap.LastError.Message)
	assert.False(t, snap.Pending)
}

func TestAsk_ValidationSendsNoRequest(t *testing.T) {
	p := newFakeProvider()
	d := newTestDriver(p, nil, time.Second)

	view, err := d.Open(context.Background(), "D1", OpenOptions{})
	require.NoError(t, err)

	_, err = d.Ask(context.Background(), view, "   ")
	assert.ErrorIs(t, err, store.ErrEmptyQuestion)
	assert.Equal(t, 0, p.askCount())
	assert.Empty(t, view.Session.Snapshot().Messages)
}

func TestAsk_SecondAskWhilePendingIsRejected(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	p := newFakeProvider()
	p.ask = func(ctx context.Context, req docservice.AskRequest) (*docservice.AskResponse, error) {
		close(started)
		<-release
		return &docservice.AskResponse{Answer: "first", SessionID: "S1"}, nil
	}
	d := newTestDriver(p, nil, 0)

	view, err := d.Open(context.Background(), "D1", OpenOptions{})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := d.Ask(context.Background(), view, "first question")
		done <- err
	}()
	<-started

	_, err = d.Ask(context.Background(), view, "second question")
	assert.ErrorIs(t, err, store.ErrQuestionPending)
	assert.Equal(t, 1, p.askCount())

	close(release)
	require.NoError(t, <-done)

	snap := view.Session.Snapshot()
	require.Len(t, snap.Messages, 2)
	assert.Equal(t, "first question", snap.Messages[0].Text)
	assert.Equal(t, "first", snap.Messages[1].Text)
}

func TestAsk_TeardownDropsLateAnswer(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var calls int32
	p := newFakeProvider()
	p.ask = func(ctx context.Context, req docservice.AskRequest) (*docservice.AskResponse, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			close(started)
			// Ignores cancellation to model a response that arrives after teardown.
			<-release
			return &docservice.AskResponse{Answer: "late", SessionID: "S-late", HighlightIndexes: []int{9}}, nil
		}
		return &docservice.AskResponse{Answer: "fresh", SessionID: "S2"}, nil
	}
	bus := newRecordingBus()
	d := newTestDriver(p, bus, 0)

	view, err := d.Open(context.Background(), "D1", OpenOptions{Fresh: true})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := d.Ask(context.Background(), view, "question")
		done <- err
	}()
	<-started

	require.NoError(t, d.Close(context.Background(), view.ID))
	framesAtClose := len(bus.published(view.ID))

	next, err := d.Open(context.Background(), "D1", OpenOptions{Fresh: true})
	require.NoError(t, err)

	close(release)
	assert.ErrorIs(t, <-done, store.ErrSessionClosed)

	old := view.Session.Snapshot()
	assert.True(t, old.Closed)
	assert.False(t, old.Pending)
	require.Len(t, old.Messages, 1)
	assert.Nil(t, old.SessionID)
	assert.Empty(t, old.Highlights)
	assert.Len(t, bus.published(view.ID), framesAtClose)

	fresh := next.Session.Snapshot()
	assert.Empty(t, fresh.Messages)
	assert.Nil(t, fresh.SessionID)
	assert.Empty(t, fresh.Highlights)

	_, err = d.Get(view.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestAsk_TeardownCancelsRequest(t *testing.T) {
	started := make(chan struct{})
	p := newFakeProvider()
	p.ask = func(ctx context.Context, req docservice.AskRequest) (*docservice.AskResponse, error) {
		close(started)
		<-ctx.Done()
		return nil, &docservice.Error{Op: "ask question", Kind: docservice.KindCanceled, Err: ctx.Err()}
	}
	d := newTestDriver(p, nil, 0)

	view, err := d.Open(context.Background(), "D1", OpenOptions{})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := d.Ask(context.Background(), view, "question")
		done <- err
	}()
	<-started

	require.NoError(t, d.Close(context.Background(), view.ID))

	select {
	case err := <-done:
		assert.ErrorIs(t, err, store.ErrSessionClosed)
	case <-time.After(time.Second):
		t.Fatal("in-flight request was not canceled")
	}
	assert.Len(t, view.Session.Snapshot().Messages, 1)
}

func TestAsk_PanicIsRecoveredIntoFailure(t *testing.T) {
	p := newFakeProvider()
	p.ask = func(ctx context.Context, req docservice.AskRequest) (*docservice.AskResponse, error) {
		panic("decoder exploded")
	}
	d := newTestDriver(p, nil, time.Second)

	view, err := d.Open(context.Background(), "D1", OpenOptions{})
	require.NoError(t, err)

	snap, err := d.Ask(context.Background(), view, "q")
	require.NoError(t, err)
	assert.False(t, snap.Pending)
	require.NotNil(t, snap.LastError)
	assert.Equal(t, store.ErrorKindInternal, snap.LastError.Kind)

	// The session stays usable.
	p.ask = func(ctx context.Context, req docservice.AskRequest) (*docservice.AskResponse, error) {
		return &docservice.AskResponse{Answer: "ok", SessionID: "S1"}, nil
	}
	snap, err = d.Ask(context.Background(), view, "again")
	require.NoError(t, err)
	assert.Nil(t, snap.LastError)
	assert.Len(t, snap.Messages, 4)
}

func TestAsk_Timeout(t *testing.T) {
	p := newFakeProvider()
	p.ask = func(ctx context.Context, req docservice.AskRequest) (*docservice.AskResponse, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	d := newTestDriver(p, nil, 20*time.Millisecond)

	view, err := d.Open(context.Background(), "D1", OpenOptions{})
	require.NoError(t, err)

	snap, err := d.Ask(context.Background(), view, "slow?")
	require.NoError(t, err)
	require.NotNil(t, snap.LastError)
	assert.Equal(t, store.ErrorKindTimeout, snap.LastError.Kind)
	assert.False(t, snap.Pending)
}

func TestAsk_NilResponseIsInvalid(t *testing.T) {
	p := newFakeProvider()
	p.ask = func(ctx context.Context, req docservice.AskRequest) (*docservice.AskResponse, error) {
		return nil, nil
	}
	d := newTestDriver(p, nil, time.Second)

	view, err := d.Open(context.Background(), "D1", OpenOptions{})
	require.NoError(t, err)

	snap, err := d.Ask(context.Background(), view, "q")
	require.NoError(t, err)
	assert.Equal(t, store.ErrorKindInvalidResponse, snap.LastError.Kind)
}

func TestGetAndClose(t *testing.T) {
	d := newTestDriver(newFakeProvider(), nil, 0)

	view, err := d.Open(context.Background(), "D1", OpenOptions{})
	require.NoError(t, err)

	got, err := d.Get(view.ID)
	require.NoError(t, err)
	assert.Same(t, view, got)

	require.NoError(t, d.Close(context.Background(), view.ID))
	assert.ErrorIs(t, d.Close(context.Background(), view.ID), ErrSessionNotFound)

	_, err = d.Get("missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestAsk_KeepsViewAlive(t *testing.T) {
	d := NewSessionDriver(newFakeProvider(), memory.NewSessionRepository(150*time.Millisecond), nil, nil, logger.NewNopLogger(), SessionDriverConfig{})
	t.Cleanup(d.Shutdown)

	view, err := d.Open(context.Background(), "D1", OpenOptions{})
	require.NoError(t, err)

	for i := 0; i < 6; i++ {
		_, err := d.Ask(context.Background(), view, "q")
		require.NoError(t, err)
		time.Sleep(40 * time.Millisecond)
	}

	got, err := d.Get(view.ID)
	require.NoError(t, err, "a view in active use must not expire")
	assert.Same(t, view, got)
	assert.False(t, view.Closed())
}

func TestLoad_NilDocumentIsHydrationError(t *testing.T) {
	p := newFakeProvider()
	p.getDocument = func(ctx context.Context, id string) (*docservice.Document, error) {
		return nil, nil
	}
	d := newTestDriver(p, nil, 0)

	_, err := d.Load(context.Background(), "D1")
	require.ErrorIs(t, err, ErrHydration)

	var svcErr *docservice.Error
	require.ErrorAs(t, err, &svcErr)
	assert.Equal(t, docservice.KindInvalidResponse, svcErr.Kind)

	_, err = d.Open(context.Background(), "D1", OpenOptions{})
	assert.ErrorIs(t, err, ErrHydration)
}

func TestAsk_ForwardsOpeningBearerToken(t *testing.T) {
	var (
		mu     sync.Mutex
		tokens []string
	)
	p := newFakeProvider()
	p.ask = func(ctx context.Context, req docservice.AskRequest) (*docservice.AskResponse, error) {
		tok, _ := docservice.BearerTokenFrom(ctx)
		mu.Lock()
		tokens = append(tokens, tok)
		mu.Unlock()
		return &docservice.AskResponse{Answer: "ok", SessionID: "S1", HighlightIndexes: []int{}}, nil
	}
	d := newTestDriver(p, nil, 0)

	view, err := d.Open(docservice.WithBearerToken(context.Background(), "opener"), "D1", OpenOptions{})
	require.NoError(t, err)
	assert.Equal(t, "opener", view.BearerToken)

	_, err = d.Ask(context.Background(), view, "first")
	require.NoError(t, err)
	_, err = d.Ask(docservice.WithBearerToken(context.Background(), "caller"), view, "second")
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"opener", "caller"}, tokens)
}

func TestShutdownDiscardsEverySession(t *testing.T) {
	d := newTestDriver(newFakeProvider(), nil, 0)

	a, err := d.Open(context.Background(), "D1", OpenOptions{})
	require.NoError(t, err)
	b, err := d.Open(context.Background(), "D2", OpenOptions{})
	require.NoError(t, err)

	d.Shutdown()

	assert.True(t, a.Closed())
	assert.True(t, b.Closed())
}

func TestDescribeFailure(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want store.ErrorKind
	}{
		{name: "network", err: &docservice.Error{Kind: docservice.KindNetwork}, want: store.ErrorKindNetwork},
		{name: "status", err: &docservice.Error{Kind: docservice.KindHTTPStatus, Status: 502}, want: store.ErrorKindHTTPStatus},
		{name: "invalid", err: &docservice.Error{Kind: docservice.KindInvalidResponse}, want: store.ErrorKindInvalidResponse},
		{name: "deadline", err: context.DeadlineExceeded, want: store.ErrorKindTimeout},
		{name: "canceled", err: context.Canceled, want: store.ErrorKindCanceled},
		{name: "other", err: errors.New("weird"), want: store.ErrorKindInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := describeFailure(tt.err)
			assert.Equal(t, tt.want, got.Kind)
			assert.NotEmpty(t, got.Message)
		})
	}
}

type recordingAuditor struct {
	mu    sync.Mutex
	types []string
	fail  bool
}

func (a *recordingAuditor) Publish(ctx context.Context, event events.Event) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.types = append(a.types, event.EventType())
	if a.fail {
		return errors.New("stream unavailable")
	}
	return nil
}

func (a *recordingAuditor) recorded() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.types...)
}

func TestAudit_RecordsLifecycle(t *testing.T) {
	p := newFakeProvider()
	calls := 0
	p.ask = func(ctx context.Context, req docservice.AskRequest) (*docservice.AskResponse, error) {
		calls++
		if calls == 2 {
			return nil, &docservice.Error{Op: "ask question", Kind: docservice.KindHTTPStatus, Status: 500}
		}
		return &docservice.AskResponse{Answer: "ok", SessionID: "S1", HighlightIndexes: []int{}}, nil
	}
	auditor := &recordingAuditor{}
	d := NewSessionDriver(p, memory.NewSessionRepository(time.Hour), nil, auditor, logger.NewNopLogger(), SessionDriverConfig{})

	view, err := d.Open(context.Background(), "D1", OpenOptions{})
	require.NoError(t, err)
	_, err = d.Ask(context.Background(), view, "first")
	require.NoError(t, err)
	_, err = d.Ask(context.Background(), view, "second")
	require.NoError(t, err)
	require.NoError(t, d.Close(context.Background(), view.ID))

	want := []string{
		events.ChatSessionOpened,
		events.ChatQuestionSubmitted,
		events.ChatAnswerApplied,
		events.ChatQuestionSubmitted,
		events.ChatAnswerFailed,
		events.ChatSessionClosed,
	}
	// delivery is asynchronous, so only the multiset is stable
	require.Eventually(t, func() bool { return len(auditor.recorded()) == len(want) }, time.Second, 5*time.Millisecond)
	assert.ElementsMatch(t, want, auditor.recorded())
}

func TestAudit_FailureDoesNotAffectSession(t *testing.T) {
	auditor := &recordingAuditor{fail: true}
	d := NewSessionDriver(newFakeProvider(), memory.NewSessionRepository(time.Hour), nil, auditor, logger.NewNopLogger(), SessionDriverConfig{})

	view, err := d.Open(context.Background(), "D1", OpenOptions{})
	require.NoError(t, err)
	snap, err := d.Ask(context.Background(), view, "q")
	require.NoError(t, err)

	assert.Len(t, snap.Messages, 2)
	assert.False(t, snap.Messages[1].IsError)
	require.Eventually(t, func() bool { return len(auditor.recorded()) == 3 }, time.Second, 5*time.Millisecond)
}
