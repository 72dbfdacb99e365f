package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"ai-docchat/internal/entity"
	"ai-docchat/internal/mapper"
	"ai-docchat/internal/pkg/logger"
	"ai-docchat/internal/repository/memory"
	"ai-docchat/pkg/docservice"
	"ai-docchat/pkg/events"
	"ai-docchat/pkg/store"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

const driverModule = "SessionDriver"

var (
	ErrSessionNotFound = errors.New("chat session not found")
	ErrHydration       = errors.New("document could not be loaded")
	ErrAskInterrupted  = errors.New("question handling was interrupted")
)

// SnapshotPublisher pushes serialized session state to the view that owns it.
type SnapshotPublisher interface {
	Publish(viewID string, payload []byte) error
}

// Auditor records chat activity. A nil Auditor disables auditing.
type Auditor interface {
	Publish(ctx context.Context, event events.Event) error
}

type OpenOptions struct {
	// Fresh starts an empty conversation instead of adopting the latest prior one.
	Fresh bool
}

// Hydration is what Load gathers for a document before its session is built.
type Hydration struct {
	Document docservice.Document
	Chunks   []docservice.Chunk
	History  *store.History
}

type SessionDriverConfig struct {
	AskTimeout   time.Duration
	StoreOptions []store.Option
}

// ISessionDriver turns view intents into calls against the document service and feeds outcomes back into sessions.
type ISessionDriver interface {
	Load(ctx context.Context, documentID string) (*Hydration, error)
	Open(ctx context.Context, documentID string, opts OpenOptions) (*entity.ChatView, error)
	Get(viewID string) (*entity.ChatView, error)
	Ask(ctx context.Context, view *entity.ChatView, text string) (store.Snapshot, error)
	Close(ctx context.Context, viewID string) error
	Shutdown()
}

type sessionDriver struct {
	provider docservice.Provider
	repo     *memory.SessionRepository
	bus      SnapshotPublisher
	auditor  Auditor
	mapper   *mapper.ChatMapper
	logger   logger.ILogger
	tracer   trace.Tracer
	cfg      SessionDriverConfig
}

func NewSessionDriver(
	provider docservice.Provider,
	repo *memory.SessionRepository,
	bus SnapshotPublisher,
	auditor Auditor,
	log logger.ILogger,
	cfg SessionDriverConfig,
) ISessionDriver {
	return &sessionDriver{
		provider: provider,
		repo:     repo,
		bus:      bus,
		auditor:  auditor,
		mapper:   mapper.NewChatMapper(),
		logger:   log,
		tracer:   otel.Tracer("ai-docchat/session-driver"),
		cfg:      cfg,
	}
}

// Load reads metadata, chunks and history in parallel. Only a metadata failure is fatal;
// the other two degrade to empty values.
func (d *sessionDriver) Load(ctx context.Context, documentID string) (*Hydration, error) {
	ctx, span := d.tracer.Start(ctx, "SessionDriver.Load", trace.WithAttributes(attribute.String("document.id", documentID)))
	defer span.End()

	var (
		doc      *docservice.Document
		chunks   []docservice.Chunk
		sessions []docservice.ChatSession
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		res, err := d.provider.GetDocument(gctx, documentID)
		if err == nil && res == nil {
			err = &docservice.Error{Op: "get document", Kind: docservice.KindInvalidResponse, Message: "empty response"}
		}
		if err != nil {
			return fmt.Errorf("%w: %w", ErrHydration, err)
		}
		doc = res
		return nil
	})

	g.Go(func() error {
		res, err := d.provider.GetChunks(gctx, documentID)
		if err != nil {
			d.degraded(gctx, "chunks", documentID, err)
			return nil
		}
		chunks = res
		return nil
	})

	g.Go(func() error {
		res, err := d.provider.GetChatHistory(gctx, documentID)
		if err != nil {
			d.degraded(gctx, "chat history", documentID, err)
			return nil
		}
		sessions = res
		return nil
	})

	if err := g.Wait(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "hydration failed")
		d.logger.Warn(driverModule, "Document hydration failed", map[string]interface{}{"document_id": documentID, "error": err.Error()})
		return nil, err
	}

	if chunks == nil {
		chunks = []docservice.Chunk{}
	}
	sort.SliceStable(chunks, func(i, j int) bool {
		return chunks[i].ChunkIndex < chunks[j].ChunkIndex
	})

	return &Hydration{
		Document: *doc,
		Chunks:   chunks,
		History:  toHistory(docservice.Latest(sessions)),
	}, nil
}

func (d *sessionDriver) degraded(ctx context.Context, what, documentID string, err error) {
	if ctx.Err() != nil {
		return
	}
	d.logger.Warn(driverModule, "Hydration degraded, using empty "+what, map[string]interface{}{
		"document_id": documentID,
		"error":       err.Error(),
	})
}

func toHistory(latest *docservice.ChatSession) *store.History {
	if latest == nil {
		return nil
	}
	turns := make([]store.Turn, len(latest.Messages))
	for i, m := range latest.Messages {
		turns[i] = store.Turn{Question: m.Question, Answer: m.Answer, CreatedAt: m.CreatedAt}
	}
	return &store.History{SessionID: latest.SessionID.String(), Turns: turns}
}

func (d *sessionDriver) Open(ctx context.Context, documentID string, opts OpenOptions) (*entity.ChatView, error) {
	h, err := d.Load(ctx, documentID)
	if err != nil {
		return nil, err
	}

	history := h.History
	if opts.Fresh {
		history = nil
	}

	session := store.Initialize(h.Document.ID.String(), history, d.cfg.StoreOptions...)
	view := entity.NewChatView(uuid.NewString(), h.Document, h.Chunks, session)
	view.BearerToken, _ = docservice.BearerTokenFrom(ctx)
	d.repo.Save(view)

	d.logger.Info(driverModule, "Chat session opened", map[string]interface{}{
		"view_id":     view.ID,
		"document_id": documentID,
		"session_id":  session.SessionID(),
		"fresh":       opts.Fresh,
	})
	d.audit(ctx, events.NewChatEvent(events.ChatSessionOpened, view.ID, documentID, map[string]interface{}{
		"session_id": session.SessionID(),
		"fresh":      opts.Fresh,
	}))

	return view, nil
}

func (d *sessionDriver) Get(viewID string) (*entity.ChatView, error) {
	view, ok := d.repo.Get(viewID)
	if !ok || view.Closed() {
		return nil, ErrSessionNotFound
	}
	d.repo.Touch(viewID)
	return view, nil
}

// Ask submits one question. Validation failures return before any request is made. An accepted question is
// always resolved with exactly one answer or failure, unless the view is torn down first, in which case the
// outcome is dropped and store.ErrSessionClosed is returned.
func (d *sessionDriver) Ask(ctx context.Context, view *entity.ChatView, text string) (snap store.Snapshot, err error) {
	sess := view.Session

	msg, err := sess.BeginQuestion(text)
	if err != nil {
		return sess.Snapshot(), err
	}
	d.repo.Touch(view.ID)

	if _, ok := docservice.BearerTokenFrom(ctx); !ok {
		ctx = docservice.WithBearerToken(ctx, view.BearerToken)
	}

	ctx, span := d.tracer.Start(ctx, "SessionDriver.Ask", trace.WithAttributes(
		attribute.String("view.id", view.ID),
		attribute.String("document.id", sess.DocumentID()),
	))
	defer span.End()

	resolved := false
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error(driverModule, "Recovered panic while answering", map[string]interface{}{"view_id": view.ID, "panic": fmt.Sprint(r)})
			err = fmt.Errorf("%w: %v", ErrAskInterrupted, r)
		}
		if !resolved {
			d.resolveFailure(ctx, view, store.ErrorDescriptor{Kind: store.ErrorKindInternal, Message: ErrAskInterrupted.Error()})
		}
		d.repo.Touch(view.ID)
		snap = sess.Snapshot()
	}()

	d.publish(view)
	d.audit(ctx, events.NewChatEvent(events.ChatQuestionSubmitted, view.ID, sess.DocumentID(), map[string]interface{}{
		"message_id": msg.ID,
		"session_id": sess.SessionID(),
	}))

	reqCtx, cancel := d.requestContext(ctx)
	defer cancel()
	view.Track(cancel)
	defer view.Untrack()

	if view.Closed() {
		resolved = true
		return snap, store.ErrSessionClosed
	}

	res, askErr := d.callAsk(reqCtx, docservice.AskRequest{
		DocumentID: docservice.ID(sess.DocumentID()),
		Question:   msg.Text,
		SessionID:  docservice.ID(sess.SessionID()).Ptr(),
	})
	resolved = true

	if askErr != nil {
		span.RecordError(askErr)
		span.SetStatus(codes.Error, "ask failed")
		if !d.resolveFailure(ctx, view, describeFailure(askErr)) {
			return snap, store.ErrSessionClosed
		}
		d.logger.Warn(driverModule, "Question failed", map[string]interface{}{"view_id": view.ID, "error": askErr.Error()})
		return snap, nil
	}

	if _, err := sess.ApplyAnswer(res.Answer, res.SessionID.String(), res.HighlightIndexes); err != nil {
		d.dropLate(view, err)
		return snap, err
	}

	d.publish(view)
	d.audit(ctx, events.NewChatEvent(events.ChatAnswerApplied, view.ID, sess.DocumentID(), map[string]interface{}{
		"session_id":  res.SessionID.String(),
		"highlights":  len(res.HighlightIndexes),
		"chunks_used": res.ChunksUsed,
	}))

	return snap, nil
}

func (d *sessionDriver) requestContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if d.cfg.AskTimeout > 0 {
		return context.WithTimeout(ctx, d.cfg.AskTimeout)
	}
	return context.WithCancel(ctx)
}

func (d *sessionDriver) callAsk(ctx context.Context, req docservice.AskRequest) (res *docservice.AskResponse, err error) {
	defer func() {
		if r := recover(); r != nil {
			res, err = nil, fmt.Errorf("%w: %v", ErrAskInterrupted, r)
		}
	}()

	res, err = d.provider.Ask(ctx, req)
	if err == nil && res == nil {
		err = &docservice.Error{Op: "ask question", Kind: docservice.KindInvalidResponse, Message: "empty response"}
	}
	return res, err
}

// resolveFailure applies a failure and reports whether the session accepted it.
func (d *sessionDriver) resolveFailure(ctx context.Context, view *entity.ChatView, desc store.ErrorDescriptor) bool {
	if _, err := view.Session.ApplyFailure(desc); err != nil {
		d.dropLate(view, err)
		return false
	}

	d.publish(view)
	d.audit(ctx, events.NewChatEvent(events.ChatAnswerFailed, view.ID, view.Session.DocumentID(), map[string]interface{}{
		"kind":   string(desc.Kind),
		"status": desc.Status,
	}))
	return true
}

func (d *sessionDriver) dropLate(view *entity.ChatView, err error) {
	d.logger.Debug(driverModule, "Dropping outcome for discarded session", map[string]interface{}{"view_id": view.ID, "reason": err.Error()})
}

func describeFailure(err error) store.ErrorDescriptor {
	var svcErr *docservice.Error
	if errors.As(err, &svcErr) {
		desc := store.ErrorDescriptor{Status: svcErr.Status, Message: svcErr.Message}
		switch svcErr.Kind {
		case docservice.KindHTTPStatus:
			desc.Kind = store.ErrorKindHTTPStatus
		case docservice.KindTimeout:
			desc.Kind = store.ErrorKindTimeout
		case docservice.KindInvalidResponse:
			desc.Kind = store.ErrorKindInvalidResponse
		case docservice.KindCanceled:
			desc.Kind = store.ErrorKindCanceled
		default:
			desc.Kind = store.ErrorKindNetwork
		}
		if desc.Message == "" {
			desc.Message = svcErr.Error()
		}
		return desc
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return store.ErrorDescriptor{Kind: store.ErrorKindTimeout, Message: err.Error()}
	case errors.Is(err, context.Canceled):
		return store.ErrorDescriptor{Kind: store.ErrorKindCanceled, Message: err.Error()}
	default:
		return store.ErrorDescriptor{Kind: store.ErrorKindInternal, Message: err.Error()}
	}
}

func (d *sessionDriver) publish(view *entity.ChatView) {
	if d.bus == nil {
		return
	}
	snap := view.Session.Snapshot()
	if snap.Closed {
		return
	}

	payload, err := json.Marshal(d.mapper.SnapshotToResponse(view.ID, snap))
	if err != nil {
		d.logger.Error(driverModule, "Failed to encode snapshot", map[string]interface{}{"view_id": view.ID, "error": err})
		return
	}
	if err := d.bus.Publish(view.ID, payload); err != nil {
		d.logger.Warn(driverModule, "Failed to publish snapshot", map[string]interface{}{"view_id": view.ID, "error": err.Error()})
	}
}

func (d *sessionDriver) audit(ctx context.Context, event events.Event) {
	if d.auditor == nil {
		return
	}
	go func() {
		pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 3*time.Second)
		defer cancel()
		if err := d.auditor.Publish(pubCtx, event); err != nil {
			d.logger.Debug(driverModule, "Audit event not recorded", map[string]interface{}{"type": event.EventType(), "error": err.Error()})
		}
	}()
}

func (d *sessionDriver) Close(ctx context.Context, viewID string) error {
	view, ok := d.repo.Get(viewID)
	if !ok {
		return ErrSessionNotFound
	}
	d.repo.Delete(viewID)

	d.logger.Info(driverModule, "Chat session closed", map[string]interface{}{"view_id": viewID})
	d.audit(ctx, events.NewChatEvent(events.ChatSessionClosed, viewID, view.Session.DocumentID(), nil))
	return nil
}

func (d *sessionDriver) Shutdown() {
	d.repo.Flush()
}
