package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"ai-docchat/pkg/docservice"
)

// Client talks to the document service over its JSON HTTP API.
type Client struct {
	BaseURL string
	Token   string
	Client  *http.Client
}

// Ensure Client implements Provider
var _ docservice.Provider = &Client{}

func NewClient(baseURL, token string, timeout time.Duration) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		Client: &http.Client{
			Timeout: timeout,
		},
	}
}

type askPayload struct {
	Answer           *string       `json:"answer"`
	SessionID        docservice.ID `json:"session_id"`
	HighlightIndexes []int         `json:"highlight_indexes"`
	ChunksUsed       int           `json:"chunks_used"`
}

type errorPayload struct {
	Error  string `json:"error"`
	Detail string `json:"detail"`
}

func (c *Client) GetDocument(ctx context.Context, documentID string) (*docservice.Document, error) {
	var doc docservice.Document
	if err := c.getJSON(ctx, "get document", "/documents/"+url.PathEscape(documentID)+"/", &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// GetChunks accepts both a bare array and a paginated {"results": [...]} envelope.
func (c *Client) GetChunks(ctx context.Context, documentID string) ([]docservice.Chunk, error) {
	const op = "get chunks"

	var raw json.RawMessage
	if err := c.getJSON(ctx, op, "/documents/"+url.PathEscape(documentID)+"/chunks/", &raw); err != nil {
		return nil, err
	}

	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var page struct {
			Results []docservice.Chunk `json:"results"`
		}
		if err := json.Unmarshal(trimmed, &page); err != nil {
			return nil, &docservice.Error{Op: op, Kind: docservice.KindInvalidResponse, Err: err}
		}
		return nonNilChunks(page.Results), nil
	}

	var chunks []docservice.Chunk
	if err := json.Unmarshal(trimmed, &chunks); err != nil {
		return nil, &docservice.Error{Op: op, Kind: docservice.KindInvalidResponse, Err: err}
	}
	return nonNilChunks(chunks), nil
}

func (c *Client) GetChatHistory(ctx context.Context, documentID string) ([]docservice.ChatSession, error) {
	var sessions []docservice.ChatSession
	if err := c.getJSON(ctx, "get chat history", "/documents/"+url.PathEscape(documentID)+"/chat-history/", &sessions); err != nil {
		return nil, err
	}
	if sessions == nil {
		sessions = []docservice.ChatSession{}
	}
	return sessions, nil
}

func (c *Client) Ask(ctx context.Context, req docservice.AskRequest) (*docservice.AskResponse, error) {
	const op = "ask question"

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal ask request: %w", err)
	}

	var payload askPayload
	if err := c.do(ctx, op, http.MethodPost, "/ask/", bytes.NewReader(body), "application/json", &payload); err != nil {
		return nil, err
	}
	if payload.Answer == nil {
		return nil, &docservice.Error{Op: op, Kind: docservice.KindInvalidResponse, Message: "response has no answer"}
	}

	highlights := payload.HighlightIndexes
	if highlights == nil {
		highlights = []int{}
	}

	return &docservice.AskResponse{
		Answer:           *payload.Answer,
		SessionID:        payload.SessionID,
		HighlightIndexes: highlights,
		ChunksUsed:       payload.ChunksUsed,
	}, nil
}

func (c *Client) ListDocuments(ctx context.Context) ([]docservice.Document, error) {
	var docs []docservice.Document
	if err := c.getJSON(ctx, "list documents", "/documents/", &docs); err != nil {
		return nil, err
	}
	if docs == nil {
		docs = []docservice.Document{}
	}
	return docs, nil
}

func (c *Client) UploadDocument(ctx context.Context, filename string, content io.Reader) (*docservice.UploadResult, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := io.Copy(part, content); err != nil {
		return nil, fmt.Errorf("failed to copy upload content: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize multipart body: %w", err)
	}

	var res docservice.UploadResult
	if err := c.do(ctx, "upload document", http.MethodPost, "/upload/", &buf, mw.FormDataContentType(), &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) DeleteDocument(ctx context.Context, documentID string) error {
	return c.do(ctx, "delete document", http.MethodDelete, "/documents/"+url.PathEscape(documentID)+"/delete/", nil, "", nil)
}

func (c *Client) getJSON(ctx context.Context, op, path string, out interface{}) error {
	return c.do(ctx, op, http.MethodGet, path, nil, "", out)
}

func (c *Client) do(ctx context.Context, op, method, path string, body io.Reader, contentType string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	token, ok := docservice.BearerTokenFrom(ctx)
	if !ok {
		token = c.Token
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.Client.Do(req)
	if err != nil {
		return transportError(ctx, op, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return transportError(ctx, op, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &docservice.Error{
			Op:      op,
			Kind:    docservice.KindHTTPStatus,
			Status:  resp.StatusCode,
			Message: errorMessage(resp.StatusCode, data),
		}
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}

	if err := json.Unmarshal(data, out); err != nil {
		return &docservice.Error{Op: op, Kind: docservice.KindInvalidResponse, Err: err}
	}
	return nil
}

func transportError(ctx context.Context, op string, err error) error {
	kind := docservice.KindNetwork

	var netErr net.Error
	switch {
	case errors.Is(ctx.Err(), context.Canceled):
		kind = docservice.KindCanceled
	case errors.Is(ctx.Err(), context.DeadlineExceeded), errors.Is(err, context.DeadlineExceeded):
		kind = docservice.KindTimeout
	case errors.As(err, &netErr) && netErr.Timeout():
		kind = docservice.KindTimeout
	}

	return &docservice.Error{Op: op, Kind: kind, Err: err}
}

func errorMessage(status int, body []byte) string {
	var payload errorPayload
	if err := json.Unmarshal(body, &payload); err == nil {
		if payload.Error != "" {
			return payload.Error
		}
		if payload.Detail != "" {
			return payload.Detail
		}
	}
	return http.StatusText(status)
}

func nonNilChunks(chunks []docservice.Chunk) []docservice.Chunk {
	if chunks == nil {
		return []docservice.Chunk{}
	}
	return chunks
}
