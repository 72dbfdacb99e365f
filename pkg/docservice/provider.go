package docservice

import (
	"context"
	"io"
	"time"
)

// Provider is the contract of the external document/question-answering service.
type Provider interface {
	GetDocument(ctx context.Context, documentID string) (*Document, error)
	GetChunks(ctx context.Context, documentID string) ([]Chunk, error)
	GetChatHistory(ctx context.Context, documentID string) ([]ChatSession, error)
	Ask(ctx context.Context, req AskRequest) (*AskResponse, error)

	ListDocuments(ctx context.Context) ([]Document, error)
	UploadDocument(ctx context.Context, filename string, content io.Reader) (*UploadResult, error)
	DeleteDocument(ctx context.Context, documentID string) error
}

const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

type Document struct {
	ID               ID        `json:"id"`
	Title            string    `json:"title"`
	File             string    `json:"file"`
	FileType         string    `json:"file_type"`
	Size             int64     `json:"size"`
	Pages            *int      `json:"pages"`
	ProcessingStatus string    `json:"processing_status"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Chunk is one indexed passage of a document. Highlight indexes refer to ChunkIndex.
type Chunk struct {
	ChunkIndex int    `json:"chunk_index"`
	PageNumber *int   `json:"page_number"`
	Content    string `json:"content"`
}

type ChatTurn struct {
	Question  string    `json:"question"`
	Answer    string    `json:"answer"`
	CreatedAt time.Time `json:"created_at"`
}

// ChatSession is a prior conversation about a document as stored by the service.
type ChatSession struct {
	SessionID ID         `json:"session_id"`
	CreatedAt time.Time  `json:"created_at"`
	Messages  []ChatTurn `json:"messages"`
}

type AskRequest struct {
	DocumentID ID     `json:"document_id"`
	Question   string `json:"question"`
	SessionID  *ID    `json:"session_id"`
}

type AskResponse struct {
	Answer           string `json:"answer"`
	SessionID        ID     `json:"session_id"`
	HighlightIndexes []int  `json:"highlight_indexes"`
	ChunksUsed       int    `json:"chunks_used"`
}

type UploadResult struct {
	Message string `json:"message"`
	ID      ID     `json:"id"`
	Title   string `json:"title"`
}

// Latest returns the most recently created session, or nil when there is none.
// Ties keep the first occurrence, which matches the service's newest-first ordering.
func Latest(sessions []ChatSession) *ChatSession {
	var latest *ChatSession
	for i := range sessions {
		if latest == nil || sessions[i].CreatedAt.After(latest.CreatedAt) {
			latest = &sessions[i]
		}
	}
	return latest
}
