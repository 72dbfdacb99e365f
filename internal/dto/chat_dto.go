package dto

import (
	"time"

	"ai-docchat/pkg/docservice"
)

type OpenSessionRequest struct {
	DocumentID docservice.ID `json:"document_id" validate:"required"`
	// Fresh skips adopting the latest prior conversation.
	Fresh bool `json:"fresh"`
}

type AskQuestionRequest struct {
	Question string `json:"question" validate:"required,max=4000"`
}

type MessageResponse struct {
	Id        string    `json:"id"`
	Role      string    `json:"role"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
	IsError   bool      `json:"is_error"`
}

type ChatErrorResponse struct {
	Kind    string `json:"kind"`
	Status  int    `json:"status,omitempty"`
	Message string `json:"message"`
}

type ChatSessionResponse struct {
	ViewId     string             `json:"view_id"`
	DocumentId string             `json:"document_id"`
	SessionId  *string            `json:"session_id"`
	Messages   []MessageResponse  `json:"messages"`
	Pending    bool               `json:"pending"`
	Highlights []int              `json:"highlights"`
	LastError  *ChatErrorResponse `json:"last_error"`
	Revision   uint64             `json:"revision"`
	Closed     bool               `json:"closed,omitempty"`
}

type ChunkResponse struct {
	ChunkIndex  int    `json:"chunk_index"`
	PageNumber  *int   `json:"page_number"`
	Content     string `json:"content"`
	Highlighted bool   `json:"highlighted"`
}

type OpenSessionResponse struct {
	ViewId    string              `json:"view_id"`
	ViewToken string              `json:"view_token"`
	Document  *DocumentResponse   `json:"document"`
	Chunks    []ChunkResponse     `json:"chunks"`
	Session   ChatSessionResponse `json:"session"`
}

// SocketFrame is a server-to-client websocket message.
type SocketFrame struct {
	Type  string      `json:"type"`
	Data  interface{} `json:"data,omitempty"`
	Error string      `json:"error,omitempty"`
}

// SocketIntent is a client-to-server websocket message.
type SocketIntent struct {
	Type     string `json:"type"`
	Question string `json:"question"`
}

const (
	FrameSnapshot = "snapshot"
	FrameRejected = "rejected"
	IntentAsk     = "ask"
)
