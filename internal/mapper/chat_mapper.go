package mapper

import (
	"ai-docchat/internal/dto"
	"ai-docchat/pkg/docservice"
	"ai-docchat/pkg/store"
	"ai-docchat/pkg/utils"
)

type ChatMapper struct{}

func NewChatMapper() *ChatMapper {
	return &ChatMapper{}
}

func (m *ChatMapper) SnapshotToResponse(viewID string, snap store.Snapshot) dto.ChatSessionResponse {
	messages := make([]dto.MessageResponse, len(snap.Messages))
	for i, msg := range snap.Messages {
		messages[i] = dto.MessageResponse{
			Id:        msg.ID,
			Role:      string(msg.Role),
			Text:      msg.Text,
			CreatedAt: msg.CreatedAt,
			IsError:   msg.IsError,
		}
	}

	var lastErr *dto.ChatErrorResponse
	if snap.LastError != nil {
		lastErr = &dto.ChatErrorResponse{
			Kind:    string(snap.LastError.Kind),
			Status:  snap.LastError.Status,
			Message: snap.LastError.Message,
		}
	}

	highlights := snap.Highlights
	if highlights == nil {
		highlights = []int{}
	}

	return dto.ChatSessionResponse{
		ViewId:     viewID,
		DocumentId: snap.DocumentID,
		SessionId:  snap.SessionID,
		Messages:   messages,
		Pending:    snap.Pending,
		Highlights: highlights,
		LastError:  lastErr,
		Revision:   snap.Revision,
		Closed:     snap.Closed,
	}
}

func (m *ChatMapper) DocumentToResponse(doc *docservice.Document) *dto.DocumentResponse {
	if doc == nil {
		return nil
	}
	return &dto.DocumentResponse{
		Id:               doc.ID.String(),
		Title:            doc.Title,
		File:             doc.File,
		FileType:         doc.FileType,
		FileKind:         utils.FileKind(doc.FileType),
		Size:             doc.Size,
		SizeLabel:        utils.FormatFileSize(doc.Size),
		Pages:            doc.Pages,
		ProcessingStatus: doc.ProcessingStatus,
		CreatedAt:        doc.CreatedAt,
	}
}

func (m *ChatMapper) DocumentsToResponse(docs []docservice.Document) []*dto.DocumentResponse {
	res := make([]*dto.DocumentResponse, 0, len(docs))
	for i := range docs {
		res = append(res, m.DocumentToResponse(&docs[i]))
	}
	return res
}

// ChunksToResponse marks the chunks whose index is highlighted.
func (m *ChatMapper) ChunksToResponse(chunks []docservice.Chunk, highlights []int) []dto.ChunkResponse {
	marked := make(map[int]bool, len(highlights))
	for _, idx := range highlights {
		marked[idx] = true
	}

	res := make([]dto.ChunkResponse, len(chunks))
	for i, c := range chunks {
		res[i] = dto.ChunkResponse{
			ChunkIndex:  c.ChunkIndex,
			PageNumber:  c.PageNumber,
			Content:     c.Content,
			Highlighted: marked[c.ChunkIndex],
		}
	}
	return res
}
