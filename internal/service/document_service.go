package service

import (
	"context"
	"fmt"
	"io"

	"ai-docchat/internal/dto"
	"ai-docchat/internal/mapper"
	"ai-docchat/internal/pkg/logger"
	"ai-docchat/pkg/docservice"
	"ai-docchat/pkg/utils"
)

// IDocumentService exposes the document library of the external service.
type IDocumentService interface {
	List(ctx context.Context) ([]*dto.DocumentResponse, error)
	Show(ctx context.Context, documentID string) (*dto.DocumentResponse, error)
	Upload(ctx context.Context, filename string, size int64, content io.Reader) (*dto.UploadDocumentResponse, error)
	Delete(ctx context.Context, documentID string) error
}

type documentService struct {
	provider docservice.Provider
	mapper   *mapper.ChatMapper
	logger   logger.ILogger
}

func NewDocumentService(provider docservice.Provider, log logger.ILogger) IDocumentService {
	return &documentService{
		provider: provider,
		mapper:   mapper.NewChatMapper(),
		logger:   log,
	}
}

func (s *documentService) List(ctx context.Context) ([]*dto.DocumentResponse, error) {
	docs, err := s.provider.ListDocuments(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	return s.mapper.DocumentsToResponse(docs), nil
}

func (s *documentService) Show(ctx context.Context, documentID string) (*dto.DocumentResponse, error) {
	doc, err := s.provider.GetDocument(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to get document %s: %w", documentID, err)
	}
	return s.mapper.DocumentToResponse(doc), nil
}

func (s *documentService) Upload(ctx context.Context, filename string, size int64, content io.Reader) (*dto.UploadDocumentResponse, error) {
	body, err := utils.ValidateUpload(filename, size, content)
	if err != nil {
		return nil, err
	}

	res, err := s.provider.UploadDocument(ctx, filename, body)
	if err != nil {
		return nil, fmt.Errorf("failed to upload %s: %w", filename, err)
	}

	s.logger.Info("DocumentService", "Document uploaded", map[string]interface{}{
		"document_id": res.ID.String(),
		"filename":    filename,
		"size":        size,
	})

	return &dto.UploadDocumentResponse{
		Id:      res.ID.String(),
		Title:   res.Title,
		Message: res.Message,
	}, nil
}

func (s *documentService) Delete(ctx context.Context, documentID string) error {
	if err := s.provider.DeleteDocument(ctx, documentID); err != nil {
		return fmt.Errorf("failed to delete document %s: %w", documentID, err)
	}
	s.logger.Info("DocumentService", "Document deleted", map[string]interface{}{"document_id": documentID})
	return nil
}
