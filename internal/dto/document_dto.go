package dto

import "time"

type DocumentResponse struct {
	Id               string    `json:"id"`
	Title            string    `json:"title"`
	File             string    `json:"file"`
	FileType         string    `json:"file_type"`
	FileKind         string    `json:"file_kind"`
	Size             int64     `json:"size"`
	SizeLabel        string    `json:"size_label"`
	Pages            *int      `json:"pages"`
	ProcessingStatus string    `json:"processing_status"`
	CreatedAt        time.Time `json:"created_at"`
}

type UploadDocumentResponse struct {
	Id      string `json:"id"`
	Title   string `json:"title"`
	Message string `json:"message"`
}
