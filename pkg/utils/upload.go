package utils

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"mime"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

const MaxUploadSize = 10 * 1024 * 1024

var (
	ErrFileTooLarge        = errors.New("file is too large")
	ErrUnsupportedFileType = errors.New("file type not supported")
)

// supportedTypes maps an accepted extension to the content types that may back it.
// Legacy Office formats sniff as OLE containers and OpenXML formats as zip archives.
var supportedTypes = map[string][]string{
	".pdf":  {"application/pdf"},
	".doc":  {"application/msword", "application/x-ole-storage"},
	".docx": {"application/vnd.openxmlformats-officedocument.wordprocessingml.document", "application/zip"},
	".txt":  {"text/plain"},
	".ppt":  {"application/vnd.ms-powerpoint", "application/x-ole-storage"},
	".pptx": {"application/vnd.openxmlformats-officedocument.presentationml.presentation", "application/zip"},
}

// SupportedExtensions lists accepted extensions in a stable order.
var SupportedExtensions = []string{".pdf", ".doc", ".docx", ".txt", ".ppt", ".pptx"}

// ValidateUpload checks the size limit, the extension and the sniffed content type of an upload.
// The returned reader yields the full content, including the bytes consumed for sniffing.
func ValidateUpload(filename string, size int64, content io.Reader) (io.Reader, error) {
	if size > MaxUploadSize {
		return nil, fmt.Errorf("%w: must be less than %s", ErrFileTooLarge, FormatFileSize(MaxUploadSize))
	}

	ext := strings.ToLower(filepath.Ext(filename))
	allowed, ok := supportedTypes[ext]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFileType, ext)
	}

	head := make([]byte, 3072)
	n, err := io.ReadFull(content, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}
	head = head[:n]

	detected := mimetype.Detect(head)
	if !matchesAny(detected, allowed) {
		return nil, fmt.Errorf("%w: %s content in a %s file", ErrUnsupportedFileType, detected.String(), ext)
	}

	return io.MultiReader(bytes.NewReader(head), content), nil
}

func matchesAny(m *mimetype.MIME, allowed []string) bool {
	for cur := m; cur != nil; cur = cur.Parent() {
		base, _, err := mime.ParseMediaType(cur.String())
		if err != nil {
			continue
		}
		for _, a := range allowed {
			if base == a {
				return true
			}
		}
	}
	return false
}

// FormatFileSize renders a byte count the way the library view displays it, e.g. "1.5 KB".
func FormatFileSize(bytes int64) string {
	if bytes <= 0 {
		return "0 Bytes"
	}

	units := []string{"Bytes", "KB", "MB", "GB"}
	i := int(math.Floor(math.Log(float64(bytes)) / math.Log(1024)))
	if i >= len(units) {
		i = len(units) - 1
	}

	value := float64(bytes) / math.Pow(1024, float64(i))
	value = math.Round(value*100) / 100
	return strconv.FormatFloat(value, 'f', -1, 64) + " " + units[i]
}

// FileKind returns a short label for a document's file type.
func FileKind(fileType string) string {
	t := strings.ToLower(fileType)
	switch {
	case strings.Contains(t, "pdf"):
		return "PDF"
	case strings.Contains(t, "powerpoint"), strings.Contains(t, "presentation"), strings.Contains(t, "ppt"):
		return "Slides"
	case strings.Contains(t, "word"), strings.Contains(t, "doc"):
		return "Word"
	case strings.Contains(t, "text"), strings.Contains(t, "txt"):
		return "Text"
	default:
		return "File"
	}
}
