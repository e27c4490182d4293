package api

import (
	"bytes"
	"fmt"
	"io"
	"mime/multipart"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"pdf_unmark/pdf"
)

// upload is a validated document read fully into memory.
type upload struct {
	name     string
	mimeType string
	data     []byte
}

// readUpload validates the uploaded file and reads it. Only PDFs and raster
// images are accepted; nothing is written to disk.
func readUpload(file multipart.File, header *multipart.FileHeader, maxSize int64) (*upload, error) {
	if header.Size > maxSize {
		return nil, fmt.Errorf("%w: file size %d exceeds maximum allowed %d bytes", errFileTooLarge, header.Size, maxSize)
	}

	data, err := io.ReadAll(io.LimitReader(file, maxSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}
	if int64(len(data)) > maxSize {
		return nil, fmt.Errorf("%w: file exceeds maximum allowed %d bytes", errFileTooLarge, maxSize)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: uploaded file is empty", errBadRequest)
	}

	name := sanitizeFilename(header.Filename)
	declared := header.Header.Get("Content-Type")
	if err := validateHeader(name, declared, data); err != nil {
		return nil, err
	}
	return &upload{name: name, mimeType: declared, data: data}, nil
}

// validateHeader checks the leading bytes of the file against its claimed type.
func validateHeader(name, declared string, data []byte) error {
	head := data[:min(len(data), SniffLength)]
	claimsPDF := strings.EqualFold(filepath.Ext(name), ".pdf") || strings.HasPrefix(declared, pdf.MIMEPDF)

	if bytes.HasPrefix(head, []byte("%PDF")) {
		return nil
	}
	if claimsPDF {
		return fmt.Errorf("%w: invalid PDF file: header does not match", errBadRequest)
	}
	if detected := mimetype.Detect(head); !strings.HasPrefix(detected.String(), "image/") {
		return fmt.Errorf("%w: unsupported file type %s; upload a PDF, JPEG, PNG or WebP", errBadRequest, detected.String())
	}
	return nil
}

// sanitizeFilename removes path traversal attempts and dangerous characters
func sanitizeFilename(filename string) string {
	filename = strings.ReplaceAll(filename, "..", "")
	filename = strings.ReplaceAll(filename, "/", "_")
	filename = strings.ReplaceAll(filename, "\\", "_")
	filename = strings.Map(func(r rune) rune {
		if r < 0x20 || r == '"' {
			return -1
		}
		return r
	}, filename)
	filename = strings.TrimSpace(filepath.Base(filename))

	if filename == "" || filename == "." {
		filename = "document.pdf"
	}
	return filename
}
