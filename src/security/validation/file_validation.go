package validation

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/username/holdfolio/backend/src/logger"
)

// AllowedExtensions are the statement file extensions accepted for import.
var AllowedExtensions = map[string]bool{
	".csv": true,
	".txt": true,
}

// AllowedClientContentTypes is a map for quick lookup of allowed client-declared MIME types.
var AllowedClientContentTypes = map[string]bool{
	"text/csv":                 true,
	"application/csv":          true,
	"application/vnd.ms-excel": true, // browsers on Windows often send this for .csv
	"text/plain":               true,
	"application/octet-stream": true, // curl and some clients
	"application/pdf":          false,
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet": false,
}

// ValidateFileExtension checks the statement filename before anything is read.
func ValidateFileExtension(filename string) error {
	ext := strings.ToLower(filepath.Ext(filename))
	switch {
	case ext == ".pdf":
		return fmt.Errorf("%w: PDF statements are not supported, export the tradebook as CSV", ErrValidationFailed)
	case ext == ".xlsx" || ext == ".xls":
		return fmt.Errorf("%w: spreadsheet files are not supported, save the sheet as CSV", ErrValidationFailed)
	case !AllowedExtensions[ext]:
		return fmt.Errorf("%w: file extension '%s' is not allowed, upload a .csv file", ErrValidationFailed, ext)
	}
	return nil
}

// ValidateFileSize rejects empty files and files above maxBytes.
func ValidateFileSize(size, maxBytes int64) error {
	if size <= 0 {
		return fmt.Errorf("%w: file is empty", ErrValidationFailed)
	}
	if size > maxBytes {
		return fmt.Errorf("%w: file too large, max %d MB", ErrValidationFailed, maxBytes/(1024*1024))
	}
	return nil
}

// ValidateClientContentType checks the Content-Type header provided by the client.
// An absent header is accepted; the content check still runs.
func ValidateClientContentType(contentType string) error {
	if contentType == "" {
		return nil
	}
	mediaType := strings.ToLower(strings.TrimSpace(strings.Split(contentType, ";")[0]))
	if allowed, exists := AllowedClientContentTypes[mediaType]; !exists || !allowed {
		logger.L.Warn("Disallowed client-declared Content-Type", "contentType", contentType)
		return fmt.Errorf("%w: client-declared file type '%s' is not allowed for CSV upload", ErrValidationFailed, contentType)
	}
	return nil
}

// isBinaryContent reports null bytes or invalid UTF-8 in buf.
func isBinaryContent(buf []byte) bool {
	if bytes.IndexByte(buf, 0) != -1 {
		return true
	}
	// A multi-byte rune may be cut at the end of the sniffed window.
	for i := 0; i < utf8.UTFMax && len(buf) > 0; i++ {
		if utf8.Valid(buf) {
			return false
		}
		buf = buf[:len(buf)-1]
	}
	return !utf8.Valid(buf)
}

// ValidateFileContentByMagicBytes sniffs the first KB of file, rewinds it and
// returns the detected content type. Only text content is accepted.
func ValidateFileContentByMagicBytes(file io.ReadSeeker) (string, error) {
	if file == nil {
		return "", fmt.Errorf("file is nil")
	}

	buffer := make([]byte, 1024)
	n, err := io.ReadFull(file, buffer)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return "", fmt.Errorf("failed to read file for content type checking: %w", err)
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return "", fmt.Errorf("failed to reset file read pointer: %w", err)
	}
	if n == 0 {
		return "", fmt.Errorf("%w: file is empty", ErrValidationFailed)
	}

	if bytes.HasPrefix(buffer[:n], []byte("%PDF-")) {
		return "application/pdf", fmt.Errorf("%w: PDF statements are not supported, export the tradebook as CSV", ErrValidationFailed)
	}
	if isBinaryContent(buffer[:n]) {
		logger.L.Warn("File rejected: binary content detected in text upload")
		return "application/octet-stream", fmt.Errorf("%w: file appears to be binary, not text/CSV", ErrValidationFailed)
	}

	detected := http.DetectContentType(buffer[:n])
	detected = strings.ToLower(strings.Split(detected, ";")[0])
	allowedDetectedTypes := map[string]bool{
		"text/plain":      true,
		"text/csv":        true,
		"application/csv": true,
	}
	if !allowedDetectedTypes[detected] {
		logger.L.Warn("Disallowed detected file content type", "detectedContentType", detected)
		return detected, fmt.Errorf("%w: detected file content type '%s' is not allowed", ErrValidationFailed, detected)
	}

	logger.L.Debug("File content type validated", "detectedContentType", detected)
	return detected, nil
}
