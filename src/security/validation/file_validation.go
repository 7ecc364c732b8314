package validation

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/username/sharepool/src/logger"
)

// ErrValidationFailed wraps any upload content validation failure.
var ErrValidationFailed = errors.New("file validation failed")

// AllowedClientContentTypes is a map for quick lookup of allowed client-declared MIME types.
var AllowedClientContentTypes = map[string]bool{
	"text/csv":                 true,
	"application/csv":          true,
	"application/vnd.ms-excel": true, // often used for CSV by older Excel
	"text/plain":               true,
	"application/octet-stream": true,
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet": false, // .xlsx is not accepted here
}

// ValidateClientContentType checks the Content-Type header provided by the client.
func ValidateClientContentType(contentType string) error {
	if allowed, exists := AllowedClientContentTypes[strings.ToLower(contentType)]; !exists || !allowed {
		if logger.L != nil {
			logger.L.Warn("Disallowed client-declared Content-Type", "contentType", contentType)
		}
		return fmt.Errorf("%w: client-declared file type '%s' is not allowed for CSV upload", ErrValidationFailed, contentType)
	}
	return nil
}

// ValidateFileContentByMagicBytes checks the actual file content signature.
// It returns the detected content type and an error if validation fails.
func ValidateFileContentByMagicBytes(file io.ReadSeeker) (string, error) {
	if file == nil {
		return "", fmt.Errorf("%w: file is nil", ErrValidationFailed)
	}

	buffer := make([]byte, 512)
	n, err := file.Read(buffer)
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("%w: failed to read file for content type checking: %v", ErrValidationFailed, err)
	}

	// Reset the read pointer so the actual parser can read the full file.
	if _, seekErr := file.Seek(0, io.SeekStart); seekErr != nil {
		return "", fmt.Errorf("%w: failed to reset file read pointer: %v", ErrValidationFailed, seekErr)
	}

	detectedContentType := http.DetectContentType(buffer[:n])
	base := strings.ToLower(strings.TrimSpace(strings.Split(detectedContentType, ";")[0]))
	switch base {
	case "text/csv", "text/plain", "application/csv", "application/octet-stream":
		return detectedContentType, nil
	}
	return detectedContentType, fmt.Errorf("%w: detected content type '%s' is not a CSV", ErrValidationFailed, detectedContentType)
}
