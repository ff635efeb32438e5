// Package uploads receives and validates the video file of a conversion
// request.
package uploads

import (
	"errors"
	"fmt"
	"mime"
	"strings"
)

var (
	ErrMissingInput    = errors.New("no file uploaded")
	ErrInvalidFormat   = errors.New("unsupported file type")
	ErrPayloadTooLarge = errors.New("file too large")
)

// AllowedTypes is the set of declared MIME types accepted for conversion.
var AllowedTypes = map[string]bool{
	"video/mp4":        true,
	"video/x-matroska": true,
}

// Candidate describes a file before it is accepted.
type Candidate struct {
	Filename    string
	ContentType string
	Size        int64
}

// Input is a validated upload sitting on disk.
type Input struct {
	Filename    string
	ContentType string
	Size        int64
	Path        string
}

// Validate checks the declared type and the size of c against the allow-list
// and maxBytes. A negative Size means the size is not known yet and only the
// type is checked.
func Validate(c Candidate, maxBytes int64) error {
	if err := ValidateType(c.ContentType); err != nil {
		return err
	}
	if c.Size > maxBytes {
		return fmt.Errorf("%w: %d bytes exceeds limit of %d", ErrPayloadTooLarge, c.Size, maxBytes)
	}
	return nil
}

func ValidateType(contentType string) error {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidFormat, contentType)
	}
	if !AllowedTypes[strings.ToLower(mediaType)] {
		return fmt.Errorf("%w: %q", ErrInvalidFormat, mediaType)
	}
	return nil
}
