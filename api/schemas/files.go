package schemas

import (
	"encoding/base64"
	"fmt"
	"mime"
	"path/filepath"
	"strings"
)

// FileAttachment is a document payload injected into a native file input.
// Path is only read by the applicant loader, which replaces it with Base64Data.
type FileAttachment struct {
	Name       string `json:"name" yaml:"name"`
	Type       string `json:"type" yaml:"type"`
	Base64Data string `json:"base64Data,omitempty" yaml:"base64_data,omitempty"`
	Path       string `json:"path,omitempty" yaml:"path,omitempty"`
}

// Bytes decodes the payload.
func (f *FileAttachment) Bytes() ([]byte, error) {
	if f == nil {
		return nil, fmt.Errorf("nil attachment")
	}
	data := strings.TrimSpace(f.Base64Data)
	// Payloads exported from a browser often keep the data URL prefix.
	if i := strings.Index(data, ";base64,"); i >= 0 && strings.HasPrefix(data, "data:") {
		data = data[i+len(";base64,"):]
	}
	b, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, fmt.Errorf("attachment %q: invalid base64 payload: %w", f.Name, err)
	}
	return b, nil
}

// Validate checks that the attachment can be materialised as a browser File.
func (f *FileAttachment) Validate() error {
	if f == nil {
		return fmt.Errorf("attachment is missing")
	}
	if strings.TrimSpace(f.Name) == "" {
		return fmt.Errorf("attachment name is required")
	}
	if strings.TrimSpace(f.Base64Data) == "" {
		return fmt.Errorf("attachment %q has no payload", f.Name)
	}
	if _, err := f.Bytes(); err != nil {
		return err
	}
	return nil
}

// NewFileAttachment encodes raw bytes. The MIME type falls back to the one
// registered for the file extension, then to application/octet-stream.
func NewFileAttachment(name, mimeType string, data []byte) *FileAttachment {
	if mimeType == "" {
		mimeType = mimeTypeFor(name)
	}
	return &FileAttachment{
		Name:       name,
		Type:       mimeType,
		Base64Data: base64.StdEncoding.EncodeToString(data),
	}
}

func mimeTypeFor(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	switch ext {
	case ".pdf":
		return "application/pdf"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	}
	if t := mime.TypeByExtension(ext); t != "" {
		return t
	}
	return "application/octet-stream"
}
