// api/schemas/loader.go
package schemas

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/mitchellh/go-homedir"
	"gopkg.in/yaml.v3"
)

// LoadAutomationConfig reads an applicant record from a YAML or JSON file.
// Attachments given by path are read and base64 encoded; relative paths are
// resolved against the directory of the record.
func LoadAutomationConfig(path string) (*AutomationConfig, error) {
	expanded, err := homedir.Expand(path)
	if err != nil {
		return nil, fmt.Errorf("failed to expand path %q: %w", path, err)
	}
	raw, err := os.ReadFile(expanded)
	if err != nil {
		return nil, fmt.Errorf("failed to read applicant file: %w", err)
	}

	var cfg AutomationConfig
	switch strings.ToLower(filepath.Ext(expanded)) {
	case ".json":
		if err := jsoniter.ConfigCompatibleWithStandardLibrary.Unmarshal(raw, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse applicant JSON: %w", err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse applicant YAML: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported applicant file type %q (want .json, .yaml or .yml)", filepath.Ext(expanded))
	}

	baseDir := filepath.Dir(expanded)
	for _, doc := range []*FileAttachment{cfg.Documents.Invoice, cfg.Documents.PaymentProof} {
		if err := resolveAttachment(doc, baseDir); err != nil {
			return nil, err
		}
	}
	return &cfg, nil
}

func resolveAttachment(doc *FileAttachment, baseDir string) error {
	if doc == nil || doc.Base64Data != "" || doc.Path == "" {
		return nil
	}
	p, err := homedir.Expand(doc.Path)
	if err != nil {
		return fmt.Errorf("failed to expand attachment path %q: %w", doc.Path, err)
	}
	if !filepath.IsAbs(p) {
		p = filepath.Join(baseDir, p)
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return fmt.Errorf("failed to read attachment %q: %w", doc.Path, err)
	}
	name := doc.Name
	if name == "" {
		name = filepath.Base(p)
	}
	encoded := NewFileAttachment(name, doc.Type, data)
	doc.Name, doc.Type, doc.Base64Data = encoded.Name, encoded.Type, encoded.Base64Data
	doc.Path = ""
	return nil
}
