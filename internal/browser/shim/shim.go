// internal/browser/shim/shim.go

// Package shim builds the page-side script the live browser host injects
// into every document of the automated tab.
package shim

import (
	_ "embed"
	"fmt"
	"strings"

	jsoniter "github.com/json-iterator/go"
)

// ConfigPlaceholder is replaced in the template with the JSON configuration.
const ConfigPlaceholder = "/*{{ISDE_AUTOFILL_CONFIG}}*/"

// Namespace is the window property the prelude installs.
const Namespace = "window.__isdeAutofill"

//go:embed prelude.js
var preludeTemplate string

// Config parameterises the prelude.
type Config struct {
	// Binding is the CDP runtime binding the status panel calls.
	Binding string `json:"binding"`
	// HiddenAttr marks invisible elements in snapshots.
	HiddenAttr string `json:"hiddenAttr"`
	// PanelID is the element id of the status panel host.
	PanelID string `json:"panelId"`
}

// DefaultPanelID is used when Config.PanelID is empty.
const DefaultPanelID = "isde-autofill-panel"

// Template returns the embedded prelude template.
func Template() string { return preludeTemplate }

// Inject replaces the placeholder in template with configJSON.
func Inject(template, configJSON string) (string, error) {
	if template == "" {
		return "", fmt.Errorf("template is empty")
	}
	if !strings.Contains(template, ConfigPlaceholder) {
		return "", fmt.Errorf("template does not contain the required placeholder: %s", ConfigPlaceholder)
	}
	if strings.TrimSpace(configJSON) == "" {
		configJSON = "{}"
	}
	return strings.Replace(template, ConfigPlaceholder, configJSON, 1), nil
}

// BuildPrelude renders the embedded prelude for cfg.
func BuildPrelude(cfg Config) (string, error) {
	if cfg.HiddenAttr == "" {
		return "", fmt.Errorf("hidden attribute name is required")
	}
	if cfg.PanelID == "" {
		cfg.PanelID = DefaultPanelID
	}
	raw, err := jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("failed to encode prelude configuration: %w", err)
	}
	return Inject(preludeTemplate, string(raw))
}
