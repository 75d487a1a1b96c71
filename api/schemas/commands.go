// api/schemas/commands.go
package schemas

import (
	"fmt"
	"strings"

	jsoniter "github.com/json-iterator/go"
)

// Action names a command sent to the engine. The values match the message
// format used by the status panel and the start/fill requests.
type Action string

const (
	ActionStartAutomation  Action = "startAutomation"
	ActionFillCurrentPage  Action = "fillCurrentPage"
	ActionPause            Action = "pause"
	ActionResume           Action = "resume"
	ActionStop             Action = "stop"
	ActionToggleDetailView Action = "toggle-detail-view"
)

// Command is a single request to the engine.
type Command struct {
	Action Action            `json:"action"`
	Config *AutomationConfig `json:"config,omitempty"`
}

var commandAliases = map[string]Action{
	"start":              ActionStartAutomation,
	"startautomation":    ActionStartAutomation,
	"fill":               ActionFillCurrentPage,
	"fillcurrentpage":    ActionFillCurrentPage,
	"pause":              ActionPause,
	"p":                  ActionPause,
	"resume":             ActionResume,
	"r":                  ActionResume,
	"stop":               ActionStop,
	"s":                  ActionStop,
	"toggle-detail-view": ActionToggleDetailView,
	"detail":             ActionToggleDetailView,
	"d":                  ActionToggleDetailView,
}

// ParseCommand accepts either a JSON message ({"action":"pause"}) or a bare
// command word as typed on a terminal or appended to a control file.
func ParseCommand(raw []byte) (Command, error) {
	text := strings.TrimSpace(string(raw))
	if text == "" {
		return Command{}, fmt.Errorf("empty command")
	}
	if strings.HasPrefix(text, "{") {
		var cmd Command
		if err := jsoniter.ConfigCompatibleWithStandardLibrary.Unmarshal([]byte(text), &cmd); err != nil {
			return Command{}, fmt.Errorf("invalid command message: %w", err)
		}
		action, ok := commandAliases[strings.ToLower(string(cmd.Action))]
		if !ok {
			return Command{}, fmt.Errorf("unknown command action %q", cmd.Action)
		}
		cmd.Action = action
		return cmd, nil
	}
	action, ok := commandAliases[strings.ToLower(text)]
	if !ok {
		return Command{}, fmt.Errorf("unknown command %q", text)
	}
	return Command{Action: action}, nil
}
