package call

import (
	"encoding/json"
	"fmt"
	"os"
)

// ActionKind names what a menu digit does. The dispatch switch treats the
// set as open: adding a kind means adding a case, nothing else.
type ActionKind string

const (
	// ActionPlay streams a named audio file from the prompt store.
	ActionPlay ActionKind = "play"
	// ActionInfo speaks the built-in weather, time and name-day report.
	ActionInfo ActionKind = "info"
	// ActionStatus speaks the system status report.
	ActionStatus ActionKind = "status"
	// ActionAssistant records the caller, runs the assistant pipeline and
	// speaks the reply.
	ActionAssistant ActionKind = "assistant"
	// ActionVoicemail records and persists a message for the operator.
	ActionVoicemail ActionKind = "voicemail"
	// ActionNone is an explicit no-op.
	ActionNone ActionKind = "none"
)

// Action is one configured menu entry.
type Action struct {
	Kind ActionKind `json:"action"`
	// File names the prompt store clip for ActionPlay.
	File string `json:"file,omitempty"`
}

// Menu maps keypad digits to actions. Loaded from configuration; the core
// never owns the mapping, only dispatches on it.
type Menu struct {
	actions map[string]Action
}

// validKinds is the closed set accepted from configuration. Unknown kinds
// are a configuration error, caught at load time rather than mid-call.
var validKinds = map[ActionKind]bool{
	ActionPlay:      true,
	ActionInfo:      true,
	ActionStatus:    true,
	ActionAssistant: true,
	ActionVoicemail: true,
	ActionNone:      true,
}

// ParseMenu decodes and validates a JSON menu:
//
//	{"1": {"action": "play", "file": "hours.wav"},
//	 "2": {"action": "info"},
//	 "9": {"action": "voicemail"}}
func ParseMenu(data []byte) (*Menu, error) {
	var raw map[string]Action
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse menu: %w", err)
	}
	for digit, a := range raw {
		if len(digit) != 1 || !isMenuDigit(digit[0]) {
			return nil, fmt.Errorf("menu key %q: must be a single keypad symbol", digit)
		}
		if !validKinds[a.Kind] {
			return nil, fmt.Errorf("menu digit %q: unknown action %q", digit, a.Kind)
		}
		if a.Kind == ActionPlay && a.File == "" {
			return nil, fmt.Errorf("menu digit %q: play action needs a file", digit)
		}
	}
	return &Menu{actions: raw}, nil
}

// LoadMenu reads and parses a menu file. A missing file yields the default
// menu rather than an error so a fresh install answers calls out of the box.
func LoadMenu(path string) (*Menu, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return DefaultMenu(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read menu %s: %w", path, err)
	}
	return ParseMenu(data)
}

// DefaultMenu is the mapping used when no menu file is configured.
func DefaultMenu() *Menu {
	return &Menu{actions: map[string]Action{
		"1": {Kind: ActionInfo},
		"2": {Kind: ActionStatus},
		"8": {Kind: ActionAssistant},
		"9": {Kind: ActionVoicemail},
	}}
}

// Resolve returns the action configured for a digit. Unmapped digits
// resolve to ActionNone with ok=false.
func (m *Menu) Resolve(digit byte) (Action, bool) {
	a, ok := m.actions[string(digit)]
	if !ok {
		return Action{Kind: ActionNone}, false
	}
	return a, true
}

// Digits returns the configured digits, for logging and the status API.
func (m *Menu) Digits() []string {
	out := make([]string, 0, len(m.actions))
	for d := range m.actions {
		out = append(out, d)
	}
	return out
}

func isMenuDigit(c byte) bool {
	return (c >= '0' && c <= '9') || c == '*' || c == '#'
}
