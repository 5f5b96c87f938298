package plugins

import (
	"context"
	"fmt"
	"time"
)

// Entrypoint is the capability every plugin entry type implements.
// It is resolved once when the unit is constructed.
type Entrypoint interface {
	Init(ctx context.Context) error
	OnInitialization(ctx context.Context) error
	OnUninstall(ctx context.Context) error
}

// Manifest describes plugin metadata
type Manifest struct {
	ID          string            `yaml:"id" json:"id"`                                 // Unique ID (e.g., "alpha")
	Name        string            `yaml:"name" json:"name"`                             // Display name
	Version     string            `yaml:"version" json:"version,omitempty"`             // Semver
	APIVersion  string            `yaml:"api_version" json:"api_version,omitempty"`     // Host API version
	Description string            `yaml:"description" json:"description,omitempty"`     // Short description
	Author      string            `yaml:"author" json:"author,omitempty"`               // Author name
	License     string            `yaml:"license" json:"license,omitempty"`             // License (e.g., MIT, Apache-2.0)
	Homepage    string            `yaml:"homepage" json:"homepage,omitempty"`           // Homepage URL
	Main        string            `yaml:"main" json:"main"`                             // Entry type name
	Metadata    map[string]string `yaml:"metadata,omitempty" json:"metadata,omitempty"` // Additional metadata
}

// State is a unit's position in the lifecycle
type State int

const (
	StateConstructed State = iota
	StateInitialized
	StateActive
	StateUninstalled
)

func (s State) String() string {
	switch s {
	case StateConstructed:
		return "constructed"
	case StateInitialized:
		return "initialized"
	case StateActive:
		return "active"
	case StateUninstalled:
		return "uninstalled"
	default:
		return "unknown"
	}
}

// MarshalText renders the state name in JSON payloads.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(text []byte) error {
	parsed, err := ParseState(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ParseState returns the state named s
func ParseState(s string) (State, error) {
	for _, state := range []State{StateConstructed, StateInitialized, StateActive, StateUninstalled} {
		if state.String() == s {
			return state, nil
		}
	}
	return StateConstructed, fmt.Errorf("unknown lifecycle state %q", s)
}

// Phase names a lifecycle entry point
type Phase string

const (
	PhaseInit             Phase = "init"
	PhaseOnInitialization Phase = "on_initialization"
	PhaseOnUninstall      Phase = "on_uninstall"
)

// PluginInfo contains runtime information about a registered plugin
type PluginInfo struct {
	Manifest   *Manifest `json:"manifest"`
	Path       string    `json:"path"`
	State      State     `json:"state"`
	Running    Phase     `json:"running,omitempty"`
	BoundaryID string    `json:"boundary_id"`
	LoadedAt   time.Time `json:"loaded_at"`
	LastError  string    `json:"last_error,omitempty"`
}

// Event records one lifecycle transition attempt
type Event struct {
	PluginID  string        `json:"plugin_id"`
	Phase     Phase         `json:"phase"`
	From      State         `json:"from"`
	To        State         `json:"to"`
	Success   bool          `json:"success"`
	Error     string        `json:"error,omitempty"`
	Duration  time.Duration `json:"duration"`
	Timestamp time.Time     `json:"timestamp"`
}

// EventSink receives lifecycle events. Implementations must be safe for concurrent use.
type EventSink interface {
	Record(ctx context.Context, event Event) error
}
