// internal/session/repository.go
package session

import (
	"context"
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/xkilldash9x/isde-autofill/api/schemas"
	"github.com/xkilldash9x/isde-autofill/internal/steps"
	"github.com/xkilldash9x/isde-autofill/internal/store"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// DefaultKeyPrefix namespaces the keys in shared stores such as sessionStorage.
const DefaultKeyPrefix = "isde_autofill_"

// Key suffixes of the persisted layout.
const (
	keyStep     = "current_step"
	keyConfig   = "config"
	keyState    = "state"
	keyNavClick = "nav_click_at"
)

// Repository reads and writes an AutomationSession through a store.KV.
type Repository struct {
	kv     store.KV
	prefix string
}

// NewRepository wraps kv. An empty prefix selects DefaultKeyPrefix.
func NewRepository(kv store.KV, prefix string) *Repository {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &Repository{kv: kv, prefix: prefix}
}

func (r *Repository) key(suffix string) string { return r.prefix + suffix }

// Save writes the whole session.
func (r *Repository) Save(ctx context.Context, s *AutomationSession) error {
	raw, err := json.Marshal(s.Config)
	if err != nil {
		return fmt.Errorf("failed to encode applicant config: %w", err)
	}
	if err := r.kv.Set(ctx, r.key(keyConfig), string(raw)); err != nil {
		return fmt.Errorf("failed to persist applicant config: %w", err)
	}
	if err := r.SaveState(ctx, s); err != nil {
		return err
	}
	return r.SaveStep(ctx, s.CurrentStep)
}

// SaveState writes the flags and loop counters without touching the config.
func (r *Repository) SaveState(ctx context.Context, s *AutomationSession) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to encode session state: %w", err)
	}
	if err := r.kv.Set(ctx, r.key(keyState), string(raw)); err != nil {
		return fmt.Errorf("failed to persist session state: %w", err)
	}
	return nil
}

// SaveStep persists the authoritative stage.
func (r *Repository) SaveStep(ctx context.Context, id steps.ID) error {
	if err := r.kv.Set(ctx, r.key(keyStep), id.String()); err != nil {
		return fmt.Errorf("failed to persist current step: %w", err)
	}
	return nil
}

// LoadStep returns the persisted stage, or "" when none was stored.
func (r *Repository) LoadStep(ctx context.Context) (steps.ID, error) {
	v, ok, err := r.kv.Get(ctx, r.key(keyStep))
	if err != nil {
		return "", fmt.Errorf("failed to read current step: %w", err)
	}
	if !ok || v == "" {
		return "", nil
	}
	return steps.Parse(v), nil
}

// Load reads a persisted session. The boolean is false when no session exists.
func (r *Repository) Load(ctx context.Context) (*AutomationSession, bool, error) {
	rawState, ok, err := r.kv.Get(ctx, r.key(keyState))
	if err != nil {
		return nil, false, fmt.Errorf("failed to read session state: %w", err)
	}
	if !ok {
		return nil, false, nil
	}
	s := &AutomationSession{}
	if err := json.Unmarshal([]byte(rawState), s); err != nil {
		return nil, false, fmt.Errorf("failed to decode session state: %w", err)
	}

	rawConfig, ok, err := r.kv.Get(ctx, r.key(keyConfig))
	if err != nil {
		return nil, false, fmt.Errorf("failed to read applicant config: %w", err)
	}
	if ok && rawConfig != "" && rawConfig != "null" {
		cfg := &schemas.AutomationConfig{}
		if err := json.Unmarshal([]byte(rawConfig), cfg); err != nil {
			return nil, false, fmt.Errorf("failed to decode applicant config: %w", err)
		}
		s.Config = cfg
	}

	if s.CurrentStep, err = r.LoadStep(ctx); err != nil {
		return nil, false, err
	}
	if s.CurrentStep.IsEmpty() {
		s.CurrentStep = steps.Initial
	}
	return s, true, nil
}

// NavClick records a navigation-triggering click and the stage it leads to.
type NavClick struct {
	Next steps.ID  `json:"next"`
	At   time.Time `json:"at"`
}

// MarkNavClick records a navigation-triggering click.
func (r *Repository) MarkNavClick(ctx context.Context, click NavClick) error {
	raw, err := json.Marshal(click)
	if err != nil {
		return fmt.Errorf("failed to encode navigation click: %w", err)
	}
	if err := r.kv.Set(ctx, r.key(keyNavClick), string(raw)); err != nil {
		return fmt.Errorf("failed to persist navigation click: %w", err)
	}
	return nil
}

// LastNavClick returns the most recent navigation click. A malformed value
// is treated as absent.
func (r *Repository) LastNavClick(ctx context.Context) (NavClick, bool, error) {
	v, ok, err := r.kv.Get(ctx, r.key(keyNavClick))
	if err != nil {
		return NavClick{}, false, fmt.Errorf("failed to read navigation click: %w", err)
	}
	if !ok {
		return NavClick{}, false, nil
	}
	var click NavClick
	if err := json.Unmarshal([]byte(v), &click); err != nil {
		return NavClick{}, false, nil
	}
	return click, true, nil
}

// ClearNavClick forgets the last navigation click.
func (r *Repository) ClearNavClick(ctx context.Context) error {
	if err := r.kv.Delete(ctx, r.key(keyNavClick)); err != nil {
		return fmt.Errorf("failed to clear navigation click: %w", err)
	}
	return nil
}

// Clear removes every key of the session.
func (r *Repository) Clear(ctx context.Context) error {
	err := r.kv.Delete(ctx, r.key(keyStep), r.key(keyConfig), r.key(keyState), r.key(keyNavClick))
	if err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	return nil
}
