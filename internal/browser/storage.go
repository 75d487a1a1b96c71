// internal/browser/storage.go
package browser

import (
	"context"
	"fmt"
	"strings"
)

// SessionStorage keeps state in the tab's window.sessionStorage, which
// survives navigations within the portal but dies with the tab.
type SessionStorage struct {
	tab *Tab
}

// NewSessionStorage returns a store bound to tab.
func NewSessionStorage(tab *Tab) *SessionStorage {
	return &SessionStorage{tab: tab}
}

type storageEntry struct {
	Present bool   `json:"present"`
	Value   string `json:"value"`
}

func (s *SessionStorage) Get(ctx context.Context, key string) (string, bool, error) {
	k, err := json.Marshal(key)
	if err != nil {
		return "", false, err
	}
	expr := fmt.Sprintf(`(() => { const v = window.sessionStorage.getItem(%s); return v === null ? {present: false} : {present: true, value: v}; })()`, k)
	raw, err := s.tab.evaluateRaw(ctx, expr)
	if err != nil {
		return "", false, fmt.Errorf("failed to read sessionStorage key %q: %w", key, err)
	}
	var entry storageEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return "", false, fmt.Errorf("malformed sessionStorage result for %q: %w", key, err)
	}
	return entry.Value, entry.Present, nil
}

func (s *SessionStorage) Set(ctx context.Context, key, value string) error {
	k, err := json.Marshal(key)
	if err != nil {
		return err
	}
	v, err := json.Marshal(value)
	if err != nil {
		return err
	}
	expr := fmt.Sprintf(`window.sessionStorage.setItem(%s, %s)`, k, v)
	if _, err := s.tab.evaluateRaw(ctx, expr); err != nil {
		return fmt.Errorf("failed to write sessionStorage key %q: %w", key, err)
	}
	return nil
}

func (s *SessionStorage) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	encoded := make([]string, len(keys))
	for i, key := range keys {
		b, err := json.Marshal(key)
		if err != nil {
			return err
		}
		encoded[i] = string(b)
	}
	expr := fmt.Sprintf(`[%s].forEach((k) => window.sessionStorage.removeItem(k))`, strings.Join(encoded, ", "))
	if _, err := s.tab.evaluateRaw(ctx, expr); err != nil {
		return fmt.Errorf("failed to remove sessionStorage keys: %w", err)
	}
	return nil
}
