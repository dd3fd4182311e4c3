package driven

import "context"

// SettingsStore is the driven port for dynamic user settings. The engine
// reads flags through it on every operation rather than caching them, so
// settings changes take effect without a restart.
type SettingsStore interface {
	// Get returns the stored value and whether the key exists.
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
}
