package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
)

// Setting keys accepted by UpdateSetting. All current settings are booleans.
// They are read from the settings store on every operation that depends on
// them, so changes take effect without restarting the daemon.
const (
	SettingMentionsOnly         = "mentions_only"
	SettingTeamMentions         = "team_mentions"
	SettingNotificationsEnabled = "notifications_enabled"
	SettingCollapsed            = "collapsed" // Consumed by the renderer; stored here so one API covers all flags.
)

var settingDefaults = map[string]string{
	SettingMentionsOnly:         "false",
	SettingTeamMentions:         "false",
	SettingNotificationsEnabled: "true",
	SettingCollapsed:            "false",
}

// ErrUnknownSetting is returned by UpdateSetting for keys outside the known set.
var ErrUnknownSetting = errors.New("unknown setting")

// ErrInvalidSettingValue is returned by UpdateSetting for values that do not
// parse as a boolean.
var ErrInvalidSettingValue = errors.New("invalid setting value")

// UpdateSetting validates and stores a dynamic setting.
func (e *Engine) UpdateSetting(ctx context.Context, key, value string) error {
	if _, ok := settingDefaults[key]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownSetting, key)
	}
	if _, err := strconv.ParseBool(value); err != nil {
		return fmt.Errorf("%w: setting %q wants a boolean, got %q", ErrInvalidSettingValue, key, value)
	}
	return e.settings.Set(ctx, key, value)
}

// boolSetting reads a boolean setting, falling back to its default when the
// key is unset or the store misbehaves.
func (e *Engine) boolSetting(ctx context.Context, key string) bool {
	value, ok, err := e.settings.Get(ctx, key)
	if err != nil {
		slog.Error("read setting failed", "key", key, "error", err)
		ok = false
	}
	if !ok {
		value = settingDefaults[key]
	}

	parsed, err := strconv.ParseBool(value)
	if err != nil {
		parsed, _ = strconv.ParseBool(settingDefaults[key])
	}
	return parsed
}
