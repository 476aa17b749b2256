package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/lingualens/lingualens/internal/core"
)

const settingsPrefix = "settings."

// ErrUnknownSetting is returned for names outside the settings schema.
var ErrUnknownSetting = errors.New("unknown setting")

type settingSpec struct {
	normalize func(string) (string, error)
	apply     func(*core.Settings, string)
}

var settingSpecs = map[string]settingSpec{
	"enabled": {
		normalize: normalizeBool,
		apply:     func(s *core.Settings, v string) { s.Enabled = v == "true" },
	},
	"blur_toxic": {
		normalize: normalizeBool,
		apply:     func(s *core.Settings, v string) { s.BlurToxic = v == "true" },
	},
	"compact_mode": {
		normalize: normalizeBool,
		apply:     func(s *core.Settings, v string) { s.CompactMode = v == "true" },
	},
	"toxicity_threshold": {
		normalize: normalizeThreshold,
		apply: func(s *core.Settings, v string) {
			if parsed, err := strconv.ParseFloat(v, 64); err == nil {
				s.ToxicityThreshold = parsed
			}
		},
	},
	"source_lang": {
		normalize: normalizeLang,
		apply:     func(s *core.Settings, v string) { s.SourceLang = v },
	},
	"target_lang": {
		normalize: normalizeLang,
		apply:     func(s *core.Settings, v string) { s.TargetLang = v },
	},
}

// SettingNames lists the supported setting names, sorted.
func SettingNames() []string {
	names := make([]string, 0, len(settingSpecs))
	for name := range settingSpecs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Settings reads and writes user preferences over a KV. Base replaces
// core.DefaultSettings as the fallback when set.
type Settings struct {
	KV   KV
	Base *core.Settings
}

// Load returns stored settings merged over the defaults.
func (s Settings) Load(ctx context.Context) (core.Settings, error) {
	settings := core.DefaultSettings()
	if s.Base != nil {
		settings = *s.Base
	}
	if s.KV == nil {
		return settings, nil
	}

	for _, name := range SettingNames() {
		value, ok, err := s.KV.Get(ctx, settingsPrefix+name)
		if err != nil {
			return settings, fmt.Errorf("load setting %s: %w", name, err)
		}
		if !ok {
			continue
		}
		settingSpecs[name].apply(&settings, value)
	}
	return settings, nil
}

// Get returns one setting, falling back to its default.
func (s Settings) Get(ctx context.Context, name string) (string, error) {
	name = strings.TrimSpace(name)
	if _, ok := settingSpecs[name]; !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownSetting, name)
	}

	settings, err := s.Load(ctx)
	if err != nil {
		return "", err
	}
	return Values(settings)[name], nil
}

// Set validates and stores one setting.
func (s Settings) Set(ctx context.Context, name, value string) error {
	if s.KV == nil {
		return errors.New("settings store is not configured")
	}

	name = strings.TrimSpace(name)
	spec, ok := settingSpecs[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSetting, name)
	}

	normalized, err := spec.normalize(value)
	if err != nil {
		return fmt.Errorf("setting %s: %w", name, err)
	}
	return s.KV.Set(ctx, settingsPrefix+name, normalized)
}

// Reset removes a stored setting so the default applies again.
func (s Settings) Reset(ctx context.Context, name string) error {
	if s.KV == nil {
		return errors.New("settings store is not configured")
	}
	if _, ok := settingSpecs[name]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSetting, name)
	}
	return s.KV.Delete(ctx, settingsPrefix+name)
}

// Values renders settings as name to string value.
func Values(settings core.Settings) map[string]string {
	return map[string]string{
		"enabled":            strconv.FormatBool(settings.Enabled),
		"blur_toxic":         strconv.FormatBool(settings.BlurToxic),
		"compact_mode":       strconv.FormatBool(settings.CompactMode),
		"toxicity_threshold": strconv.FormatFloat(settings.ToxicityThreshold, 'f', -1, 64),
		"source_lang":        settings.SourceLang,
		"target_lang":        settings.TargetLang,
	}
}

func normalizeBool(value string) (string, error) {
	parsed, err := strconv.ParseBool(strings.TrimSpace(value))
	if err != nil {
		return "", fmt.Errorf("expected true or false, got %q", value)
	}
	return strconv.FormatBool(parsed), nil
}

func normalizeThreshold(value string) (string, error) {
	parsed, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil || parsed < 0 || parsed > 1 {
		return "", fmt.Errorf("expected a number between 0 and 1, got %q", value)
	}
	return strconv.FormatFloat(parsed, 'f', -1, 64), nil
}

func normalizeLang(value string) (string, error) {
	lang := strings.ToLower(strings.TrimSpace(value))
	if lang == "" {
		return "", errors.New("language code is required")
	}
	if len(lang) > 16 {
		return "", fmt.Errorf("language code too long: %q", value)
	}
	return lang, nil
}
