// Package config provides configuration loading and validation for retroscale.
package config

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode"
)

// Duration is a time.Duration that supports human-readable parsing.
// It extends Go's standard duration format with support for:
//   - d: days (24 hours)
//   - w: weeks (7 days)
//
// Examples:
//   - "30d" = 30 days
//   - "1w2d12h" = 1 week, 2 days, 12 hours
//   - "720h" = 720 hours (standard Go format still works)
//
// The type implements encoding.TextUnmarshaler for Viper/YAML support
// and json.Unmarshaler for JSON configuration files.
type Duration time.Duration

// ParseDuration parses a human-readable duration string.
// Supports standard Go duration format plus 'd' (days) and 'w' (weeks).
func ParseDuration(s string) (Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty duration")
	}

	neg := false
	if s[0] == '+' || s[0] == '-' {
		neg = s[0] == '-'
		s = s[1:]
	}

	var total time.Duration
	for len(s) > 0 {
		i := 0
		for i < len(s) && (unicode.IsDigit(rune(s[i])) || s[i] == '.') {
			i++
		}
		if i == 0 {
			return 0, fmt.Errorf("invalid duration %q: expected number", s)
		}
		j := i
		for j < len(s) && !unicode.IsDigit(rune(s[j])) && s[j] != '.' {
			j++
		}
		value, unit := s[:i], s[i:j]
		s = s[j:]

		switch unit {
		case "d", "w":
			var f float64
			if _, err := fmt.Sscanf(value, "%g", &f); err != nil {
				return 0, fmt.Errorf("invalid duration value %q: %w", value, err)
			}
			day := 24 * time.Hour
			if unit == "w" {
				day *= 7
			}
			total += time.Duration(f * float64(day))
		default:
			d, err := time.ParseDuration(value + unit)
			if err != nil {
				return 0, fmt.Errorf("invalid duration segment %q: %w", value+unit, err)
			}
			total += d
		}
	}

	if neg {
		total = -total
	}
	return Duration(total), nil
}

// UnmarshalText implements encoding.TextUnmarshaler for YAML/Viper support.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		// Numeric values are interpreted as nanoseconds for
		// backwards compatibility with time.Duration.
		var n int64
		if err := json.Unmarshal(data, &n); err != nil {
			return err
		}
		*d = Duration(n)
		return nil
	}
	return d.UnmarshalText([]byte(s))
}

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// String returns the duration in standard Go notation.
func (d Duration) String() string {
	return time.Duration(d).String()
}

// AsDuration converts to a standard time.Duration.
func (d Duration) AsDuration() time.Duration {
	return time.Duration(d)
}
