package config

import (
	"errors"
	"fmt"
	"image"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/ini.v1"
)

// Settings is the flat key=value settings record. Values are coerced on load:
// true/false become bool, finite numbers become float64, everything else is
// kept as a string. Keys this package does not know about are kept verbatim
// and written back on Save.
type Settings struct {
	file   *ini.File
	values map[string]any
}

var loadOptions = ini.LoadOptions{IgnoreInlineComment: true}

func init() {
	// key=value without aligned spacing around '='
	ini.PrettyFormat = false
}

// NewSettings returns a settings record populated from defaults.
func NewSettings(defaults map[string]any) *Settings {
	s := &Settings{file: ini.Empty(loadOptions), values: make(map[string]any, len(defaults))}
	for _, k := range sortedKeys(defaults) {
		s.Set(k, defaults[k])
	}
	return s
}

// LoadSettings reads path. If the file does not exist it is created from
// DefaultSettings() and the defaults are returned.
func LoadSettings(path string) (*Settings, bool, error) {
	if _, err := os.Stat(path); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, false, err
		}
		s := NewSettings(DefaultSettings())
		if err := s.Save(path); err != nil {
			return s, false, fmt.Errorf("create settings %s: %w", path, err)
		}
		return s, true, nil
	}
	f, err := ini.LoadSources(loadOptions, path)
	if err != nil {
		return nil, false, fmt.Errorf("load settings %s: %w", path, err)
	}
	s := &Settings{file: f, values: make(map[string]any)}
	for k, v := range DefaultSettings() {
		s.values[k] = v
	}
	for _, key := range f.Section(ini.DefaultSection).Keys() {
		s.values[key.Name()] = Coerce(key.Value())
	}
	return s, false, nil
}

// Save writes every key, known or not, as key=value lines.
func (s *Settings) Save(path string) error {
	return s.file.SaveTo(path)
}

// Set stores v under key. Supported value types are bool, string and the
// Go numeric types; numbers are stored as float64.
func (s *Settings) Set(key string, v any) {
	switch n := v.(type) {
	case int:
		v = float64(n)
	case int64:
		v = float64(n)
	case float32:
		v = float64(n)
	}
	s.values[key] = v
	s.file.Section(ini.DefaultSection).Key(key).SetValue(Format(v))
}

// Get returns the coerced value for key.
func (s *Settings) Get(key string) (any, bool) {
	v, ok := s.values[key]
	return v, ok
}

// Keys lists all keys in sorted order.
func (s *Settings) Keys() []string { return sortedKeys(s.values) }

// Float returns key as a float64, or def when missing or not numeric.
func (s *Settings) Float(key string, def float64) float64 {
	if v, ok := s.values[key].(float64); ok {
		return v
	}
	return def
}

// Int returns key truncated to an int.
func (s *Settings) Int(key string, def int) int {
	if v, ok := s.values[key].(float64); ok {
		return int(v)
	}
	return def
}

// Bool returns key as a bool.
func (s *Settings) Bool(key string, def bool) bool {
	if v, ok := s.values[key].(bool); ok {
		return v
	}
	return def
}

// String returns key formatted as text regardless of its coerced type.
func (s *Settings) String(key string, def string) string {
	v, ok := s.values[key]
	if !ok {
		return def
	}
	return Format(v)
}

// List splits a comma separated value, dropping empty entries.
func (s *Settings) List(key string) []string {
	raw := s.String(key, "")
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Point parses an "x,y" anchor. Empty or malformed values report false.
func (s *Settings) Point(key string) (image.Point, bool) {
	parts := s.List(key)
	if len(parts) != 2 {
		return image.Point{}, false
	}
	x, errX := strconv.ParseFloat(parts[0], 64)
	y, errY := strconv.ParseFloat(parts[1], 64)
	if errX != nil || errY != nil {
		return image.Point{}, false
	}
	return image.Pt(int(x), int(y)), true
}

// Rect parses an "x,y,w,h" region. Empty, malformed or zero-area values
// report false.
func (s *Settings) Rect(key string) (image.Rectangle, bool) {
	parts := s.List(key)
	if len(parts) != 4 {
		return image.Rectangle{}, false
	}
	var v [4]int
	for i, p := range parts {
		f, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return image.Rectangle{}, false
		}
		v[i] = int(f)
	}
	if v[2] <= 0 || v[3] <= 0 {
		return image.Rectangle{}, false
	}
	return image.Rect(v[0], v[1], v[0]+v[2], v[1]+v[3]), true
}

// Coerce converts a raw settings value into bool, float64 or string.
func Coerce(raw string) any {
	v := strings.TrimSpace(raw)
	switch strings.ToLower(v) {
	case "true":
		return true
	case "false":
		return false
	}
	if v == "" {
		return v
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
		return f
	}
	return v
}

// Format renders a coerced value back to its settings text.
func Format(v any) string {
	switch t := v.(type) {
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case string:
		return t
	case nil:
		return ""
	default:
		return fmt.Sprint(t)
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
