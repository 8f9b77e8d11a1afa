// Package config - verbosity.go maps the four-step verbosity scale onto
// zerolog levels.
package config

import (
	"fmt"

	"github.com/rs/zerolog"
)

// Verbosity controls how much the proxy logs.
type Verbosity int

const (
	Silent Verbosity = iota
	Error
	Warning
	Debug
)

// ParseVerbosity parses one of Silent|Error|Warning|Debug.
func ParseVerbosity(s string) (Verbosity, error) {
	switch s {
	case "Silent":
		return Silent, nil
	case "Error":
		return Error, nil
	case "Warning":
		return Warning, nil
	case "Debug":
		return Debug, nil
	}
	return Silent, fmt.Errorf("unknown verbosity %q (want Silent|Error|Warning|Debug)", s)
}

// String implements fmt.Stringer.
func (v Verbosity) String() string {
	switch v {
	case Silent:
		return "Silent"
	case Error:
		return "Error"
	case Warning:
		return "Warning"
	case Debug:
		return "Debug"
	}
	return fmt.Sprintf("Verbosity(%d)", int(v))
}

// ZerologLevel converts the verbosity to the matching zerolog level.
func (v Verbosity) ZerologLevel() zerolog.Level {
	switch v {
	case Silent:
		return zerolog.Disabled
	case Error:
		return zerolog.ErrorLevel
	case Warning:
		return zerolog.WarnLevel
	case Debug:
		return zerolog.DebugLevel
	}
	return zerolog.InfoLevel
}

// UnmarshalYAML accepts the verbosity as a YAML string.
func (v *Verbosity) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	parsed, err := ParseVerbosity(s)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}
