package config

import (
	"encoding/json"
	"fmt"
)

// Settings is the transport-delivered configuration section. Optional keys
// use pointers so absent and zero values stay distinguishable.
type Settings struct {
	ConfigPath               *string              `json:"configPath,omitempty"`
	PyteaLibPath             *string              `json:"pyteaLibPath,omitempty"`
	LibraryPath              *string              `json:"analyzer-library-path,omitempty"`
	EntryPath                *string              `json:"entryPath,omitempty"`
	PythonCmdArgs            map[string]any       `json:"pythonCmdArgs,omitempty"`
	PythonSubcommand         *string              `json:"pythonSubcommand,omitempty"`
	ImmediateConstraintCheck *bool                `json:"immediateConstraintCheck,omitempty"`
	IgnoreAssert             *bool                `json:"ignoreAssert,omitempty"`
	VariableRange            map[string][]float64 `json:"variableRange,omitempty"`
	LogLevel                 *string              `json:"logLevel,omitempty"`
}

// DecodeSettings parses a raw transport settings payload. Unknown keys are
// dropped by the decoder.
func DecodeSettings(raw json.RawMessage) (Settings, error) {
	var s Settings
	if len(raw) == 0 {
		return s, nil
	}
	if err := json.Unmarshal(raw, &s); err != nil {
		return Settings{}, fmt.Errorf("settings: %w", err)
	}
	return s, nil
}

// Apply overlays the present keys of s onto base, expanding path values
// against the workspace root.
func (s Settings) Apply(base Options, root string) (Options, error) {
	out := base
	if s.ConfigPath != nil {
		out.ConfigPath = *s.ConfigPath
	}
	if s.PyteaLibPath != nil {
		out.PyteaLibPath = ExpandVars(*s.PyteaLibPath, root)
	}
	// analyzer-library-path is the legacy spelling of pyteaLibPath.
	if s.LibraryPath != nil && s.PyteaLibPath == nil {
		out.PyteaLibPath = ExpandVars(*s.LibraryPath, root)
	}
	if s.EntryPath != nil {
		out.EntryPath = ExpandVars(*s.EntryPath, root)
	}
	if s.PythonCmdArgs != nil {
		out.PythonCmdArgs = s.PythonCmdArgs
	}
	if s.PythonSubcommand != nil {
		out.PythonSubcommand = *s.PythonSubcommand
	}
	if s.ImmediateConstraintCheck != nil {
		out.ImmediateConstraintCheck = *s.ImmediateConstraintCheck
	}
	if s.IgnoreAssert != nil {
		out.IgnoreAssert = *s.IgnoreAssert
	}
	if s.VariableRange != nil {
		ranges, err := parseVariableRanges(s.VariableRange)
		if err != nil {
			return Options{}, err
		}
		out.VariableRange = ranges
	}
	if s.LogLevel != nil {
		level, ok := ParseLogLevel(*s.LogLevel)
		if !ok {
			return Options{}, fmt.Errorf("unknown logLevel %q", *s.LogLevel)
		}
		out.LogLevel = level
	}
	if err := Validate(out); err != nil {
		return Options{}, err
	}
	return out, nil
}
