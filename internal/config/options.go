// Package config models the analysis options bag: every recognized key of
// the user/project configuration surface, validated once at the boundary.
// Unrecognized keys are ignored wherever options are decoded.
package config

import (
	"fmt"
	"path/filepath"
	"strings"
)

// LogLevel controls how much engine output reaches the log channel.
type LogLevel uint8

const (
	LogNone LogLevel = iota
	LogResultOnly
	LogReduced
	LogFull
)

func (l LogLevel) String() string {
	switch l {
	case LogNone:
		return "none"
	case LogResultOnly:
		return "result-only"
	case LogReduced:
		return "reduced"
	case LogFull:
		return "full"
	}
	return "unknown"
}

// ParseLogLevel maps a configuration string onto a LogLevel.
func ParseLogLevel(s string) (LogLevel, bool) {
	switch s {
	case "none":
		return LogNone, true
	case "result-only":
		return LogResultOnly, true
	case "reduced":
		return LogReduced, true
	case "full":
		return LogFull, true
	}
	return LogNone, false
}

// VarRange bounds a symbolic variable during analysis.
type VarRange struct {
	Min float64
	Max float64
}

// Options is the merged analysis configuration for one workspace. It is
// replaced wholesale after each successful merge, never patched in place.
type Options struct {
	// ConfigPath points at an explicit project configuration file. When
	// empty, ProjectFile is looked up under the workspace root.
	ConfigPath string

	// PyteaLibPath overrides the bundled analyzer library location.
	PyteaLibPath string

	// EntryPath is the absolute path of the program under analysis.
	EntryPath string

	// PythonCmdArgs supplies argv values for the analyzed program.
	PythonCmdArgs map[string]any

	// PythonSubcommand names the subcommand the analyzed program runs with.
	PythonSubcommand string

	ImmediateConstraintCheck bool
	IgnoreAssert             bool

	// VariableRange constrains named symbolic variables.
	VariableRange map[string]VarRange

	LogLevel LogLevel
}

// ProjectFile is the configuration file name looked up in a workspace root.
const ProjectFile = "pyteaconfig.toml"

// Default returns the options applied before any user configuration.
func Default() Options {
	return Options{LogLevel: LogReduced}
}

// Validate reports the first boundary violation in opts, as text.
func Validate(opts Options) error {
	if opts.EntryPath != "" && !filepath.IsAbs(opts.EntryPath) {
		return fmt.Errorf("entryPath must be absolute, got %q", opts.EntryPath)
	}
	for name, vr := range opts.VariableRange {
		if vr.Min > vr.Max {
			return fmt.Errorf("variableRange[%s]: min %g exceeds max %g", name, vr.Min, vr.Max)
		}
	}
	return nil
}

// CanonicalPath normalizes a file path to an absolute, cleaned, slash form.
func CanonicalPath(path string) string {
	if path == "" {
		return ""
	}
	candidate := filepath.FromSlash(path)
	if abs, err := filepath.Abs(candidate); err == nil {
		candidate = abs
	}
	return filepath.ToSlash(filepath.Clean(candidate))
}

// ExpandVars substitutes ${workspaceFolder} in a path-valued option and
// resolves the result against the workspace root when still relative.
func ExpandVars(path, root string) string {
	if path == "" {
		return ""
	}
	expanded := strings.ReplaceAll(path, "${workspaceFolder}", root)
	if !filepath.IsAbs(filepath.FromSlash(expanded)) && root != "" {
		expanded = filepath.Join(root, expanded)
	}
	return CanonicalPath(expanded)
}
