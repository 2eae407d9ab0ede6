package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// fileOptions mirrors the recognized keys of a pyteaconfig.toml. TOML
// decoding drops unrecognized keys, matching the boundary contract.
type fileOptions struct {
	PyteaLibPath             *string              `toml:"pyteaLibPath"`
	EntryPath                *string              `toml:"entryPath"`
	PythonCmdArgs            map[string]any       `toml:"pythonCmdArgs"`
	PythonSubcommand         *string              `toml:"pythonSubcommand"`
	ImmediateConstraintCheck *bool                `toml:"immediateConstraintCheck"`
	IgnoreAssert             *bool                `toml:"ignoreAssert"`
	VariableRange            map[string][]float64 `toml:"variableRange"`
	LogLevel                 *string              `toml:"logLevel"`
}

// Merge overlays the on-disk project configuration for root onto base and
// returns the combined options. A missing implicit project file is not an
// error; a missing explicit ConfigPath is.
func Merge(base Options, root string) (Options, error) {
	path := base.ConfigPath
	explicit := path != ""
	if explicit {
		path = ExpandVars(path, root)
	} else if root != "" {
		path = filepath.Join(filepath.FromSlash(root), ProjectFile)
	}
	if path == "" {
		return base, nil
	}

	var file fileOptions
	if _, err := toml.DecodeFile(path, &file); err != nil {
		if errors.Is(err, os.ErrNotExist) && !explicit {
			return base, nil
		}
		return Options{}, fmt.Errorf("%s: %w", path, err)
	}

	merged := base
	if file.PyteaLibPath != nil {
		merged.PyteaLibPath = ExpandVars(*file.PyteaLibPath, root)
	}
	if file.EntryPath != nil && merged.EntryPath == "" {
		merged.EntryPath = ExpandVars(*file.EntryPath, root)
	}
	if file.PythonCmdArgs != nil {
		merged.PythonCmdArgs = file.PythonCmdArgs
	}
	if file.PythonSubcommand != nil {
		merged.PythonSubcommand = *file.PythonSubcommand
	}
	if file.ImmediateConstraintCheck != nil {
		merged.ImmediateConstraintCheck = *file.ImmediateConstraintCheck
	}
	if file.IgnoreAssert != nil {
		merged.IgnoreAssert = *file.IgnoreAssert
	}
	if file.VariableRange != nil {
		ranges, err := parseVariableRanges(file.VariableRange)
		if err != nil {
			return Options{}, fmt.Errorf("%s: %w", path, err)
		}
		merged.VariableRange = ranges
	}
	if file.LogLevel != nil {
		level, ok := ParseLogLevel(*file.LogLevel)
		if !ok {
			return Options{}, fmt.Errorf("%s: unknown logLevel %q", path, *file.LogLevel)
		}
		merged.LogLevel = level
	}
	if err := Validate(merged); err != nil {
		return Options{}, fmt.Errorf("%s: %w", path, err)
	}
	return merged, nil
}

func parseVariableRanges(raw map[string][]float64) (map[string]VarRange, error) {
	out := make(map[string]VarRange, len(raw))
	for name, pair := range raw {
		switch len(pair) {
		case 1:
			out[name] = VarRange{Min: pair[0], Max: pair[0]}
		case 2:
			out[name] = VarRange{Min: pair[0], Max: pair[1]}
		default:
			return nil, fmt.Errorf("variableRange[%s]: want [min, max], got %d values", name, len(pair))
		}
	}
	return out, nil
}
