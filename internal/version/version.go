// Package version carries the build identity stamped into the pytea binary.
package version

import (
	"strings"

	"github.com/fatih/color"
)

// Overridable at build time via -ldflags.
var (
	// Number is the semantic version of the CLI.
	Number = "0.1.0-dev"

	// GitCommit is an optional git commit hash.
	GitCommit = ""

	// BuildDate is an optional build date in ISO-8601.
	BuildDate = ""
)

var componentColors = []*color.Color{
	color.New(color.FgYellow, color.Bold),
	color.New(color.FgGreen, color.Bold),
	color.New(color.FgBlue, color.Bold),
}

// Colored renders Number with each numeric component tinted. A pre-release
// suffix stays plain.
func Colored() string {
	head, suffix, prerelease := strings.Cut(Number, "-")
	parts := strings.Split(head, ".")
	for i, part := range parts {
		if i < len(componentColors) {
			parts[i] = componentColors[i].Sprint(part)
		}
	}
	out := strings.Join(parts, ".")
	if prerelease {
		out += "-" + suffix
	}
	return out
}
