package session

import (
	"github.com/ropas/pytea-sub003/internal/analyzer"
	"github.com/ropas/pytea-sub003/internal/diag"
	"github.com/ropas/pytea-sub003/internal/paths"
)

// Terminal errors that are not error-shaped still surface, with a fixed
// message.
const unknownErrorMessage = "unknown error"

// PathDiagnostics converts one execution path's logs into a per-file
// diagnostic mapping.
//
// The log walk surfaces only warning-severity error records: soft
// constraints show up as warnings while plain logs and hard error records
// stay out of the walk. A stopped or failed path additionally reports its
// terminal value as the one hard error at its own location. References the
// engine cannot resolve are skipped, never defaulted.
func PathDiagnostics(eng analyzer.Analyzer, p *paths.Path) diag.Mapping {
	mapping := make(diag.Mapping)
	add := func(ref analyzer.SourceRef, sev diag.Severity, msg string) {
		file, rng, ok := eng.SourceRange(ref)
		if !ok {
			return
		}
		mapping[file] = append(mapping[file], diag.Diagnostic{
			Severity: sev,
			Message:  msg,
			Range:    rng,
		})
	}

	for _, entry := range p.Raw().Logs() {
		if entry.Kind != analyzer.LogErrorRecord || entry.Severity != analyzer.SevWarning {
			continue
		}
		add(entry.Ref, diag.SevWarning, entry.Message)
	}

	if p.Status == paths.StatusStopped || p.Status == paths.StatusFailed {
		term := p.Raw().Terminal()
		msg := term.Message
		if !term.IsError {
			msg = unknownErrorMessage
		}
		add(term.Ref, diag.SevError, msg)
	}
	return mapping
}
