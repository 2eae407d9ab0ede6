package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ropas/pytea-sub003/internal/analyzer/remote"
	"github.com/ropas/pytea-sub003/internal/config"
	"github.com/ropas/pytea-sub003/internal/diag"
	"github.com/ropas/pytea-sub003/internal/paths"
	"github.com/ropas/pytea-sub003/internal/publish"
	"github.com/ropas/pytea-sub003/internal/resultstore"
	"github.com/ropas/pytea-sub003/internal/session"
	"github.com/ropas/pytea-sub003/internal/ui"
	"github.com/ropas/pytea-sub003/internal/workspace"
)

var analyzeCmd = &cobra.Command{
	Use:          "analyze [flags] <entry.py> [entry.py...]",
	Short:        "Analyze entry programs without a host editor",
	Args:         cobra.MinimumNArgs(1),
	SilenceUsage: true,
	RunE:         runAnalyze,
}

func init() {
	analyzeCmd.Flags().Int("jobs", 4, "max entries analyzed in parallel")
	analyzeCmd.Flags().String("root", "", "project root (defaults to each entry's directory)")
	analyzeCmd.Flags().Bool("interactive", false, "pick an execution path and print its diagnostics")
	analyzeCmd.Flags().Bool("cached", false, "print the cached summary instead of running the engine")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	colored := wantColor(cmd)
	quiet, _ := cmd.Flags().GetBool("quiet")
	timings, _ := cmd.Flags().GetBool("timings")
	engine, _ := cmd.Flags().GetStringSlice("engine")
	jobs, _ := cmd.Flags().GetInt("jobs")
	root, _ := cmd.Flags().GetString("root")
	interactive, _ := cmd.Flags().GetBool("interactive")
	cached, _ := cmd.Flags().GetBool("cached")

	store, storeErr := resultstore.OpenDefault()
	if cached {
		if storeErr != nil {
			return storeErr
		}
		return printCachedSummaries(cmd, store, args, colored)
	}
	if storeErr != nil && !quiet {
		fmt.Fprintf(os.Stderr, "pytea: run cache unavailable: %v\n", storeErr)
		store = nil
	}
	if interactive && len(args) != 1 {
		return errors.New("--interactive needs exactly one entry")
	}

	registry := workspace.NewRegistry()
	if root != "" {
		registry.Add(root)
	} else {
		for _, entry := range args {
			registry.Add(filepath.Dir(entry))
		}
	}
	registry.SetConfigurator(func(ws *workspace.Workspace) {
		ws.ApplyOptions(config.Default())
	})

	printer := newPrintSender(cmd.OutOrStdout(), colored)
	logf := func(format string, a ...any) {
		fmt.Fprintf(cmd.ErrOrStderr(), "pytea: "+format+"\n", a...)
	}
	sess := session.New(session.Config{
		Registry:  registry,
		Publisher: publish.New(printer, logf),
		Factory:   remote.Factory(engine),
		Store:     store,
		Logf:      logf,
		Timings:   timings,
	})

	if jobs < 1 {
		jobs = 1
	}
	results := make(map[string][]paths.Props, len(args))
	var mu sync.Mutex
	g, ctx := errgroup.WithContext(cmd.Context())
	g.SetLimit(jobs)
	for _, entry := range args {
		entry := entry
		g.Go(func() error {
			props := sess.Analyze(ctx, entry)
			mu.Lock()
			results[entry] = props
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	failed := 0
	for _, entry := range args {
		props := results[entry]
		if props == nil {
			failed++
		}
		if !quiet {
			printRunSummary(cmd, entry, props, colored)
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d entries failed to analyze", failed, len(args))
	}

	if interactive {
		entry := args[0]
		index, err := ui.PickPath(entry, results[entry])
		if err != nil {
			return err
		}
		if index >= 0 {
			sess.Select(cmd.Context(), index)
		}
	}
	return nil
}

func printRunSummary(cmd *cobra.Command, entry string, props []paths.Props, colored bool) {
	out := cmd.OutOrStdout()
	if props == nil {
		fmt.Fprintf(out, "%s: analysis failed (see log)\n", entry)
		return
	}
	success, stopped, failed := countProps(props)
	line := fmt.Sprintf("%d success, %d stopped, %d failed", success, stopped, failed)
	if colored {
		line = color.GreenString("%d success", success) + ", " +
			color.YellowString("%d stopped", stopped) + ", " +
			color.RedString("%d failed", failed)
	}
	fmt.Fprintf(out, "%s: %d paths (%s)\n", entry, len(props), line)
}

func printCachedSummaries(cmd *cobra.Command, store *resultstore.Store, entries []string, colored bool) error {
	out := cmd.OutOrStdout()
	for _, entry := range entries {
		sum, err := store.Load(entry)
		if err != nil {
			if errors.Is(err, resultstore.ErrNotFound) {
				fmt.Fprintf(out, "%s: no cached summary\n", entry)
				continue
			}
			return err
		}
		printRunSummary(cmd, entry, sum.Paths, colored)
		fmt.Fprintf(out, "  run %s, %s ago, took %s\n",
			sum.RunID,
			time.Since(sum.When).Round(time.Second),
			sum.Duration.Round(time.Millisecond))
	}
	return nil
}

func countProps(props []paths.Props) (success, stopped, failed int) {
	for _, p := range props {
		switch p.Status {
		case "success":
			success++
		case "stopped":
			stopped++
		case "failed":
			failed++
		}
	}
	return success, stopped, failed
}

// printSender renders published diagnostics to the terminal instead of an
// editor. Retractions (empty lists) print nothing.
type printSender struct {
	mu      sync.Mutex
	out     io.Writer
	colored bool
}

func newPrintSender(out io.Writer, colored bool) *printSender {
	return &printSender{out: out, colored: colored}
}

func (p *printSender) Send(filePath string, diags []diag.Diagnostic) error {
	if len(diags) == 0 {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, d := range diags {
		severity := d.Severity.String()
		if p.colored {
			switch d.Severity {
			case diag.SevError:
				severity = color.RedString(severity)
			case diag.SevWarning:
				severity = color.YellowString(severity)
			}
		}
		fmt.Fprintf(p.out, "%s:%d:%d: %s: %s\n",
			filePath, d.Range.Start.Line+1, d.Range.Start.Character+1, severity, d.Message)
	}
	return nil
}
