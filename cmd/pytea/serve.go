package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ropas/pytea-sub003/internal/analyzer/remote"
	"github.com/ropas/pytea-sub003/internal/lsp"
	"github.com/ropas/pytea-sub003/internal/resultstore"
)

var serveCmd = &cobra.Command{
	Use:          "serve",
	Short:        "Run the analysis session server over stdio",
	SilenceUsage: true,
	RunE:         runServe,
}

func init() {
	serveCmd.Flags().Bool("watch-config", true, "reload pyteaconfig.toml when it changes on disk")
	serveCmd.Flags().Bool("cache", true, "record run summaries in the user cache")
}

func runServe(cmd *cobra.Command, _ []string) error {
	engine, _ := cmd.Flags().GetStringSlice("engine")
	timings, _ := cmd.Flags().GetBool("timings")
	watch, _ := cmd.Flags().GetBool("watch-config")
	useCache, _ := cmd.Flags().GetBool("cache")

	var store *resultstore.Store
	if useCache {
		opened, err := resultstore.OpenDefault()
		if err != nil {
			fmt.Fprintf(os.Stderr, "pytea: run cache unavailable: %v\n", err)
		} else {
			store = opened
		}
	}

	server := lsp.NewServer(os.Stdin, os.Stdout, lsp.ServerOptions{
		Factory:     remote.Factory(engine),
		Store:       store,
		Timings:     timings,
		WatchConfig: watch,
	})
	if err := server.Run(cmd.Context()); err != nil {
		if errors.Is(err, lsp.ErrExit) {
			return nil
		}
		if errors.Is(err, lsp.ErrExitWithoutShutdown) {
			return fmt.Errorf("host exited without shutdown")
		}
		return err
	}
	return nil
}
