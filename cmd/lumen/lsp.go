package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"lumen/internal/config"
	"lumen/internal/kvcache"
	"lumen/internal/lsp"
)

var lspCmd = &cobra.Command{
	Use:          "lsp [dir]",
	Short:        "Run the Lumen language server session over stdio",
	Args:         cobra.MaximumNArgs(1),
	SilenceUsage: true,
	RunE:         runLSP,
}

func runLSP(cmd *cobra.Command, args []string) error {
	startDir := "."
	if len(args) == 1 {
		startDir = args[0]
	}

	cfg, err := loadSessionConfig(startDir)
	if err != nil {
		return err
	}

	var kv *kvcache.Store
	if dir := cfg.Opts.CacheDir; dir != "" {
		kv, err = kvcache.Open(dir)
		if err != nil {
			// Кэш — ускорение, не обязанность.
			fmt.Fprintf(os.Stderr, "lumen: parse cache unavailable: %v\n", err)
		}
	}

	session := lsp.NewSession(cfg, kv)
	return session.Run(cmd.Context(), os.Stdin, os.Stdout)
}

// loadSessionConfig discovers lumen.toml upward from startDir and resolves
// it into a session Config.
func loadSessionConfig(startDir string) (*config.Config, error) {
	path, ok, err := config.FindManifest(startDir)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("no %s found\nplease run inside a Lumen project or pass its directory", config.ManifestName)
	}
	manifest, err := config.LoadManifest(path)
	if err != nil {
		return nil, err
	}
	opts, err := manifest.Resolve()
	if err != nil {
		return nil, err
	}
	return config.New(opts)
}
