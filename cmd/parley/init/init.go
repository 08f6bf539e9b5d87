// Package initcmder provides the init command for initializing a local
// .parley directory in the current working directory.
package initcmder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/parley/pkg/config"
	"github.com/papercomputeco/parley/pkg/dotdir"
)

const presetFetchTimeout = 30 * time.Second

const initLongDesc string = `Initialize a new .parley/ directory in the current working directory.

Creates a local .parley/ directory that takes precedence over the default
~/.parley/ directory for configuration, the sqlite-vec index and the serve
log file, and writes a config.toml with default values.

Use --preset to start from a provider preset (ollama, openai) or from a
config.toml fetched over HTTP(S).

Examples:
  parley init
  parley init --preset openai
  parley init --preset https://example.com/parley/config.toml`

const initShortDesc string = "Initialize a local .parley/ directory"

func NewInitCmd() *cobra.Command {
	var preset string

	cmd := &cobra.Command{
		Use:   "init",
		Short: initShortDesc,
		Long:  initLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runInit(cmd.Context(), cmd.OutOrStdout(), preset)
		},
	}

	cmd.Flags().StringVar(&preset, "preset", "",
		fmt.Sprintf("Provider preset (%s) or URL of a config.toml", strings.Join(config.ValidPresetNames(), ", ")))

	return cmd
}

func runInit(ctx context.Context, w io.Writer, preset string) error {
	cfg, err := resolvePreset(ctx, preset)
	if err != nil {
		return err
	}

	dir, created, err := dotdir.NewManager().InitLocal()
	if err != nil {
		return err
	}
	if created {
		fmt.Fprintf(w, "Initialized .parley directory: %s\n", dir)
	} else {
		fmt.Fprintf(w, "Already initialized: %s\n", dir)
	}

	path := filepath.Join(dir, dotdir.ConfigFile)
	if _, err := os.Stat(path); err == nil && preset == "" {
		return nil
	}

	cfger, err := config.NewConfiger(dir)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := cfger.SaveConfig(cfg); err != nil {
		return err
	}

	fmt.Fprintf(w, "Wrote %s\n", path)
	return nil
}

func resolvePreset(ctx context.Context, preset string) (*config.Config, error) {
	switch {
	case preset == "":
		return config.NewDefaultConfig(), nil
	case strings.HasPrefix(preset, "http://"), strings.HasPrefix(preset, "https://"):
		return fetchPreset(ctx, preset)
	default:
		return config.PresetConfig(preset)
	}
}

func fetchPreset(ctx context.Context, url string) (*config.Config, error) {
	ctx, cancel := context.WithTimeout(ctx, presetFetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating preset request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching preset: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching preset: HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading preset: %w", err)
	}
	if len(data) == 0 {
		return nil, errors.New("fetching preset: empty response")
	}

	return config.ParseConfigTOML(data)
}
