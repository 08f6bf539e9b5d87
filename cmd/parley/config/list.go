package configcmder

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/parley/pkg/cliui"
	"github.com/papercomputeco/parley/pkg/config"
)

const listLongDesc string = `List all configuration values.

Displays every configuration key grouped by its TOML section, with the
value currently stored in config.toml in the .parley/ directory.

Examples:
  parley config list
  parley config list --json`

const listShortDesc string = "List all configuration values"

func newListCmd() *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: listShortDesc,
		Long:  listLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			return runList(cmd.OutOrStdout(), configDir, jsonOut)
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print key/value pairs as a JSON object")

	return cmd
}

func runList(w io.Writer, configDir string, jsonOut bool) error {
	cfger, err := config.NewConfiger(configDir)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	keys := config.ValidConfigKeys()
	values := make(map[string]string, len(keys))
	for _, key := range keys {
		value, err := cfger.GetConfigValue(key)
		if err != nil {
			return err
		}
		values[key] = value
	}

	if jsonOut {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(values)
	}

	printTarget(w, cfger)

	section := ""
	rows := []cliui.KeyValue{}
	flush := func() {
		if len(rows) == 0 {
			return
		}
		fmt.Fprintf(w, "  %s\n", cliui.HeaderStyle.Render("["+section+"]"))
		cliui.KeyValues(w, rows)
		fmt.Fprintln(w)
		rows = rows[:0]
	}

	for _, key := range keys {
		sec, name, _ := strings.Cut(key, ".")
		if sec != section {
			flush()
			section = sec
		}

		value := values[key]
		if value == "" {
			value = cliui.DimStyle.Render("<not set>")
		}
		rows = append(rows, cliui.KeyValue{Key: name, Value: value})
	}
	flush()

	return nil
}
