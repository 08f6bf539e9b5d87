// Package configcmder provides the config command for managing persistent
// parley configuration stored in the .parley/ directory.
package configcmder

import (
	"github.com/spf13/cobra"
)

const configLongDesc string = `Manage persistent parley configuration.

Configuration is stored as config.toml in the .parley/ directory and provides
default values for command flags. Environment variables (PARLEY_CORPUS_PATH,
PARLEY_RETRIEVAL_TOP_K, ...) override the file, and CLI flags always take
precedence over both.

Keys use dotted notation matching the TOML section structure:
  corpus.path, corpus.mode, corpus.extensions,
  embedding.provider, embedding.target, embedding.model, embedding.dimensions,
  generation.provider, generation.target, generation.model,
  vector_store.provider, vector_store.target, vector_store.collection,
  retrieval.top_k, retrieval.min_score, retrieval.language, api.listen

Use subcommands to get, set, or list configuration values:
  parley config set <key> <value>    Set a configuration value
  parley config get <key>            Get a configuration value
  parley config list                 List all configuration values

Examples:
  parley config set corpus.mode paired
  parley config set embedding.model nomic-embed-text
  parley config get generation.model
  parley config list`

const configShortDesc string = "Manage persistent parley configuration"

func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: configShortDesc,
		Long:  configLongDesc,
	}

	cmd.AddCommand(newSetCmd())
	cmd.AddCommand(newGetCmd())
	cmd.AddCommand(newListCmd())

	return cmd
}
