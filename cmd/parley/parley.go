// Package parleycmder
package parleycmder

import (
	"github.com/spf13/cobra"

	askcmder "github.com/papercomputeco/parley/cmd/parley/ask"
	configcmder "github.com/papercomputeco/parley/cmd/parley/config"
	ingestcmder "github.com/papercomputeco/parley/cmd/parley/ingest"
	initcmder "github.com/papercomputeco/parley/cmd/parley/init"
	searchcmder "github.com/papercomputeco/parley/cmd/parley/search"
	servecmder "github.com/papercomputeco/parley/cmd/parley/serve"
	versioncmder "github.com/papercomputeco/parley/cmd/parley/version"
)

const parleyLongDesc string = `Parley answers questions from a directory of dialogue transcripts.

The transcripts are embedded into a local vector store; each question is
answered by a generation model prompted with the nearest dialogue lines.

Commands:
  parley ask "<query>"      Index the corpus and answer one question
  parley search "<query>"   Index the corpus and list the nearest documents
  parley ingest             Rebuild the index and report what was written
  parley serve              Run the HTTP API and MCP server`

const parleyShortDesc string = "Parley - dialogue retrieval and question answering"

func NewParleyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "parley",
		Short:        parleyShortDesc,
		Long:         parleyLongDesc,
		SilenceUsage: true,
	}

	// Global flags
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Override the .parley/ directory")

	// Add subcommands
	cmd.AddCommand(askcmder.NewAskCmd())
	cmd.AddCommand(searchcmder.NewSearchCmd())
	cmd.AddCommand(ingestcmder.NewIngestCmd())
	cmd.AddCommand(servecmder.NewServeCmd())
	cmd.AddCommand(configcmder.NewConfigCmd())
	cmd.AddCommand(initcmder.NewInitCmd())
	cmd.AddCommand(versioncmder.NewVersionCmd())

	return cmd
}
