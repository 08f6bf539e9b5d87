// Package ingestcmder provides the ingest command, which rebuilds the
// vector index from the dialogue corpus and reports what was written.
package ingestcmder

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/parley/cmd/parley/bootstrap"
	"github.com/papercomputeco/parley/pkg/cliui"
	"github.com/papercomputeco/parley/pkg/config"
	"github.com/papercomputeco/parley/pkg/logger"
	"github.com/papercomputeco/parley/pkg/pipeline"
)

type ingestCommander struct {
	jsonOut   bool
	configDir string

	cfg   *config.Config
	debug bool

	out    io.Writer
	errOut io.Writer
}

const ingestLongDesc string = `Rebuild the vector index from the dialogue corpus.

Every .txt file in the corpus directory is parsed in the configured mode
(flat or paired), embedded, and written to the vector store, replacing
whatever the collection held before. Nothing is written if parsing or
embedding fails.

Examples:
  parley ingest
  parley ingest --corpus ./dialogues --mode paired
  parley ingest --vector-store-provider qdrant --vector-store-target localhost:6334`

const ingestShortDesc string = "Rebuild the vector index from the corpus"

func NewIngestCmd() *cobra.Command {
	cmder := &ingestCommander{}

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: ingestShortDesc,
		Long:  ingestLongDesc,
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.cfg, err = bootstrap.LoadConfig(cmd)
			return err
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmder.out = cmd.OutOrStdout()
			cmder.errOut = cmd.ErrOrStderr()
			cmder.configDir, _ = cmd.Flags().GetString("config-dir")

			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}

			return cmder.run(cmd.Context())
		},
	}

	bootstrap.AddPipelineFlags(cmd)
	cmd.Flags().BoolVar(&cmder.jsonOut, "json", false, "Print the rebuild report as JSON")

	return cmd
}

func (c *ingestCommander) run(ctx context.Context) error {
	log := logger.New(
		logger.WithDebug(c.debug),
		logger.WithQuiet(c.jsonOut),
		logger.WithPretty(true),
		logger.WithWriter(c.errOut),
	)

	pc, err := bootstrap.NewPipeline(ctx, c.cfg, c.configDir, log)
	if err != nil {
		return err
	}
	defer pc.Close()

	var report *pipeline.RebuildReport
	err = cliui.Step(c.errOut, fmt.Sprintf("Indexing %s (%s)", c.cfg.Corpus.Path, c.cfg.Corpus.Mode), func() error {
		var err error
		report, err = pc.Rebuild(ctx)
		return err
	})
	if err != nil {
		return err
	}

	if c.jsonOut {
		enc := json.NewEncoder(c.out)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	printReport(c.out, report)
	return nil
}

func printReport(w io.Writer, r *pipeline.RebuildReport) {
	fmt.Fprintln(w)
	cliui.KeyValues(w, []cliui.KeyValue{
		{Key: "Corpus:", Value: r.Dir},
		{Key: "Mode:", Value: string(r.Mode)},
		{Key: "Files:", Value: strconv.Itoa(r.Corpus.Files)},
		{Key: "Records:", Value: strconv.Itoa(r.Records)},
		{Key: "Removed:", Value: strconv.Itoa(r.Removed)},
		{Key: "Dimensions:", Value: strconv.Itoa(r.Dimensions)},
		{Key: "Atomic:", Value: strconv.FormatBool(r.Atomic)},
		{Key: "Took:", Value: cliui.FormatDuration(r.Duration)},
	})
	if r.Corpus.SkippedLines > 0 || r.Corpus.DroppedQuestions > 0 {
		fmt.Fprintf(w, "  %s\n", cliui.WarnStyle.Render(r.Corpus.String()))
	}
	fmt.Fprintln(w)
}
