// Package searchcmder provides the search command for semantic search over
// the dialogue corpus without generating an answer.
package searchcmder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/parley/cmd/parley/bootstrap"
	"github.com/papercomputeco/parley/pkg/cliui"
	"github.com/papercomputeco/parley/pkg/config"
	"github.com/papercomputeco/parley/pkg/logger"
	"github.com/papercomputeco/parley/pkg/pipeline"
	"github.com/papercomputeco/parley/pkg/utils"
	"github.com/papercomputeco/parley/pkg/vector"
)

type searchCommander struct {
	query     string
	quiet     bool
	jsonOut   bool
	configDir string

	cfg   *config.Config
	debug bool

	out    io.Writer
	errOut io.Writer
}

const searchLongDesc string = `Search the dialogue corpus.

The corpus is indexed, then the documents nearest to the query are listed
with their scores. No generation model is called.

Use --quiet to output only document contents, one per line.

Examples:
  parley search "我感冒了怎麼辦"
  parley search "頭痛" --top-k 5
  parley search "頭痛" --quiet`

const searchShortDesc string = "Search the dialogue corpus"

func NewSearchCmd() *cobra.Command {
	cmder := &searchCommander{}

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: searchShortDesc,
		Long:  searchLongDesc,
		Args:  cobra.ExactArgs(1),
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.cfg, err = bootstrap.LoadConfig(cmd)
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cmder.query = args[0]
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
	cmd.Flags().BoolVarP(&cmder.quiet, "quiet", "q", false, "Output only document contents, one per line")
	cmd.Flags().BoolVar(&cmder.jsonOut, "json", false, "Print results as JSON")

	return cmd
}

func (c *searchCommander) run(ctx context.Context) error {
	log := logger.New(
		logger.WithDebug(c.debug),
		logger.WithQuiet(c.quiet || c.jsonOut),
		logger.WithPretty(true),
		logger.WithWriter(c.errOut),
	)

	pc, err := bootstrap.NewPipeline(ctx, c.cfg, c.configDir, log)
	if err != nil {
		return err
	}
	defer pc.Close()

	rebuild := func() error {
		_, err := pc.Rebuild(ctx)
		return err
	}
	if c.quiet || c.jsonOut {
		err = rebuild()
	} else {
		err = cliui.Step(c.errOut, "Indexing corpus", rebuild)
	}
	if err != nil {
		return err
	}

	results, err := pc.Search(ctx, c.query)
	if errors.Is(err, pipeline.ErrValidation) {
		fmt.Fprintln(c.out, pc.Message(err))
		return nil
	}
	if err != nil {
		return err
	}

	switch {
	case c.jsonOut:
		enc := json.NewEncoder(c.out)
		enc.SetIndent("", "  ")
		return enc.Encode(results)

	case c.quiet:
		for _, r := range results {
			fmt.Fprintln(c.out, r.Content)
		}
		return nil
	}

	if len(results) == 0 {
		fmt.Fprintln(c.out, "No results found.")
		return nil
	}

	fmt.Fprintf(c.out, "\n%s %s\n\n",
		cliui.HeaderStyle.Render("Search Results for:"),
		cliui.KeyStyle.Render(fmt.Sprintf("%q", c.query)),
	)
	for i, r := range results {
		c.printResult(i+1, r)
	}

	return nil
}

func (c *searchCommander) printResult(rank int, r vector.QueryResult) {
	fmt.Fprintf(c.out, "  %s  %s  %s\n",
		cliui.RankStyle.Render(fmt.Sprintf("#%d", rank)),
		cliui.ScoreStyle.Render(fmt.Sprintf("score: %.4f", r.Score)),
		cliui.DimStyle.Render("id "+r.ID),
	)

	if q, ok := r.Metadata["question"]; ok {
		fmt.Fprintf(c.out, "  %s %s\n", cliui.KeyStyle.Render("Q:"), cliui.ValueStyle.Render(utils.Truncate(q, 100)))
	}

	preview := strings.ReplaceAll(r.Content, "\n", " ")
	fmt.Fprintf(c.out, "  %s\n\n", cliui.ValueStyle.Render(utils.Truncate(preview, 100)))
}
