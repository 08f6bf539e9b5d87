// Package askcmder provides the ask command, which indexes the corpus and
// answers one question from it.
package askcmder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/parley/cmd/parley/bootstrap"
	"github.com/papercomputeco/parley/pkg/cliui"
	"github.com/papercomputeco/parley/pkg/config"
	"github.com/papercomputeco/parley/pkg/logger"
	"github.com/papercomputeco/parley/pkg/pipeline"
	"github.com/papercomputeco/parley/pkg/utils"
)

type askCommander struct {
	query      string
	jsonOut    bool
	showPrompt bool
	configDir  string

	cfg    *config.Config
	debug  bool
	logger *slog.Logger

	out    io.Writer
	errOut io.Writer
}

const askLongDesc string = `Ask a question of the dialogue corpus.

The corpus is parsed, embedded and written to the vector store, then the
nearest documents are retrieved and handed to the generation model as
context. When nothing relevant is retrieved, the model is asked directly.

Examples:
  parley ask "我感冒了怎麼辦"
  parley ask "頭痛怎麼辦" --mode paired --corpus ./qa
  parley ask "頭痛怎麼辦" --json`

const askShortDesc string = "Ask a question of the dialogue corpus"

func NewAskCmd() *cobra.Command {
	cmder := &askCommander{}

	cmd := &cobra.Command{
		Use:   "ask <query>",
		Short: askShortDesc,
		Long:  askLongDesc,
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
	cmd.Flags().BoolVar(&cmder.jsonOut, "json", false, "Print the answer, prompt and documents as JSON")
	cmd.Flags().BoolVar(&cmder.showPrompt, "show-prompt", false, "Print the prompt sent to the generation model")

	return cmd
}

func (c *askCommander) run(ctx context.Context) error {
	c.logger = logger.New(
		logger.WithDebug(c.debug),
		logger.WithPretty(true),
		logger.WithWriter(c.errOut),
	)

	pc, err := bootstrap.NewPipeline(ctx, c.cfg, c.configDir, c.logger)
	if err != nil {
		return err
	}
	defer pc.Close()

	err = cliui.Step(c.errOut, "Indexing corpus", func() error {
		_, err := pc.Rebuild(ctx)
		return err
	})
	if err != nil {
		return err
	}

	ans, err := pc.Ask(ctx, c.query)
	if err != nil {
		fmt.Fprintln(c.out, pc.Message(err))
		if errors.Is(err, pipeline.ErrValidation) {
			return nil
		}
		return err
	}

	if c.jsonOut {
		enc := json.NewEncoder(c.out)
		enc.SetIndent("", "  ")
		return enc.Encode(ans)
	}

	c.printAnswer(ans)
	return nil
}

func (c *askCommander) printAnswer(ans *pipeline.Answer) {
	if c.showPrompt {
		fmt.Fprintf(c.out, "\n%s\n%s\n", cliui.HeaderStyle.Render("Prompt:"), cliui.DimStyle.Render(ans.Prompt))
	}

	fmt.Fprintf(c.out, "\n%s\n", cliui.HeaderStyle.Render("回答："))

	text := ans.Text
	if f, ok := c.out.(*os.File); ok && cliui.IsTerminal(f) {
		if rendered, err := cliui.RenderMarkdown(text); err == nil {
			text = rendered
		} else {
			c.logger.Debug("rendering markdown", "error", err)
		}
	}
	fmt.Fprintln(c.out, strings.TrimRight(text, "\n"))

	if !ans.Grounded {
		fmt.Fprintf(c.out, "\n%s\n", cliui.WarnStyle.Render("No related dialogue found; answered by the model alone."))
		return
	}

	fmt.Fprintf(c.out, "\n%s\n", cliui.HeaderStyle.Render("檢索到的內容"))
	for i, doc := range ans.Documents {
		fmt.Fprintf(c.out, "  %s %s  %s\n",
			cliui.RankStyle.Render(fmt.Sprintf("%d.", i+1)),
			cliui.ValueStyle.Render(utils.Truncate(strings.ReplaceAll(doc.Content, "\n", " "), 120)),
			cliui.ScoreStyle.Render(fmt.Sprintf("(score: %.4f)", doc.Score)),
		)
	}
}
