// Package versioncmder
package versioncmder

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/parley/pkg/utils"
)

type versionCommander struct {
	jsonOut bool
	out     io.Writer
}

func NewVersionCmd() *cobra.Command {
	cmder := &versionCommander{}

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print the parley version",
		Long:  "Print the version, commit and build time of this parley binary.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmder.out = cmd.OutOrStdout()
			return cmder.run()
		},
	}

	cmd.Flags().BoolVar(&cmder.jsonOut, "json", false, "Print build information as JSON")

	return cmd
}

func (c *versionCommander) run() error {
	info := utils.Info()
	if c.jsonOut {
		enc := json.NewEncoder(c.out)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}

	fmt.Fprintf(c.out, "parley %s (%s)\n", info.Version, info.Sha)
	fmt.Fprintf(c.out, "built %s with %s for %s\n", info.Buildtime, info.GoVersion, info.Platform)
	return nil
}
