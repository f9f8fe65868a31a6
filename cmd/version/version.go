// Package versioncmder implements the `dials version` subcommand.
package versioncmder

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/dials/pkg/utils"
)

type versionCommander struct{}

func NewVersionCmd() *cobra.Command {
	cmder := &versionCommander{}

	cmd := &cobra.Command{
		Use:   "version",
		Short: "print the dials version",
		Long:  "Print the dials release version, commit sha and build time.",
		RunE: func(_ *cobra.Command, _ []string) error {
			return cmder.run()
		},
	}

	return cmd
}

func (c *versionCommander) run() error {
	fmt.Printf("dials %s (commit %s, built %s)\n", utils.Version, utils.Sha, utils.Buildtime)
	return nil
}
