package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/sysgio/sysg/version"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "print sysg's version and build date",
		RunE: func(cmd *cobra.Command, args []string) error {
			version.PrintVersion(os.Stdout)
			return nil
		},
	}
}
