package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zeroagent/zeroagent/pkg/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version information",
	Long:  `Print the version information of ZeroAgent in JSON format.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		json, err := version.Get().JSON()
		if err != nil {
			return err
		}
		fmt.Println(json)
		return nil
	},
}
