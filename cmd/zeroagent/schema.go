package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zeroagent/zeroagent/pkg/skills"
)

var schemaCmd = &cobra.Command{
	Use:   "manifest-schema",
	Short: "Print the JSON schema of skill.json",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out, err := skills.ManifestSchemaJSON()
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	},
}
