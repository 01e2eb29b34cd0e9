package cli

import (
	"github.com/spf13/cobra"
)

var scoreCmd = &cobra.Command{
	Use:   "score",
	Short: "Run one refresh cycle and print the per-material signals",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Score(cmd.Context())
	},
}
