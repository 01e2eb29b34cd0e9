package cli

import (
	"github.com/spf13/cobra"
)

var seedFrom string

var seedCmd = &cobra.Command{
	Use:   "seed-redis",
	Short: "Copy a JSON market document into redis",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().SeedRedis(cmd.Context(), seedFrom)
	},
}

func init() {
	seedCmd.Flags().StringVar(&seedFrom, "from", "", "JSON market document (defaults to data.path)")
}
