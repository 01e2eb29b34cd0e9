package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"procurement-signals/internal/app"
)

var (
	showLimit  int
	showUnread bool
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Display recent alerts",
	RunE: func(cmd *cobra.Command, args []string) error {
		if showLimit <= 0 {
			return fmt.Errorf("--limit must be greater than zero")
		}

		opts := app.ShowOptions{
			Limit:      showLimit,
			UnreadOnly: showUnread,
		}

		return getApp().Show(cmd.Context(), opts)
	},
}

func init() {
	showCmd.Flags().IntVar(&showLimit, "limit", 10, "Number of alerts to display")
	showCmd.Flags().BoolVar(&showUnread, "unread", false, "Only show unread alerts")
}
