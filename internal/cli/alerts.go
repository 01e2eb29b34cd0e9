package cli

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var markAllRead bool

var alertsCmd = &cobra.Command{
	Use:   "alerts",
	Short: "Manage the alert log",
}

var markReadCmd = &cobra.Command{
	Use:   "mark-read [id]",
	Short: "Mark one alert (or --all) as read",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if markAllRead {
			if len(args) > 0 {
				return errors.New("pass either an alert id or --all, not both")
			}
			return getApp().MarkRead(cmd.Context(), 0, true)
		}
		if len(args) == 0 {
			return errors.New("alert id is required (or use --all)")
		}
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil || id <= 0 {
			return fmt.Errorf("invalid alert id %q", args[0])
		}
		return getApp().MarkRead(cmd.Context(), id, false)
	},
}

func init() {
	markReadCmd.Flags().BoolVar(&markAllRead, "all", false, "Mark every alert as read")
	alertsCmd.AddCommand(markReadCmd)
}
