package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"procurement-signals/internal/app"
	"procurement-signals/internal/purchasing"
)

var (
	poMaterial  string
	poQuantity  float64
	poRequester string
	poVendor    string
	poStatus    string
	poLimit     int
	poUpdatedBy string
)

var poCmd = &cobra.Command{
	Use:   "po",
	Short: "Raise and track purchase orders",
}

var poCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Score the market and raise a DRAFT purchase order for one material",
	RunE: func(cmd *cobra.Command, args []string) error {
		if poMaterial == "" {
			return errors.New("--material is required")
		}
		if poQuantity < 0 {
			return errors.New("--quantity must not be negative")
		}
		return getApp().RaisePurchaseOrder(cmd.Context(), purchasing.Request{
			Material:  poMaterial,
			Quantity:  poQuantity,
			Requester: poRequester,
			Vendor:    poVendor,
		})
	},
}

var poListCmd = &cobra.Command{
	Use:   "list",
	Short: "List purchase orders, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().ListPurchaseOrders(cmd.Context(), app.PurchaseListOptions{
			Status: poStatus,
			Limit:  poLimit,
		})
	},
}

var poShowCmd = &cobra.Command{
	Use:   "show NUMBER",
	Short: "Print one purchase order",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().ShowPurchaseOrder(cmd.Context(), args[0])
	},
}

var poStatusCmd = &cobra.Command{
	Use:   "status NUMBER STATUS",
	Short: "Move a purchase order to SUBMITTED, APPROVED, REJECTED, ORDERED, RECEIVED, CANCELLED or back to DRAFT",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().UpdatePurchaseOrderStatus(cmd.Context(), args[0], args[1], poUpdatedBy)
	},
}

func init() {
	poCreateCmd.Flags().StringVar(&poMaterial, "material", "", "Material to order")
	poCreateCmd.Flags().Float64Var(&poQuantity, "quantity", 0, "Order quantity (0 uses purchasing.default_quantity)")
	poCreateCmd.Flags().StringVar(&poRequester, "requester", "", "Person raising the order")
	poCreateCmd.Flags().StringVar(&poVendor, "vendor", "", "Vendor name (default: cheapest quote)")

	poListCmd.Flags().StringVar(&poStatus, "status", "", "Only list orders in this status")
	poListCmd.Flags().IntVar(&poLimit, "limit", 20, "Number of orders to display (0 for all)")

	poStatusCmd.Flags().StringVar(&poUpdatedBy, "by", "", "Person making the change")

	poCmd.AddCommand(poCreateCmd, poListCmd, poShowCmd, poStatusCmd)
}
