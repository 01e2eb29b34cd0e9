package app

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"procurement-signals/internal/domain"
	"procurement-signals/internal/purchasing"
)

// PurchaseListOptions filter the purchase order table.
type PurchaseListOptions struct {
	Status string
	Limit  int
}

// RaisePurchaseOrder runs one refresh cycle and raises a DRAFT order from it.
func (a *App) RaisePurchaseOrder(ctx context.Context, req purchasing.Request) error {
	rt, err := a.build(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	if _, err := rt.service.RunCycle(ctx, a.Clock.Now()); err != nil {
		return err
	}
	po, err := rt.service.RaisePurchaseOrder(ctx, req)
	if err != nil {
		return err
	}
	return a.printPurchaseOrder(po)
}

// ListPurchaseOrders prints stored orders, newest first.
func (a *App) ListPurchaseOrders(ctx context.Context, opts PurchaseListOptions) error {
	var status domain.POStatus
	if opts.Status != "" {
		parsed, err := domain.ParsePOStatus(opts.Status)
		if err != nil {
			return err
		}
		status = parsed
	}

	rt, err := a.build(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	orders, err := rt.desk.List(ctx, status, opts.Limit)
	if err != nil {
		return err
	}
	if len(orders) == 0 {
		fmt.Fprintln(a.Out, "no purchase orders found")
		return nil
	}

	writer := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "PO Number\tCreated (UTC)\tStatus\tMaterial\tQuantity\tVendor\tTotal")
	for _, po := range orders {
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%s\t%.2f %s\t%s\t%s %s\n",
			po.Number,
			po.CreatedAt.UTC().Format(time.RFC3339),
			po.Status,
			po.Material.Name,
			po.Material.Quantity,
			po.Material.Unit,
			sanitizeInline(po.Vendor.Name),
			po.Financial.Currency,
			domain.Money(po.Financial.TotalAmount),
		)
	}
	return writer.Flush()
}

// ShowPurchaseOrder prints one order in full.
func (a *App) ShowPurchaseOrder(ctx context.Context, number string) error {
	rt, err := a.build(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	po, err := rt.desk.Get(ctx, number)
	if err != nil {
		return err
	}
	return a.printPurchaseOrder(po)
}

// UpdatePurchaseOrderStatus moves an order to status.
func (a *App) UpdatePurchaseOrderStatus(ctx context.Context, number, status, by string) error {
	next, err := domain.ParsePOStatus(status)
	if err != nil {
		return err
	}

	rt, err := a.build(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	po, err := rt.desk.UpdateStatus(ctx, number, next, by)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.Out, "purchase order %s is now %s\n", po.Number, po.Status)
	return nil
}

func (a *App) printPurchaseOrder(po domain.PurchaseOrder) error {
	var b strings.Builder
	fmt.Fprintf(&b, "%s  [%s]\n", po.Number, po.Status)
	fmt.Fprintf(&b, "created %s by %s\n", po.CreatedAt.UTC().Format(time.RFC3339), po.CreatedBy)
	if po.UpdatedAt != nil {
		fmt.Fprintf(&b, "updated %s by %s\n", po.UpdatedAt.UTC().Format(time.RFC3339), po.UpdatedBy)
	}

	writer := tabwriter.NewWriter(&b, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "\nMaterial\t")
	fmt.Fprintf(writer, "  name\t%s\n", po.Material.Name)
	fmt.Fprintf(writer, "  quantity\t%.2f %s\n", po.Material.Quantity, po.Material.Unit)
	fmt.Fprintf(writer, "  unit price\t%s (market %s)\n", domain.Money(po.Material.UnitPrice), domain.Money(po.Material.CurrentMarketPrice))
	fmt.Fprintln(writer, "Vendor\t")
	fmt.Fprintf(writer, "  name\t%s\n", sanitizeInline(po.Vendor.Name))
	fmt.Fprintf(writer, "  rating\t%.1f\n", po.Vendor.Rating)
	fmt.Fprintf(writer, "  payment terms\t%s\n", po.Vendor.PaymentTerms)
	fmt.Fprintf(writer, "  min order\t%d\n", po.Vendor.MinOrder)
	fmt.Fprintln(writer, "Delivery\t")
	fmt.Fprintf(writer, "  expected\t%s (%d days)\n", po.Delivery.ExpectedDate, po.Delivery.DeliveryDays)
	fmt.Fprintf(writer, "  address\t%s\n", po.Delivery.DeliveryAddress)
	fmt.Fprintf(writer, "  contact\t%s\n", po.Delivery.ContactPerson)
	fmt.Fprintln(writer, "Financial\t")
	fmt.Fprintf(writer, "  subtotal\t%s %s\n", po.Financial.Currency, domain.Money(po.Financial.Subtotal))
	fmt.Fprintf(writer, "  tax (%.0f%%)\t%s %s\n", po.Financial.TaxRate*100, po.Financial.Currency, domain.Money(po.Financial.TaxAmount))
	fmt.Fprintf(writer, "  total\t%s %s\n", po.Financial.Currency, domain.Money(po.Financial.TotalAmount))
	fmt.Fprintf(writer, "  savings vs market\t%s %s\n", po.Financial.Currency, domain.Money(po.Financial.PotentialSavings))
	fmt.Fprintln(writer, "Recommendation\t")
	fmt.Fprintf(writer, "  signal\t%s (%s, %+.2f%%)\n", po.Recommendation.Label, po.Recommendation.Confidence, po.Recommendation.PriceChangePct)
	fmt.Fprintf(writer, "  reason\t%s\n", sanitizeInline(po.Recommendation.Reason))
	fmt.Fprintln(writer, "Approvals\t")
	for _, ap := range po.Approvals {
		date := ap.Date
		if date == "" {
			date = "-"
		}
		fmt.Fprintf(writer, "  %s\t%s  %s  %s\n", ap.Role, ap.Status, ap.Name, date)
	}
	if err := writer.Flush(); err != nil {
		return err
	}
	if len(po.Terms) > 0 {
		b.WriteString("\nTerms\n")
		for i, term := range po.Terms {
			fmt.Fprintf(&b, "  %d. %s\n", i+1, term)
		}
	}
	_, err := fmt.Fprint(a.Out, b.String())
	return err
}
