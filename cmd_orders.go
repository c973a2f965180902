package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/asteruwu/cartsync/pkg/checkout"
	"github.com/asteruwu/cartsync/pkg/model"
	"github.com/asteruwu/cartsync/pkg/service"

	"github.com/spf13/cobra"
)

func printReceipt(w io.Writer, r model.Receipt) {
	who := r.Email
	if r.Guest() {
		who += " (guest)"
	}
	fmt.Fprintf(w, "Order %s confirmed for %s\n", r.OrderID, who)
	for _, it := range r.Items {
		fmt.Fprintf(w, "  %d x %s  %s\n", it.Quantity, it.Name, it.Subtotal().String())
	}
	fmt.Fprintf(w, "Total %s\n", r.Total.String())
}

func printOrders(w io.Writer, orders []model.Order) {
	if len(orders) == 0 {
		fmt.Fprintln(w, "No orders")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tDATE\tSTATUS\tLINES\tTOTAL")
	for _, o := range orders {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%s\n", o.ID, o.CreatedAt.Local().Format("2006-01-02 15:04"), o.Status, len(o.Lines), o.Total.String())
	}
	_ = tw.Flush()
}

func newCheckoutCommand(opts *rootOptions) *cobra.Command {
	var (
		form        checkout.Form
		successRate float64
	)
	cmd := &cobra.Command{
		Use:   "checkout",
		Short: "Pay for the cart and place the order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rate := opts.cfg.Checkout.PaymentSuccessRate
			if cmd.Flags().Changed("success-rate") {
				rate = successRate
			}
			return opts.run(cmd, func(ctx context.Context, a *app) error {
				fo := checkout.Options{
					Cart:    a.cart,
					Orders:  a.api,
					Payment: checkout.NewSimulatedPayment(rate),
					Log:     a.log,
				}
				if journal, err := a.Receipts(); err != nil {
					a.log.WithField("error", err).Warn("receipts will not be journaled")
				} else {
					fo.Journal = journal
				}
				flow := checkout.NewFlow(fo)

				receipt, err := flow.Submit(ctx, form, a.userID(ctx))
				var verr *checkout.ValidationError
				switch {
				case errors.As(err, &verr):
					fields := make([]string, 0, len(verr.Fields))
					for _, f := range verr.Fields {
						fields = append(fields, f.Field)
					}
					return fmt.Errorf("complete the form: %s", strings.Join(fields, ", "))
				case errors.Is(err, checkout.ErrEmptyCart):
					return err
				case err != nil:
					fmt.Fprintln(opts.out, flow.Message())
					fmt.Fprintln(opts.out, "Your cart was kept, run checkout again to retry")
					return err
				}
				printReceipt(opts.out, receipt)
				return flow.Close()
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&form.Name, "name", "", "first name")
	f.StringVar(&form.Surname, "surname", "", "last names")
	f.StringVar(&form.Email, "email", "", "email for the receipt")
	f.StringVar(&form.Phone, "phone", "", "phone")
	f.StringVar(&form.Card, "card", "", "card number")
	f.StringVar(&form.Street, "street", "", "street and number")
	f.StringVar(&form.Region, "region", "", "region")
	f.StringVar(&form.Comuna, "comuna", "", "comuna")
	f.StringVar(&form.Notes, "notes", "", "delivery notes")
	f.Float64Var(&successRate, "success-rate", 0, "simulated payment success probability (overrides config)")
	return cmd
}

func newOrdersCommand(opts *rootOptions) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "orders",
		Short: "List your orders",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.run(cmd, func(ctx context.Context, a *app) error {
				var (
					orders []model.Order
					err    error
				)
				if all {
					orders, err = a.orders.All(ctx)
				} else {
					orders, err = a.orders.History(ctx, a.userID(ctx))
				}
				if errors.Is(err, service.ErrInvalidUser) {
					return errors.New("log in to see your orders")
				}
				if err != nil {
					return err
				}
				printOrders(opts.out, orders)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "list every order (admin)")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "show <orderId>",
			Short: "Show one order",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				id, err := parseID(args[0])
				if err != nil {
					return err
				}
				return opts.run(cmd, func(ctx context.Context, a *app) error {
					o, err := a.orders.Get(ctx, id)
					if err != nil {
						return err
					}
					fmt.Fprintf(opts.out, "Order %d  %s  %s\n", o.ID, o.Status, o.CreatedAt.Local().Format("2006-01-02 15:04"))
					fmt.Fprintf(opts.out, "Ship to %s\n", o.ShippingAddress)
					for _, l := range o.Lines {
						fmt.Fprintf(opts.out, "  %d x %s @ %s = %s\n", l.Quantity, l.Product.Name, l.UnitPrice.String(), l.Subtotal.String())
					}
					fmt.Fprintf(opts.out, "Total %s\n", o.Total.String())
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "status <orderId> <status>",
			Short: "Change an order's status (admin)",
			Long:  "Status is one of PENDIENTE, PROCESANDO, ENVIADO, ENTREGADO, CANCELADO.",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				id, err := parseID(args[0])
				if err != nil {
					return err
				}
				status := model.OrderStatus(strings.ToUpper(args[1]))
				return opts.run(cmd, func(ctx context.Context, a *app) error {
					o, err := a.orders.SetStatus(ctx, id, status)
					if err != nil {
						return err
					}
					fmt.Fprintf(opts.out, "Order %d is now %s\n", o.ID, o.Status)
					return nil
				})
			},
		},
	)
	return cmd
}

func newReceiptsCommand(opts *rootOptions) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "receipts [orderId]",
		Short: "Show receipts journaled on this machine",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(ctx context.Context, a *app) error {
				repo, err := a.Receipts()
				if err != nil {
					return err
				}
				if len(args) == 1 {
					r, err := repo.Get(ctx, args[0])
					if err != nil {
						return err
					}
					printReceipt(opts.out, r)
					return nil
				}
				receipts, err := repo.List(ctx, limit)
				if err != nil {
					return err
				}
				if len(receipts) == 0 {
					fmt.Fprintln(opts.out, "No receipts")
				}
				for _, r := range receipts {
					fmt.Fprintf(opts.out, "%s  %s  %s  %s\n", r.CreatedAt.Local().Format("2006-01-02 15:04"), r.OrderID, r.Email, r.Total.String())
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "number of receipts to list")
	return cmd
}
