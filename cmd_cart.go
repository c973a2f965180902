package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"github.com/asteruwu/cartsync/pkg/service"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.Errorf("%q is not a valid id", s)
	}
	return id, nil
}

func printCart(w io.Writer, v service.View) {
	if v.Err != "" {
		fmt.Fprintf(w, "! %s\n", v.Err)
	}
	if len(v.Items) == 0 {
		fmt.Fprintf(w, "The cart is empty (%s)\n", v.Mode)
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tPRODUCT\tPRICE\tQTY\tSUBTOTAL")
	for _, it := range v.Items {
		price := it.FinalPrice().String()
		if it.DiscountPercent > 0 {
			price = fmt.Sprintf("%s (-%d%% of %s)", price, it.DiscountPercent, it.UnitPrice.String())
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%s\n", it.ProductID, it.Name, price, it.Quantity, it.Subtotal().String())
	}
	_ = tw.Flush()
	fmt.Fprintf(w, "%d item(s), total %s (%s)\n", v.Count, v.Subtotal.String(), v.Mode)
}

func newCartCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cart",
		Short: "Show and edit the cart",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "show",
			Short: "Show the cart",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return opts.run(cmd, func(_ context.Context, a *app) error {
					printCart(opts.out, a.cart.View())
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "add <productId>...",
			Short: "Add one unit of each product",
			Args:  cobra.MinimumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return opts.run(cmd, func(ctx context.Context, a *app) error {
					ids := make([]int64, 0, len(args))
					for _, arg := range args {
						id, err := parseID(arg)
						if err != nil {
							return err
						}
						ids = append(ids, id)
					}
					products, err := a.api.GetProducts(ctx, ids)
					if err != nil {
						return err
					}
					for _, p := range products {
						if err := a.cart.AddItem(ctx, p); err != nil {
							return err
						}
					}
					printCart(opts.out, a.cart.View())
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "remove <productId>",
			Short: "Remove a product from the cart",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				id, err := parseID(args[0])
				if err != nil {
					return err
				}
				return opts.run(cmd, func(ctx context.Context, a *app) error {
					if err := a.cart.RemoveItem(ctx, id); err != nil {
						return err
					}
					printCart(opts.out, a.cart.View())
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "set <productId> <quantity>",
			Short: "Set a quantity between 0 and 99; 0 removes the product",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				id, err := parseID(args[0])
				if err != nil {
					return err
				}
				qty, err := strconv.Atoi(args[1])
				if err != nil {
					return errors.Errorf("%q is not a quantity", args[1])
				}
				return opts.run(cmd, func(ctx context.Context, a *app) error {
					if err := a.cart.UpdateQuantity(ctx, id, qty); err != nil {
						return err
					}
					printCart(opts.out, a.cart.View())
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "clear",
			Short: "Empty the cart after confirmation",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return opts.run(cmd, func(ctx context.Context, a *app) error {
					cleared, err := a.cart.ClearCart(ctx)
					if err != nil {
						return err
					}
					if !cleared {
						fmt.Fprintln(opts.out, "Nothing was removed")
						return nil
					}
					printCart(opts.out, a.cart.View())
					return nil
				})
			},
		},
	)
	return cmd
}
