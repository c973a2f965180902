package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/asteruwu/cartsync/pkg/model"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

func printProducts(w io.Writer, products []model.Product) {
	if len(products) == 0 {
		fmt.Fprintln(w, "No products")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tPRODUCT\tPRICE\tOFFER\tCATEGORY")
	for _, p := range products {
		offer := ""
		if p.Offer && p.DiscountPercent > 0 {
			offer = fmt.Sprintf("-%d%%", p.DiscountPercent)
		}
		category := ""
		if p.Category != nil {
			category = p.Category.Name
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", p.ID, p.Name, p.Price.String(), offer, category)
	}
	_ = tw.Flush()
}

func printCategories(w io.Writer, categories []model.Category) {
	if len(categories) == 0 {
		fmt.Fprintln(w, "No categories")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCATEGORY\tACTIVE\tDESCRIPTION")
	for _, c := range categories {
		fmt.Fprintf(tw, "%d\t%s\t%t\t%s\n", c.ID, c.Name, c.Active, c.Description)
	}
	_ = tw.Flush()
}

// productFlags binds the fields of a product create or update.
type productFlags struct {
	name, description, image, price string
	offer                           bool
	discount                        int
	category                        int64
}

func (f *productFlags) bind(cmd *cobra.Command) {
	fl := cmd.Flags()
	fl.StringVar(&f.name, "name", "", "product name")
	fl.StringVar(&f.price, "price", "", "price in pesos")
	fl.StringVar(&f.description, "description", "", "description")
	fl.StringVar(&f.image, "image", "", "image path or URL")
	fl.BoolVar(&f.offer, "offer", false, "put the product on offer")
	fl.IntVar(&f.discount, "discount", 0, "discount percent while on offer")
	fl.Int64Var(&f.category, "category", 0, "category id")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("price")
}

func (f *productFlags) input() (model.ProductInput, error) {
	price, err := decimal.NewFromString(f.price)
	if err != nil {
		return model.ProductInput{}, errors.Errorf("%q is not a price", f.price)
	}
	in := model.ProductInput{
		Name:            f.name,
		Description:     f.description,
		Price:           price,
		ImageRef:        f.image,
		Offer:           f.offer,
		DiscountPercent: f.discount,
	}
	if f.category > 0 {
		in.Category = &model.CategoryRef{ID: f.category}
	}
	return in, nil
}

func newProductsCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "products [id...]",
		Short: "List the catalog or show some products",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(ctx context.Context, a *app) error {
				if len(args) == 0 {
					products, err := a.catalog.Products(ctx)
					if err != nil {
						return err
					}
					printProducts(opts.out, products)
					return nil
				}
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
				printProducts(opts.out, products)
				return nil
			})
		},
	}

	var create, update productFlags
	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Add a product to the catalog (admin)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			in, err := create.input()
			if err != nil {
				return err
			}
			return opts.run(cmd, func(ctx context.Context, a *app) error {
				p, err := a.catalog.CreateProduct(ctx, in)
				if err != nil {
					return err
				}
				fmt.Fprintf(opts.out, "Product %d created\n", p.ID)
				printProducts(opts.out, []model.Product{p})
				return nil
			})
		},
	}
	create.bind(createCmd)

	updateCmd := &cobra.Command{
		Use:   "update <productId>",
		Short: "Replace a product's fields (admin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			in, err := update.input()
			if err != nil {
				return err
			}
			return opts.run(cmd, func(ctx context.Context, a *app) error {
				p, err := a.catalog.UpdateProduct(ctx, id, in)
				if err != nil {
					return err
				}
				printProducts(opts.out, []model.Product{p})
				return nil
			})
		},
	}
	update.bind(updateCmd)

	cmd.AddCommand(
		&cobra.Command{
			Use:   "featured",
			Short: "List the featured products",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return opts.run(cmd, func(ctx context.Context, a *app) error {
					products, err := a.catalog.Featured(ctx)
					if err != nil {
						return err
					}
					printProducts(opts.out, products)
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "search <keyword>",
			Short: "Search products by name or description",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return opts.run(cmd, func(ctx context.Context, a *app) error {
					products, err := a.catalog.Search(ctx, args[0])
					if err != nil {
						return err
					}
					printProducts(opts.out, products)
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "category <categoryId>",
			Short: "List the products of a category",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				id, err := parseID(args[0])
				if err != nil {
					return err
				}
				return opts.run(cmd, func(ctx context.Context, a *app) error {
					products, err := a.catalog.ByCategory(ctx, id)
					if err != nil {
						return err
					}
					printProducts(opts.out, products)
					return nil
				})
			},
		},
		createCmd,
		updateCmd,
		&cobra.Command{
			Use:   "delete <productId>",
			Short: "Remove a product from the catalog (admin)",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				id, err := parseID(args[0])
				if err != nil {
					return err
				}
				return opts.run(cmd, func(ctx context.Context, a *app) error {
					if !a.confirm.Confirm(ctx, fmt.Sprintf("Delete product %d?", id)) {
						fmt.Fprintln(opts.out, "Nothing was deleted")
						return nil
					}
					if err := a.catalog.DeleteProduct(ctx, id); err != nil {
						return err
					}
					fmt.Fprintf(opts.out, "Product %d deleted\n", id)
					return nil
				})
			},
		},
	)
	return cmd
}

// categoryFlags binds the fields of a category create or update.
type categoryFlags struct {
	in model.CategoryInput
}

func (f *categoryFlags) bind(cmd *cobra.Command) {
	fl := cmd.Flags()
	fl.StringVar(&f.in.Name, "name", "", "category name")
	fl.StringVar(&f.in.Description, "description", "", "description")
	fl.StringVar(&f.in.ImageRef, "image", "", "image path or URL")
	fl.BoolVar(&f.in.Active, "active", true, "show the category in the store")
	_ = cmd.MarkFlagRequired("name")
}

func newCategoriesCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "categories",
		Short: "List and manage product categories",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.run(cmd, func(ctx context.Context, a *app) error {
				categories, err := a.catalog.Categories(ctx)
				if err != nil {
					return err
				}
				printCategories(opts.out, categories)
				return nil
			})
		},
	}

	var create, update categoryFlags
	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Add a category (admin)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.run(cmd, func(ctx context.Context, a *app) error {
				c, err := a.catalog.CreateCategory(ctx, create.in)
				if err != nil {
					return err
				}
				fmt.Fprintf(opts.out, "Category %d created\n", c.ID)
				return nil
			})
		},
	}
	create.bind(createCmd)

	updateCmd := &cobra.Command{
		Use:   "update <categoryId>",
		Short: "Replace a category's fields (admin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return opts.run(cmd, func(ctx context.Context, a *app) error {
				c, err := a.catalog.UpdateCategory(ctx, id, update.in)
				if err != nil {
					return err
				}
				printCategories(opts.out, []model.Category{c})
				return nil
			})
		},
	}
	update.bind(updateCmd)

	cmd.AddCommand(
		createCmd,
		updateCmd,
		&cobra.Command{
			Use:   "delete <categoryId>",
			Short: "Delete a category with no products (admin)",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				id, err := parseID(args[0])
				if err != nil {
					return err
				}
				return opts.run(cmd, func(ctx context.Context, a *app) error {
					if !a.confirm.Confirm(ctx, fmt.Sprintf("Delete category %d?", id)) {
						fmt.Fprintln(opts.out, "Nothing was deleted")
						return nil
					}
					if err := a.catalog.DeleteCategory(ctx, id); err != nil {
						return err
					}
					fmt.Fprintf(opts.out, "Category %d deleted\n", id)
					return nil
				})
			},
		},
	)
	return cmd
}
