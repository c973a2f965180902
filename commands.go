package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/asteruwu/cartsync/pkg/client"
	"github.com/asteruwu/cartsync/pkg/config"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

type rootOptions struct {
	ConfigPath string
	BackendURL string
	LogLevel   string
	Yes        bool

	cfg config.Config
	in  io.Reader
	out io.Writer
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{in: os.Stdin, out: os.Stdout}

	cmd := &cobra.Command{
		Use:   "cartsync",
		Short: "Storefront cart client",
		Long: `cartsync keeps a guest cart in local storage, merges it into your
server cart when you log in and takes you through checkout.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return opts.load(cmd)
		},
	}
	cmd.SetOut(opts.out)

	pf := cmd.PersistentFlags()
	pf.StringVar(&opts.ConfigPath, "config", os.Getenv("CARTSYNC_CONFIG"), "path to a YAML config file")
	pf.StringVar(&opts.BackendURL, "backend", "", "backend base URL (overrides config)")
	pf.StringVar(&opts.LogLevel, "log-level", "", "log level (overrides config)")
	pf.BoolVarP(&opts.Yes, "yes", "y", false, "answer yes to confirmation prompts")

	cmd.AddCommand(
		newLoginCommand(opts),
		newLogoutCommand(opts),
		newRegisterCommand(opts),
		newWhoamiCommand(opts),
		newProductsCommand(opts),
		newCategoriesCommand(opts),
		newCartCommand(opts),
		newCheckoutCommand(opts),
		newOrdersCommand(opts),
		newReceiptsCommand(opts),
		newMockBackendCommand(opts),
	)
	return cmd
}

func (o *rootOptions) load(cmd *cobra.Command) error {
	cfg, err := config.Load(o.ConfigPath)
	if err != nil {
		return err
	}
	if o.BackendURL != "" {
		cfg.BackendURL = o.BackendURL
	}
	if o.LogLevel != "" {
		cfg.LogLevel = o.LogLevel
	}
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		return errors.Wrapf(err, "log level %q", cfg.LogLevel)
	}
	log.SetLevel(level)
	o.cfg = cfg
	o.out = cmd.OutOrStdout()
	return nil
}

// run opens the client side, hands it to fn and tears everything down.
func (o *rootOptions) run(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	ctx := cmd.Context()
	stopTelemetry := startTelemetry(ctx, o.cfg.Metrics)
	defer stopTelemetry()

	term := newTerminal(o.in, o.out, o.Yes)
	a, err := openApp(ctx, o.cfg, term, term)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func newLoginCommand(opts *rootOptions) *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and merge the guest cart into your account cart",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.run(cmd, func(ctx context.Context, a *app) error {
				token, err := a.api.Login(ctx, email, password)
				if err != nil {
					if client.StatusCode(err) == http.StatusUnauthorized {
						return errors.New("wrong email or password")
					}
					return err
				}
				id, err := a.session.Login(ctx, token)
				if err != nil {
					return err
				}
				if err := a.cart.Login(ctx, id.UserID); err != nil {
					// the guest cart was kept; a later login merges it again
					if lerr := a.session.Logout(ctx); lerr != nil {
						a.log.WithField("error", lerr).Warn("could not drop the session")
					}
					return errors.Wrap(err, "your cart could not be loaded, you are still browsing as a guest")
				}
				fmt.Fprintf(opts.out, "Logged in as %s (%s)\n", id.Email, id.Role)
				printCart(opts.out, a.cart.View())
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&password, "password", "", "account password")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func newLogoutCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the session and go back to the guest cart",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.run(cmd, func(ctx context.Context, a *app) error {
				if err := a.session.Logout(ctx); err != nil {
					return err
				}
				if err := a.cart.Logout(ctx); err != nil {
					return err
				}
				fmt.Fprintln(opts.out, "Logged out")
				return nil
			})
		},
	}
}

func newRegisterCommand(opts *rootOptions) *cobra.Command {
	var req client.RegisterRequest
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.run(cmd, func(ctx context.Context, a *app) error {
				if err := a.api.Register(ctx, req); err != nil {
					return err
				}
				fmt.Fprintf(opts.out, "Account %s created, you can log in now\n", req.Email)
				return nil
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&req.Name, "name", "", "first name")
	f.StringVar(&req.Surname, "surname", "", "last name")
	f.StringVar(&req.Email, "email", "", "email")
	f.StringVar(&req.Password, "password", "", "password")
	f.StringVar(&req.Phone, "phone", "", "phone")
	f.StringVar(&req.Address, "address", "", "street address")
	f.StringVar(&req.City, "city", "", "city")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func newWhoamiCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the current session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.run(cmd, func(ctx context.Context, a *app) error {
				id, err := a.session.Identity(ctx)
				if err != nil {
					fmt.Fprintln(opts.out, "Not logged in")
					return nil
				}
				fmt.Fprintf(opts.out, "user %d  %s  role %s", id.UserID, id.Email, id.Role)
				if !id.ExpiresAt.IsZero() {
					fmt.Fprintf(opts.out, "  expires %s", id.ExpiresAt.Local().Format("2006-01-02 15:04"))
				}
				fmt.Fprintln(opts.out)
				return nil
			})
		},
	}
}
