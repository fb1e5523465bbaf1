package till

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"go-pos-sync/internal/cart"
	"go-pos-sync/internal/model"
	"go-pos-sync/internal/service"
	"go-pos-sync/internal/syncclient"
	"go-pos-sync/pkg/config"

	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	CartPath string
	DeviceID string
	BaseURL  string
	Role     string
	Password string
	Format   string // "text" | "json"
}

var validFormats = []string{"text", "json"}

// NewRootCommand creates the till CLI. Flag defaults come from cfg.
func NewRootCommand(cfg config.SyncConfig) *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "till",
		Short: "Stage a cart on this device and check it out",
		Long: `Stage a cart on this device and check it out.

The cart lives in a local SQLite file so it survives restarts. Checkout
submits it to the API as one sale and clears it once the sale is accepted.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			for _, f := range validFormats {
				if f == opts.Format {
					return nil
				}
			}
			return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, validFormats)
		},
	}

	cmd.PersistentFlags().StringVar(&opts.CartPath, "cart", cfg.CartDBPath, "path to the local cart database")
	cmd.PersistentFlags().StringVar(&opts.DeviceID, "device", cfg.DeviceID, "device id that owns the cart")
	cmd.PersistentFlags().StringVar(&opts.BaseURL, "api", cfg.BaseURL, "API base url")
	cmd.PersistentFlags().StringVar(&opts.Role, "role", cfg.Role, "role to log in as (user|admin)")
	cmd.PersistentFlags().StringVar(&opts.Password, "password", cfg.Password, "role password")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(newAddCommand(opts))
	cmd.AddCommand(newManualCommand(opts))
	cmd.AddCommand(newQtyCommand(opts))
	cmd.AddCommand(newShowCommand(opts))
	cmd.AddCommand(newClearCommand(opts))
	cmd.AddCommand(newReserveCommand(opts))
	cmd.AddCommand(newCheckoutCommand(opts))

	return cmd
}

func openCart(opts *RootOptions) (*cart.Store, error) {
	return cart.Open(opts.CartPath, opts.DeviceID)
}

// connect logs in and returns an API client for the session.
func connect(ctx context.Context, opts *RootOptions) (*syncclient.HTTPSource, error) {
	if opts.Password == "" {
		return nil, fmt.Errorf("--password (or POS_SYNC_PASSWORD) is required to reach the API")
	}
	session, err := syncclient.Login(ctx, opts.BaseURL, &service.LoginRequest{
		Role:     model.Role(opts.Role),
		Password: opts.Password,
		DeviceID: opts.DeviceID,
	})
	if err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}
	return syncclient.NewHTTPSource(opts.BaseURL, session.Token), nil
}

// emit writes data as JSON, or runs text when the format is text.
func emit(w io.Writer, opts *RootOptions, data any, text func(io.Writer)) error {
	if opts.Format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(data)
	}
	text(w)
	return nil
}
