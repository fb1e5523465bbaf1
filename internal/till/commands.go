package till

import (
	"fmt"
	"io"
	"strconv"

	"go-pos-sync/internal/cart"
	"go-pos-sync/internal/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

func newAddCommand(opts *RootOptions) *cobra.Command {
	var qty int
	cmd := &cobra.Command{
		Use:           "add <product-id>",
		Short:         "Add a catalog product to the cart",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid product id %q", args[0])
			}
			ctx := cmd.Context()
			src, err := connect(ctx, opts)
			if err != nil {
				return err
			}
			product, err := src.Product(ctx, id)
			if err != nil {
				return err
			}
			store, err := openCart(opts)
			if err != nil {
				return err
			}
			defer store.Close()
			line, err := store.AddProduct(ctx, *product, qty)
			if err != nil {
				return err
			}
			return emit(cmd.OutOrStdout(), opts, line, func(w io.Writer) {
				fmt.Fprintf(w, "%s x%d @ %s\n", line.Name, line.Quantity, line.Price.StringFixed(2))
			})
		},
	}
	cmd.Flags().IntVarP(&qty, "qty", "q", 1, "quantity to add")
	return cmd
}

func newManualCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "manual <description> <amount>",
		Short:         "Add a lump-sum line with no catalog product",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := decimal.NewFromString(args[1])
			if err != nil {
				return fmt.Errorf("invalid amount %q", args[1])
			}
			store, err := openCart(opts)
			if err != nil {
				return err
			}
			defer store.Close()
			line, err := store.AddManual(cmd.Context(), args[0], amount)
			if err != nil {
				return err
			}
			return emit(cmd.OutOrStdout(), opts, line, func(w io.Writer) {
				fmt.Fprintf(w, "%s %s\n", line.Name, line.Price.StringFixed(2))
			})
		},
	}
}

func newQtyCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "qty <line-id> <quantity>",
		Short:         "Change a line's quantity (0 removes it)",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid line id %q", args[0])
			}
			qty, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid quantity %q", args[1])
			}
			store, err := openCart(opts)
			if err != nil {
				return err
			}
			defer store.Close()
			return store.SetQuantity(cmd.Context(), id, qty)
		},
	}
}

type cartView struct {
	Lines []cart.Line `json:"lines"`
	Total string      `json:"total"`
	Draft *cart.Draft `json:"draft,omitempty"`
}

func newShowCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "show",
		Short:         "Print the cart",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := openCart(opts)
			if err != nil {
				return err
			}
			defer store.Close()

			lines, err := store.Lines(ctx)
			if err != nil {
				return err
			}
			total, err := store.Total(ctx)
			if err != nil {
				return err
			}
			draft, _, err := store.Draft(ctx)
			if err != nil {
				return err
			}
			if lines == nil {
				lines = []cart.Line{}
			}
			view := cartView{Lines: lines, Total: total.StringFixed(2), Draft: draft}
			return emit(cmd.OutOrStdout(), opts, view, func(w io.Writer) {
				if draft != nil {
					fmt.Fprintf(w, "Order #%d (reserved)\n", draft.OrderNumber)
				}
				if len(lines) == 0 {
					fmt.Fprintln(w, "Cart is empty")
					return
				}
				for _, l := range lines {
					fmt.Fprintf(w, "%s  %-24s x%-3d %10s\n", l.ID, l.Name, l.Quantity, l.LineTotal().StringFixed(2))
				}
				fmt.Fprintf(w, "Total: %s\n", view.Total)
			})
		},
	}
}

func newClearCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "clear",
		Short:         "Empty the cart and drop its reserved order number",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openCart(opts)
			if err != nil {
				return err
			}
			defer store.Close()
			return store.Clear(cmd.Context())
		},
	}
}

func newReserveCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "reserve",
		Short:         "Reserve the next order number for this cart",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := openCart(opts)
			if err != nil {
				return err
			}
			defer store.Close()
			if draft, ok, err := store.Draft(ctx); err != nil {
				return err
			} else if ok {
				return fmt.Errorf("order #%d is already reserved for this cart", draft.OrderNumber)
			}

			src, err := connect(ctx, opts)
			if err != nil {
				return err
			}
			sale, err := src.ReserveDraft(ctx)
			if err != nil {
				return err
			}
			if err := store.SetDraft(ctx, sale); err != nil {
				return err
			}
			return emit(cmd.OutOrStdout(), opts, sale, func(w io.Writer) {
				fmt.Fprintf(w, "Reserved order #%d\n", sale.OrderNumber)
			})
		},
	}
}

func newCheckoutCommand(opts *RootOptions) *cobra.Command {
	var method string
	var notes string
	cmd := &cobra.Command{
		Use:           "checkout",
		Short:         "Submit the cart as a sale",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := openCart(opts)
			if err != nil {
				return err
			}
			defer store.Close()

			var userNotes *string
			if notes != "" {
				userNotes = &notes
			}
			req, err := store.Checkout(ctx, model.PaymentMethod(method), userNotes)
			if err != nil {
				return err
			}
			src, err := connect(ctx, opts)
			if err != nil {
				return err
			}
			sale, err := src.CreateSale(ctx, req)
			if err != nil {
				return err
			}
			if err := store.Clear(ctx); err != nil {
				return fmt.Errorf("sale #%d recorded but the cart could not be cleared: %w", sale.OrderNumber, err)
			}
			return emit(cmd.OutOrStdout(), opts, sale, func(w io.Writer) {
				fmt.Fprintf(w, "Order #%d %s, total %s (%s)\n", sale.OrderNumber, sale.Status, sale.Total.StringFixed(2), sale.PaymentMethod)
			})
		},
	}
	cmd.Flags().StringVarP(&method, "method", "m", string(model.PaymentCash), "payment method (Cash|UPI)")
	cmd.Flags().StringVar(&notes, "notes", "", "note for the kitchen or counter")
	return cmd
}
