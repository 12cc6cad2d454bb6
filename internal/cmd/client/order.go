package client

import (
	"github.com/spf13/cobra"

	transports "github.com/rzbill/ordernotify/internal/cmd/client/transports"
)

// NewOrderCommand constructs the `order` command group.
func NewOrderCommand(baseURL BaseURLFunc) *cobra.Command {
	orderCmd := &cobra.Command{Use: "order", Short: "Order operations"}
	orderCmd.AddCommand(newOrderCreateCommand(baseURL), newOrderSessionsCommand(baseURL))
	return orderCmd
}

// newOrderCreateCommand constructs the `order create` subcommand.
func newOrderCreateCommand(baseURL BaseURLFunc) *cobra.Command {
	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create an order",
		RunE: func(cmd *cobra.Command, _ []string) error {
			tenantID, _ := cmd.Flags().GetString("tenant")
			number, _ := cmd.Flags().GetString("number")
			customer, _ := cmd.Flags().GetString("customer")
			total, _ := cmd.Flags().GetFloat64("total")
			orderType, _ := cmd.Flags().GetString("type")
			status, _ := cmd.Flags().GetString("status")
			o, err := getTransport(baseURL).CreateOrder(cmd.Context(), transports.CreateOrderRequest{
				TenantID:     tenantID,
				OrderNumber:  number,
				CustomerName: customer,
				TotalAmount:  total,
				OrderType:    orderType,
				Status:       status,
			})
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), o)
		},
	}
	createCmd.Flags().StringP("tenant", "t", "", "Tenant id")
	createCmd.Flags().String("number", "", "Display order number (defaults to the id)")
	createCmd.Flags().String("customer", "", "Customer name")
	createCmd.Flags().Float64("total", 0, "Order total")
	createCmd.Flags().String("type", "", "Order type: pickup|delivery|dine_in (default pickup)")
	createCmd.Flags().String("status", "", "Initial status (default pending)")
	_ = createCmd.MarkFlagRequired("tenant")
	return createCmd
}

// newOrderSessionsCommand constructs the `order sessions` subcommand.
func newOrderSessionsCommand(baseURL BaseURLFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "sessions",
		Short: "Show open stream sessions per tenant",
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := getTransport(baseURL).Sessions(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), s)
		},
	}
}
