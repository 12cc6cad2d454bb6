package client

import (
	"github.com/spf13/cobra"
)

// NewRoot constructs a root Cobra command for the client.
// It registers the order, push, vapid and watch command groups.
func NewRoot(baseURL BaseURLFunc) *cobra.Command {
	root := &cobra.Command{
		Use:   "ordernotify",
		Short: "ordernotify client commands",
	}
	AddCommands(root, baseURL)
	return root
}

// AddCommands registers every client command on root.
func AddCommands(root *cobra.Command, baseURL BaseURLFunc) {
	root.AddCommand(
		NewOrderCommand(baseURL),
		NewPushCommand(baseURL),
		NewVAPIDCommand(),
		NewWatchCommand(baseURL),
	)
}
