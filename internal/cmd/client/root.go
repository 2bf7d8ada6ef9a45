package client

import (
	"github.com/spf13/cobra"
)

// NewRoot constructs a root Cobra command for the esdb client.
// It registers the stream and log command groups.
func NewRoot(baseURL BaseURLFunc) *cobra.Command {
	root := &cobra.Command{
		Use:   "esdb",
		Short: "esdb client commands",
	}
	root.AddCommand(NewStreamCommand())
	root.AddCommand(NewLogCommand(baseURL))
	return root
}
