package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"lchbot/internal/gateway"
)

// NewVersionCmd creates the version command.
func NewVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("lchbot %s\n", gateway.Version)
		},
	}
}
