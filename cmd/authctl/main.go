package main

import (
	"fmt"
	"os"

	"github.com/myrecipebook/web-gateway/cmd/authctl/commands"
	"github.com/spf13/cobra"
)

func main() {
	var rootCmd = &cobra.Command{
		Use:   "recipebook-authctl",
		Short: "Operator tool for the MyRecipeBook web gateway",
		Long:  "CLI tool for checking gateway dependencies, inspecting and revoking sessions, and tailing auth events",
	}

	rootCmd.AddCommand(commands.NewCheckCmd())
	rootCmd.AddCommand(commands.NewInspectCmd())
	rootCmd.AddCommand(commands.NewRevokeCmd())
	rootCmd.AddCommand(commands.NewEventsCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
