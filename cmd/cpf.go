package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"consignado-bot/internal/cpf"
)

var cpfCmd = &cobra.Command{
	Use:   "cpf <number>...",
	Short: "Check one or more CPF numbers",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		for _, arg := range args {
			if digits, ok := cpf.Validate(arg); ok {
				fmt.Fprintf(out, "%s\tvalid\t%s\n", arg, cpf.Format(digits))
			} else {
				fmt.Fprintf(out, "%s\tinvalid\n", arg)
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(cpfCmd)
}
