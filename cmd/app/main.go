package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	Version = "dev"
	Commit  = "none"
)

type globalFlags struct {
	configPath string
	dev        bool
}

func main() {
	var gf globalFlags
	root := &cobra.Command{
		Use:           "sme-compliance",
		Short:         "M-Pesa billing and payroll compliance backend",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&gf.configPath, "config", "config.yaml", "path to YAML config file")
	root.PersistentFlags().BoolVar(&gf.dev, "dev", false, "developer mode (console logs)")

	root.AddCommand(serveCmd(&gf))
	root.AddCommand(remindersCmd(&gf))
	root.AddCommand(payrollCmd())
	root.AddCommand(tokenCmd(&gf))

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
