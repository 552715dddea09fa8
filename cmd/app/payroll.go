package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"sme-compliance/internal/domain/payroll"
)

func payrollCmd() *cobra.Command {
	var verify bool
	cmd := &cobra.Command{
		Use:   "payroll <gross>",
		Short: "Compute statutory deductions for a monthly gross salary (KES)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			gross, err := strconv.ParseFloat(args[0], 64)
			if err != nil || gross < 0 {
				return fmt.Errorf("invalid gross %q", args[0])
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if verify {
				rep := payroll.VerifyGross(gross)
				if err := enc.Encode(rep); err != nil {
					return err
				}
				if !rep.Passed {
					return fmt.Errorf("%d check(s) failed", len(rep.Mismatches()))
				}
				return nil
			}
			return enc.Encode(payroll.Calculate(gross))
		},
	}
	cmd.Flags().BoolVar(&verify, "verify", false, "cross-check the computed slip")
	return cmd
}
