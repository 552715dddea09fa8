package payroll

import (
	"fmt"
	"math"
)

// Check is one line of a verification report.
type Check struct {
	Name     string  `json:"name"`
	Expected float64 `json:"expected"`
	Actual   float64 `json:"actual"`
	OK       bool    `json:"ok"`
	Note     string  `json:"note,omitempty"`
}

// Report compares a payslip against an independent re-derivation.
type Report struct {
	Gross  float64 `json:"gross"`
	Checks []Check `json:"checks"`
	Passed bool    `json:"passed"`
}

// Mismatches returns only the failing checks.
func (r Report) Mismatches() []Check {
	var out []Check
	for _, c := range r.Checks {
		if !c.OK {
			out = append(out, c)
		}
	}
	return out
}

// Verify re-derives every figure of slip from the statutory constants, using
// closed-form band arithmetic rather than the calculator's loops, and flags
// any figure that differs by more than Tolerance. It also checks that the
// totals on the slip add up.
func Verify(slip Result) Report {
	g := slip.Gross
	want := derive(g)

	checks := []Check{
		check("shif", want.SHIF, slip.SHIF),
		check("housing_levy_employee", want.HousingLevyEmployee, slip.HousingLevyEmployee),
		check("housing_levy_employer", want.HousingLevyEmployer, slip.HousingLevyEmployer),
		check("nssf", want.NSSF, slip.NSSF),
		check("taxable_pay", want.TaxablePay, slip.TaxablePay),
		check("paye", want.PAYE, slip.PAYE),
		check("total_deductions", want.TotalDeductions, slip.TotalDeductions),
		check("net_pay", want.NetPay, slip.NetPay),
	}

	sum := slip.SHIF + slip.HousingLevyEmployee + slip.NSSF + slip.PAYE
	c := check("total_deductions_sum", sum, slip.TotalDeductions)
	c.Note = "shif + housing_levy_employee + nssf + paye"
	checks = append(checks, c)

	c = check("net_pay_identity", g-slip.TotalDeductions, slip.NetPay)
	c.Note = "gross - total_deductions"
	checks = append(checks, c)

	passed := true
	for _, c := range checks {
		passed = passed && c.OK
	}
	return Report{Gross: g, Checks: checks, Passed: passed}
}

// VerifyGross calculates and verifies in one step; a failing report means the
// calculator and the constants disagree.
func VerifyGross(gross float64) Report {
	return Verify(Calculate(gross))
}

func check(name string, expected, actual float64) Check {
	return Check{
		Name:     name,
		Expected: round2(expected),
		Actual:   round2(actual),
		OK:       math.Abs(expected-actual) <= Tolerance+1e-9,
	}
}

func derive(gross float64) Result {
	if gross < 0 {
		gross = 0
	}
	shif := gross * SHIFRate
	if shif < SHIFMinimum {
		shif = SHIFMinimum
	}
	shif = round2(shif)
	levy := round2(gross * HousingLevyRate)

	pensionable := gross
	if pensionable > NSSFUpperLimit {
		pensionable = NSSFUpperLimit
	}
	nssf := round2(pensionable * NSSFRate)
	if nssf > NSSFMaxEmployee {
		nssf = NSSFMaxEmployee
	}

	taxable := round2(math.Max(0, gross-nssf-shif-levy))
	paye := round2(math.Max(0, bandTax(taxable)-PersonalRelief))
	total := round2(shif + levy + nssf + paye)
	return Result{
		Gross:               gross,
		SHIF:                shif,
		HousingLevyEmployee: levy,
		HousingLevyEmployer: levy,
		NSSF:                nssf,
		TaxablePay:          taxable,
		PAYE:                paye,
		TotalDeductions:     total,
		NetPay:              round2(gross - total),
	}
}

// bandTax finds the band containing taxable and adds the tax owed on all
// lower bands in full.
func bandTax(taxable float64) float64 {
	var below float64
	lower := 0.0
	for i, b := range PAYEBands {
		top := b.UpTo
		if top == 0 || taxable <= top {
			return below + (taxable-lower)*PAYEBands[i].Rate
		}
		below += (top - lower) * b.Rate
		lower = top
	}
	panic(fmt.Sprintf("payroll: no PAYE band for %.2f", taxable))
}
