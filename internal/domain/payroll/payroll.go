// Package payroll computes Kenyan statutory deductions for a monthly gross
// salary using the 2026 rates.
package payroll

import "math"

const (
	SHIFRate    = 0.0275
	SHIFMinimum = 300.0

	HousingLevyRate = 0.015

	NSSFRate        = 0.06
	NSSFLowerLimit  = 9_000.0
	NSSFUpperLimit  = 108_000.0
	NSSFMaxEmployee = 6_480.0

	PersonalRelief = 2_400.0

	// Tolerance is the largest difference Verify accepts between two figures.
	Tolerance = 0.01
)

// Band is one step of the monthly PAYE schedule. UpTo == 0 marks the open top band.
type Band struct {
	UpTo float64
	Rate float64
}

var PAYEBands = []Band{
	{UpTo: 24_000, Rate: 0.10},
	{UpTo: 32_333, Rate: 0.25},
	{UpTo: 500_000, Rate: 0.30},
	{UpTo: 800_000, Rate: 0.325},
	{UpTo: 0, Rate: 0.35},
}

// Result is a payslip breakdown. All amounts are KES rounded to cents.
type Result struct {
	Gross               float64 `json:"gross"`
	SHIF                float64 `json:"shif"`
	HousingLevyEmployee float64 `json:"housing_levy_employee"`
	HousingLevyEmployer float64 `json:"housing_levy_employer"`
	NSSF                float64 `json:"nssf"`
	TaxablePay          float64 `json:"taxable_pay"`
	PAYE                float64 `json:"paye"`
	TotalDeductions     float64 `json:"total_deductions"`
	NetPay              float64 `json:"net_pay"`
}

// Calculate returns the deductions for a monthly gross salary. Negative input is treated as zero.
func Calculate(gross float64) Result {
	if gross < 0 || math.IsNaN(gross) {
		gross = 0
	}
	shif := SHIF(gross)
	levy := HousingLevy(gross)
	nssf := NSSF(gross)
	taxable := round2(math.Max(0, gross-nssf-shif-levy))
	paye := PAYE(taxable)
	total := round2(shif + levy + nssf + paye)
	return Result{
		Gross:               round2(gross),
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

func SHIF(gross float64) float64 {
	return round2(math.Max(gross*SHIFRate, SHIFMinimum))
}

func HousingLevy(gross float64) float64 {
	return round2(gross * HousingLevyRate)
}

// NSSF is Tier I on the first 9,000 plus Tier II on the band up to 108,000.
func NSSF(gross float64) float64 {
	tier1 := NSSFRate * math.Min(gross, NSSFLowerLimit)
	tier2 := 0.0
	if gross > NSSFLowerLimit {
		tier2 = NSSFRate * (math.Min(gross, NSSFUpperLimit) - NSSFLowerLimit)
	}
	return round2(math.Min(tier1+tier2, NSSFMaxEmployee))
}

// PAYE applies the progressive bands to taxable pay and subtracts personal relief.
func PAYE(taxable float64) float64 {
	tax, lower := 0.0, 0.0
	for _, b := range PAYEBands {
		if taxable <= lower {
			break
		}
		upper := b.UpTo
		if upper == 0 || taxable < upper {
			upper = taxable
		}
		tax += (upper - lower) * b.Rate
		lower = b.UpTo
		if b.UpTo == 0 {
			break
		}
	}
	return round2(math.Max(0, tax-PersonalRelief))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
