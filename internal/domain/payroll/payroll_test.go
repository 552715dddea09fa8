package payroll

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalculate_StatutoryFigures(t *testing.T) {
	t.Run("SHIF is 2.75% of gross", func(t *testing.T) {
		assert.Equal(t, 2750.0, Calculate(100_000).SHIF)
	})

	t.Run("SHIF floors at KES 300", func(t *testing.T) {
		assert.Equal(t, 300.0, Calculate(5_000).SHIF)
	})

	t.Run("housing levy is 1.5% on each side", func(t *testing.T) {
		r := Calculate(100_000)
		assert.Equal(t, 1500.0, r.HousingLevyEmployee)
		assert.Equal(t, 1500.0, r.HousingLevyEmployer)
	})

	t.Run("NSSF caps at 6,480", func(t *testing.T) {
		assert.Equal(t, 6480.0, Calculate(200_000).NSSF)
		assert.Equal(t, 6480.0, Calculate(108_000).NSSF)
	})

	t.Run("NSSF below the lower limit is tier I only", func(t *testing.T) {
		assert.Equal(t, 300.0, Calculate(5_000).NSSF)
		assert.Equal(t, 540.0, Calculate(9_000).NSSF)
	})

	t.Run("NSSF inside tier II", func(t *testing.T) {
		assert.Equal(t, 6000.0, Calculate(100_000).NSSF)
	})
}

func TestCalculate_PAYE(t *testing.T) {
	// taxable = 100,000 - 6,000 - 2,750 - 1,500 = 89,750
	// tax = 2,400 + 2,083.25 + 17,225.10 = 21,708.35; less relief 2,400
	r := Calculate(100_000)
	assert.Equal(t, 89_750.0, r.TaxablePay)
	assert.InDelta(t, 19_308.35, r.PAYE, Tolerance)

	t.Run("relief wipes out tax on low pay", func(t *testing.T) {
		assert.Equal(t, 0.0, Calculate(20_000).PAYE)
	})

	t.Run("top band applies above 800,000 taxable", func(t *testing.T) {
		// 2,400 + 2,083.25 + 140,300.10 + 97,500 + 0.35 * 100,000 - 2,400
		assert.InDelta(t, 274_883.35, PAYE(900_000), Tolerance)
	})
}

func TestCalculate_Identities(t *testing.T) {
	for _, gross := range []float64{0, 1, 5_000, 9_000, 24_000, 32_333, 50_000, 100_000, 108_000, 250_000, 799_999.99, 1_500_000} {
		r := Calculate(gross)
		assert.InDelta(t, r.SHIF+r.HousingLevyEmployee+r.NSSF+r.PAYE, r.TotalDeductions, Tolerance, "gross %.2f", gross)
		assert.InDelta(t, r.Gross-r.TotalDeductions, r.NetPay, Tolerance, "gross %.2f", gross)
	}
}

func TestCalculate_NegativeGross(t *testing.T) {
	r := Calculate(-10)
	assert.Equal(t, 0.0, r.Gross)
	assert.Equal(t, SHIFMinimum, r.SHIF)
}

func TestVerify(t *testing.T) {
	t.Run("calculator output passes", func(t *testing.T) {
		for _, gross := range []float64{3_000, 30_000, 100_000, 600_000, 2_000_000} {
			rep := VerifyGross(gross)
			require.True(t, rep.Passed, "gross %.2f: %+v", gross, rep.Mismatches())
		}
	})

	t.Run("tampered PAYE is flagged", func(t *testing.T) {
		slip := Calculate(100_000)
		slip.PAYE += 50
		rep := Verify(slip)

		require.False(t, rep.Passed)
		names := map[string]bool{}
		for _, c := range rep.Mismatches() {
			names[c.Name] = true
		}
		assert.True(t, names["paye"])
		assert.True(t, names["total_deductions_sum"])
		assert.False(t, names["shif"])
	})

	t.Run("net pay that does not add up is flagged", func(t *testing.T) {
		slip := Calculate(45_000)
		slip.NetPay -= 1
		rep := Verify(slip)
		require.False(t, rep.Passed)
		assert.Len(t, rep.Mismatches(), 2) // net_pay and net_pay_identity
	})
}
