package closing

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRecomputeDerivesAllFields(t *testing.T) {
	rec := Recompute(Closing{
		PaidInvoicesBase:     10000.00,
		ManagementFeePercent: 5,
		AvailabilityCost:     800,
		MaintenanceCost:      500,
		LeaseCost:            300,
		ServicesCost:         150,
	})

	require.Equal(t, 500.00, rec.ManagementFeeValue)
	require.Equal(t, 1750.00, rec.TotalExpenses)
	require.Equal(t, 7750.00, rec.NetBalance)
}

func TestRecomputeIsOrderIndependent(t *testing.T) {
	// Same inputs assembled in different orders must yield identical results.
	a := Closing{ManagementFeePercent: 12.5}
	a.PaidInvoicesBase = 3333.33
	a.LeaseCost = 99.99
	a.MaintenanceCost = 250.01

	b := Closing{MaintenanceCost: 250.01, LeaseCost: 99.99}
	b.PaidInvoicesBase = 3333.33
	b.ManagementFeePercent = 12.5

	ra, rb := Recompute(a), Recompute(b)
	require.Equal(t, ra.ManagementFeeValue, rb.ManagementFeeValue)
	require.Equal(t, ra.TotalExpenses, rb.TotalExpenses)
	require.Equal(t, ra.NetBalance, rb.NetBalance)
}

func TestRecomputeRoundsToCents(t *testing.T) {
	rec := Recompute(Closing{
		PaidInvoicesBase:     1000.00,
		ManagementFeePercent: 3.333,
	})
	require.Equal(t, 33.33, rec.ManagementFeeValue)
	require.Equal(t, 966.67, rec.NetBalance)
}

func TestNetBalanceIdentityHolds(t *testing.T) {
	cases := []Closing{
		{PaidInvoicesBase: 0},
		{PaidInvoicesBase: 123.45, ManagementFeePercent: 7.5, AvailabilityCost: 10.10},
		{PaidInvoicesBase: 99999.99, ManagementFeePercent: 100, MaintenanceCost: 0.01},
		{PaidInvoicesBase: 50, ManagementFeePercent: 0.1, LeaseCost: 200, ServicesCost: 1.11},
	}
	for _, c := range cases {
		rec := Recompute(c)
		require.InDelta(t, rec.PaidInvoicesBase-(rec.ManagementFeeValue+rec.TotalExpenses), rec.NetBalance, 0.005)
		require.True(t, rec.DerivedConsistent())
	}
}

func TestDerivedConsistentDetectsDrift(t *testing.T) {
	rec := Recompute(Closing{PaidInvoicesBase: 1000, ManagementFeePercent: 10})
	require.True(t, rec.DerivedConsistent())

	rec.NetBalance += 0.02
	require.False(t, rec.DerivedConsistent())
}

func TestValidateStatusEdit(t *testing.T) {
	require.NoError(t, ValidateStatusEdit(StatusDraft, StatusClosed))
	require.NoError(t, ValidateStatusEdit(StatusClosed, StatusDraft))
	require.NoError(t, ValidateStatusEdit(StatusDraft, ""))
	require.NoError(t, ValidateStatusEdit(StatusDraft, StatusDraft))

	require.Error(t, ValidateStatusEdit(StatusDraft, StatusSettled))
	require.Error(t, ValidateStatusEdit(StatusClosed, StatusSettled))
	require.Error(t, ValidateStatusEdit(StatusSettled, StatusDraft))
	require.Error(t, ValidateStatusEdit(StatusDraft, Status("PAID")))
}
