package xtypes

import "testing"

func TestCollateralRatio(t *testing.T) {
	if got, want := CollateralRatio(2000, 1000), uint32(2000); got != want {
		t.Errorf("CollateralRatio(2000,1000) = %d, want %d", got, want)
	}
	if got, want := CollateralRatio(1750, 1000), uint32(1750); got != want {
		t.Errorf("CollateralRatio(1750,1000) = %d, want %d", got, want)
	}
	if got := CollateralRatio(1000, 0); got != ^uint32(0) {
		t.Errorf("CollateralRatio with zero debt should be the infinite-ratio sentinel, got %d", got)
	}
	if got := CollateralRatio(1000, -5); got != ^uint32(0) {
		t.Errorf("CollateralRatio with negative debt should be the infinite-ratio sentinel, got %d", got)
	}
}

func TestMeetsMaintenanceRatio(t *testing.T) {
	// feed price 1.0, mcr 1.75x: 1000 debt requires 1750 collateral.
	if !MeetsMaintenanceRatio(1750, 1000, 1000, 1750) {
		t.Error("collateral exactly at the requirement should meet it")
	}
	if MeetsMaintenanceRatio(1749, 1000, 1000, 1750) {
		t.Error("collateral one unit below the requirement should not meet it")
	}
	if !MeetsMaintenanceRatio(0, 0, 1000, 1750) {
		t.Error("zero debt should always meet the maintenance ratio")
	}
}
