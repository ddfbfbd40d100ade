package assets

import (
	"testing"

	"nodechain/objectstore"
	"nodechain/xtypes"
)

func TestCreateRejectsDuplicateSymbol(t *testing.T) {
	db := objectstore.NewDatabase()
	r := NewRegistry(db)

	if _, err := r.Create("USD", KindCurrency, "issuer1", 2, 1_000_000_00, 0); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := r.Create("USD", KindCurrency, "issuer2", 2, 1_000_000_00, 0); err == nil {
		t.Fatalf("expected symbol-in-use error")
	}
}

func TestIssueAndReserve(t *testing.T) {
	db := objectstore.NewDatabase()
	r := NewRegistry(db)
	a, err := r.Create("BITS", KindStandard, "issuer1", 4, 1_000_000, 0)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := r.Issue(a, 500); err != nil {
		t.Fatalf("issue: %v", err)
	}
	dd, _ := r.DynamicDataOf(a.ID)
	if dd.CurrentSupply != 500 {
		t.Fatalf("current supply = %d, want 500", dd.CurrentSupply)
	}

	if err := r.Issue(a, 2_000_000); err == nil {
		t.Fatalf("expected error exceeding max supply")
	}

	if err := r.Reserve(a, 200); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	dd, _ = r.DynamicDataOf(a.ID)
	if dd.CurrentSupply != 300 {
		t.Fatalf("current supply after reserve = %d, want 300", dd.CurrentSupply)
	}
}

func TestBitassetCannotBeIssuedDirectly(t *testing.T) {
	db := objectstore.NewDatabase()
	r := NewRegistry(db)
	a, err := r.Create("BITUSD", KindBitasset, "issuer1", 4, 1_000_000, 0)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := r.Issue(a, 100); err == nil {
		t.Fatalf("expected error issuing a market-issued asset directly")
	}
}

func TestPublishFeedComputesMedian(t *testing.T) {
	db := objectstore.NewDatabase()
	r := NewRegistry(db)
	a, err := r.Create("BITUSD", KindBitasset, "issuer1", 4, 1_000_000, 0)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	b, err := r.BitassetDataOf(a.ID)
	if err != nil {
		t.Fatalf("bitasset data: %v", err)
	}
	if err := r.bitasset.Modify(b, func(b *BitassetData) { b.MinimumFeeds = 1; b.FeedLifetime = 1_000_000 }); err != nil {
		t.Fatalf("configure: %v", err)
	}

	usd := xtypes.Symbol("USD")
	feeds := []FeedEntry{
		{Publisher: "w1", SettlementPrice: xtypes.NewPrice(xtypes.NewAsset(1, usd), xtypes.NewAsset(100, "BITUSD")), MaintenanceCollateralRatio: 1750, PublishedAt: 100},
		{Publisher: "w2", SettlementPrice: xtypes.NewPrice(xtypes.NewAsset(1, usd), xtypes.NewAsset(110, "BITUSD")), MaintenanceCollateralRatio: 1800, PublishedAt: 100},
		{Publisher: "w3", SettlementPrice: xtypes.NewPrice(xtypes.NewAsset(1, usd), xtypes.NewAsset(90, "BITUSD")), MaintenanceCollateralRatio: 1700, PublishedAt: 100},
	}
	for _, f := range feeds {
		if err := r.PublishFeed(b, f); err != nil {
			t.Fatalf("publish feed: %v", err)
		}
	}

	b, _ = r.BitassetDataOf(a.ID)
	if b.CurrentFeed.MaintenanceCollateralRatio != 1750 {
		t.Fatalf("expected median MCR 1750, got %d", b.CurrentFeed.MaintenanceCollateralRatio)
	}
}
