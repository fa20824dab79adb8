package repository_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/kjannette/trahn-gridcore/internal/models"
	"github.com/kjannette/trahn-gridcore/internal/repository"
	"github.com/kjannette/trahn-gridcore/internal/testutil"
)

func newStrategy() *models.GridStrategy {
	sl := 1400.0
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &models.GridStrategy{
		ID:               uuid.NewString(),
		WalletAddress:    "0x71C7656EC7ab88b098defB751B7401B5f6d8976F",
		Pair:             "ETH/USDC",
		Network:          "arbitrum",
		GridType:         models.GridArithmetic,
		UpperPrice:       2000,
		LowerPrice:       1500,
		GridCount:        10,
		BaseAmount:       100,
		StopLoss:         &sl,
		MaxPositionRatio: 0.5,
		Status:           models.StatusStopped,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

// ---------- StrategyRepo ----------

func TestStrategyRepo(t *testing.T) {
	pool := testutil.SetupPool(t)
	repo := repository.NewStrategyRepo(pool)
	ctx := context.Background()

	s := newStrategy()
	if err := repo.Save(ctx, s); err != nil {
		t.Fatalf("Save: %v", err)
	}
	t.Cleanup(func() { _ = repo.DeleteCascade(context.Background(), s.ID) })

	got, err := repo.Load(ctx, s.ID)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Pair != "ETH/USDC" || got.GridCount != 10 || got.StopLoss == nil || *got.StopLoss != 1400 {
		t.Fatalf("loaded strategy mismatch: %+v", got)
	}

	if err := repo.SetStatus(ctx, s.ID, models.StatusActive); err != nil {
		t.Fatalf("SetStatus: %v", err)
	}
	if err := repo.IncrementProfitAndOrders(ctx, s.ID, 12.5, 2); err != nil {
		t.Fatalf("IncrementProfitAndOrders: %v", err)
	}
	if err := repo.IncrementProfitAndOrders(ctx, s.ID, -2.5, 1); err != nil {
		t.Fatalf("IncrementProfitAndOrders: %v", err)
	}

	got, err = repo.Load(ctx, s.ID)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Status != models.StatusActive {
		t.Fatalf("expected active, got %s", got.Status)
	}
	if got.TotalProfit != 10 || got.ExecutedOrders != 3 {
		t.Fatalf("totals mismatch: profit=%f orders=%d", got.TotalProfit, got.ExecutedOrders)
	}

	active, err := repo.FindActive(ctx)
	if err != nil {
		t.Fatalf("FindActive: %v", err)
	}
	found := false
	for _, a := range active {
		found = found || a.ID == s.ID
	}
	if !found {
		t.Fatal("expected strategy in active list")
	}

	mine, err := repo.FindByWallet(ctx, "0x71c7656ec7ab88b098defb751b7401b5f6d8976f")
	if err != nil {
		t.Fatalf("FindByWallet: %v", err)
	}
	if len(mine) == 0 {
		t.Fatal("expected wallet lookup to ignore case")
	}
}

func TestStrategyRepo_NotFound(t *testing.T) {
	pool := testutil.SetupPool(t)
	repo := repository.NewStrategyRepo(pool)
	ctx := context.Background()

	if _, err := repo.Load(ctx, uuid.NewString()); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("Load: expected ErrNotFound, got %v", err)
	}
	if err := repo.SetStatus(ctx, uuid.NewString(), models.StatusActive); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("SetStatus: expected ErrNotFound, got %v", err)
	}
}

// ---------- OrderRepo / TradeRepo ----------

func TestOrdersAndTradesCascade(t *testing.T) {
	pool := testutil.SetupPool(t)
	strategies := repository.NewStrategyRepo(pool)
	orders := repository.NewOrderRepo(pool)
	trades := repository.NewTradeRepo(pool)
	ctx := context.Background()

	s := newStrategy()
	if err := strategies.Save(ctx, s); err != nil {
		t.Fatalf("Save: %v", err)
	}

	now := time.Now()
	var ids []string
	for i := range 3 {
		o := &models.GridOrder{
			ID: uuid.NewString(), StrategyID: s.ID, GridLevel: i, Price: 1550 + float64(i)*50,
			Amount: 0.06, Side: models.SideBuy, Status: models.OrderPending, CreatedAt: now, UpdatedAt: now,
		}
		if err := orders.Create(ctx, o); err != nil {
			t.Fatalf("Create: %v", err)
		}
		ids = append(ids, o.ID)
	}

	if err := orders.MarkFilled(ctx, ids[0], "0xabc", 150000, 0.1); err != nil {
		t.Fatalf("MarkFilled: %v", err)
	}
	if err := orders.MarkFilled(ctx, ids[0], "0xabc", 150000, 0.1); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("second MarkFilled: expected ErrNotFound, got %v", err)
	}
	if err := orders.Cancel(ctx, ids[1]); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	n, err := orders.CancelPending(ctx, s.ID)
	if err != nil {
		t.Fatalf("CancelPending: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 pending order cancelled, got %d", n)
	}

	counts, err := orders.CountByStatus(ctx, s.ID)
	if err != nil {
		t.Fatalf("CountByStatus: %v", err)
	}
	if counts != (models.OrderCounts{Pending: 0, Filled: 1, Cancelled: 2}) {
		t.Fatalf("counts mismatch: %+v", counts)
	}

	list, err := orders.ListByStrategy(ctx, s.ID, 10)
	if err != nil {
		t.Fatalf("ListByStrategy: %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("expected 3 orders, got %d", len(list))
	}

	before, err := trades.CountToday(ctx)
	if err != nil {
		t.Fatalf("CountToday: %v", err)
	}
	hash := "0xabc"
	tr := &models.Trade{
		ID: uuid.NewString(), StrategyID: s.ID, OrderID: ids[0], Side: models.SideBuy,
		Price: 1551.2, Amount: 0.06, Fee: 0.3, Profit: -0.3, TxHash: &hash,
	}
	if err := trades.Append(ctx, tr); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if tr.TradingDay == "" {
		t.Fatal("expected trading day to be derived")
	}
	after, err := trades.CountToday(ctx)
	if err != nil {
		t.Fatalf("CountToday: %v", err)
	}
	if after != before+1 {
		t.Fatalf("expected today's count to grow by one: %d -> %d", before, after)
	}

	if err := strategies.DeleteCascade(ctx, s.ID); err != nil {
		t.Fatalf("DeleteCascade: %v", err)
	}
	counts, err = orders.CountByStatus(ctx, s.ID)
	if err != nil {
		t.Fatalf("CountByStatus after delete: %v", err)
	}
	if counts != (models.OrderCounts{}) {
		t.Fatalf("expected orders removed, got %+v", counts)
	}
	left, err := trades.ListByStrategy(ctx, s.ID, 10)
	if err != nil {
		t.Fatalf("ListByStrategy after delete: %v", err)
	}
	if len(left) != 0 {
		t.Fatalf("expected trades removed, got %d", len(left))
	}
	if err := strategies.DeleteCascade(ctx, s.ID); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("second DeleteCascade: expected ErrNotFound, got %v", err)
	}
}

// ---------- PriceRepo ----------

func TestPriceRepo(t *testing.T) {
	pool := testutil.SetupPool(t)
	repo := repository.NewPriceRepo(pool)
	ctx := context.Background()

	pair := "T" + uuid.NewString()[:6] + "/USDC"
	testutil.CleanupPrices(t, pool, pair)
	base := time.Now().Add(-10 * time.Minute).UTC().Truncate(time.Second)
	for i := range 5 {
		s := &models.PriceSample{
			Pair: pair, Price: 100 + float64(i), Volume24h: 1e6, Source: "test",
			Timestamp: base.Add(time.Duration(i) * time.Minute),
		}
		if err := repo.Append(ctx, s); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	all, err := repo.QueryHistory(ctx, pair, base, 100)
	if err != nil {
		t.Fatalf("QueryHistory: %v", err)
	}
	if len(all) != 5 || all[0].Price != 100 || all[4].Price != 104 {
		t.Fatalf("unexpected history: %+v", all)
	}

	latest, err := repo.QueryHistory(ctx, pair, base, 2)
	if err != nil {
		t.Fatalf("QueryHistory(limit): %v", err)
	}
	if len(latest) != 2 || latest[0].Price != 103 || latest[1].Price != 104 {
		t.Fatalf("expected newest two samples oldest first, got %+v", latest)
	}

	recent, err := repo.QueryHistory(ctx, pair, base.Add(3*time.Minute), 100)
	if err != nil {
		t.Fatalf("QueryHistory(since): %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("expected 2 samples since cutoff, got %d", len(recent))
	}
}

// ---------- TradingDay ----------

func TestTradingDay(t *testing.T) {
	// 16:00 UTC is before the 17:00 cutoff, so the trading day is the previous date
	ts := time.Date(2024, 1, 15, 16, 0, 0, 0, time.UTC)
	if got := repository.TradingDay(ts); got != "2024-01-14" {
		t.Fatalf("expected 2024-01-14, got %s", got)
	}

	ts2 := time.Date(2024, 1, 15, 18, 0, 0, 0, time.UTC)
	if got := repository.TradingDay(ts2); got != "2024-01-15" {
		t.Fatalf("expected 2024-01-15, got %s", got)
	}

	// non-UTC input is converted first
	est := time.FixedZone("EST", -5*3600)
	ts3 := time.Date(2024, 1, 15, 11, 59, 0, 0, est)
	if got := repository.TradingDay(ts3); got != "2024-01-14" {
		t.Fatalf("expected 2024-01-14, got %s", got)
	}
}
