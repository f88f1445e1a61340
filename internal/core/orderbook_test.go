package core

import (
	"fmt"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/spotcore/exchange/internal/domain"
)

var orderSeq int

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func nextID() string {
	orderSeq++
	return fmt.Sprintf("ord-%d", orderSeq)
}

func limitOrder(user string, side domain.Side, price, qty string) *domain.Order {
	return &domain.Order{
		ID:          nextID(),
		UserID:      user,
		Symbol:      "BTCUSDT",
		Side:        side,
		Type:        domain.Limit,
		TimeInForce: domain.GTC,
		STP:         domain.STPNone,
		Price:       dec(price),
		Quantity:    dec(qty),
		Status:      domain.New,
	}
}

func marketOrder(user string, side domain.Side, qty string) *domain.Order {
	return &domain.Order{
		ID:          nextID(),
		UserID:      user,
		Symbol:      "BTCUSDT",
		Side:        side,
		Type:        domain.Market,
		TimeInForce: domain.GTC,
		STP:         domain.STPNone,
		Quantity:    dec(qty),
		Status:      domain.New,
	}
}

func TestLimitOrderRestsWhenNotCrossable(t *testing.T) {
	b := NewOrderBook("BTCUSDT")

	res := b.Submit(limitOrder("alice", domain.Buy, "100", "1"))
	if len(res.Fills) != 0 {
		t.Fatalf("expected no fills, got %d", len(res.Fills))
	}
	bid, ok := b.BestBid()
	if !ok || !bid.Equal(dec("100")) {
		t.Errorf("best bid = %s, want 100", bid)
	}
	if _, ok := b.BestAsk(); ok {
		t.Error("ask side should be empty")
	}
}

func TestFullMatchAtMakerPrice(t *testing.T) {
	b := NewOrderBook("BTCUSDT")
	maker := limitOrder("alice", domain.Sell, "100", "1")
	b.Submit(maker)

	// Taker is willing to pay more; the trade executes at the maker's price.
	taker := limitOrder("bob", domain.Buy, "105", "1")
	res := b.Submit(taker)

	if len(res.Fills) != 1 {
		t.Fatalf("expected 1 fill, got %d", len(res.Fills))
	}
	if !res.Fills[0].Price.Equal(dec("100")) {
		t.Errorf("fill price = %s, want maker price 100", res.Fills[0].Price)
	}
	if maker.Status != domain.Filled || taker.Status != domain.Filled {
		t.Errorf("statuses = %s / %s, want FILLED / FILLED", maker.Status, taker.Status)
	}
	if _, ok := b.BestAsk(); ok {
		t.Error("filled maker should leave the book")
	}
	last, _ := b.LastPrice()
	if !last.Equal(dec("100")) {
		t.Errorf("last price = %s, want 100", last)
	}
}

func TestPriceTimePriority(t *testing.T) {
	b := NewOrderBook("BTCUSDT")
	first := limitOrder("alice", domain.Sell, "100", "1")
	second := limitOrder("bob", domain.Sell, "100", "1")
	b.Submit(first)
	b.Submit(second)

	res := b.Submit(limitOrder("carol", domain.Buy, "100", "1"))
	if len(res.Fills) != 1 {
		t.Fatalf("expected 1 fill, got %d", len(res.Fills))
	}
	if res.Fills[0].Maker.ID != first.ID {
		t.Error("earlier order at same price must match first")
	}
	if first.Status != domain.Filled || second.Status != domain.New {
		t.Errorf("statuses = %s / %s, want FILLED / NEW", first.Status, second.Status)
	}
}

func TestBetterPriceBeatsEarlierTime(t *testing.T) {
	b := NewOrderBook("BTCUSDT")
	worse := limitOrder("alice", domain.Sell, "101", "1")
	better := limitOrder("bob", domain.Sell, "100", "1")
	b.Submit(worse)
	b.Submit(better)

	res := b.Submit(limitOrder("carol", domain.Buy, "101", "1"))
	if len(res.Fills) != 1 || res.Fills[0].Maker.ID != better.ID {
		t.Error("cheaper ask must match first regardless of insertion order")
	}
}

func TestPartialFillRestsRemainder(t *testing.T) {
	b := NewOrderBook("BTCUSDT")
	b.Submit(limitOrder("alice", domain.Sell, "100", "0.4"))

	taker := limitOrder("bob", domain.Buy, "100", "1")
	res := b.Submit(taker)

	if len(res.Fills) != 1 || !res.Fills[0].Qty.Equal(dec("0.4")) {
		t.Fatalf("unexpected fills: %+v", res.Fills)
	}
	if taker.Status != domain.PartiallyFilled {
		t.Errorf("taker status = %s, want PARTIALLY_FILLED", taker.Status)
	}
	bid, ok := b.BestBid()
	if !ok || !bid.Equal(dec("100")) {
		t.Error("remainder should rest as best bid")
	}
	snap := b.Depth(10)
	if len(snap.Bids) != 1 || !snap.Bids[0].Quantity.Equal(dec("0.6")) {
		t.Errorf("depth bids = %+v, want one level of 0.6", snap.Bids)
	}
}

func TestNoCrossRestsAfterMatching(t *testing.T) {
	b := NewOrderBook("BTCUSDT")
	b.Submit(limitOrder("alice", domain.Sell, "101", "1"))
	b.Submit(limitOrder("bob", domain.Buy, "99", "1"))

	bid, _ := b.BestBid()
	ask, _ := b.BestAsk()
	if !bid.LessThan(ask) {
		t.Errorf("book is crossed at rest: bid %s >= ask %s", bid, ask)
	}
}

func TestMarketOrderWalksLevels(t *testing.T) {
	b := NewOrderBook("BTCUSDT")
	b.Submit(limitOrder("alice", domain.Sell, "100", "1"))
	b.Submit(limitOrder("bob", domain.Sell, "101", "1"))

	taker := marketOrder("carol", domain.Buy, "1.5")
	res := b.Submit(taker)

	if len(res.Fills) != 2 {
		t.Fatalf("expected 2 fills, got %d", len(res.Fills))
	}
	if !res.Fills[0].Price.Equal(dec("100")) || !res.Fills[1].Price.Equal(dec("101")) {
		t.Error("market order must walk outward from the best price")
	}
	if taker.Status != domain.Filled {
		t.Errorf("taker status = %s, want FILLED", taker.Status)
	}
	if !taker.CumQuoteQty.Equal(dec("150.5")) {
		t.Errorf("cum quote = %s, want 150.5", taker.CumQuoteQty)
	}
}

func TestMarketOrderExpiresUnfilledRemainder(t *testing.T) {
	b := NewOrderBook("BTCUSDT")
	b.Submit(limitOrder("alice", domain.Sell, "100", "0.5"))

	taker := marketOrder("bob", domain.Buy, "2")
	b.Submit(taker)

	if taker.Status != domain.Expired {
		t.Errorf("status = %s, want EXPIRED", taker.Status)
	}
	if !taker.ExecutedQty.Equal(dec("0.5")) {
		t.Errorf("executed = %s, want 0.5", taker.ExecutedQty)
	}
	if _, ok := b.BestBid(); ok {
		t.Error("market remainder must not rest")
	}
}

func TestQuoteSizedMarketBuy(t *testing.T) {
	b := NewOrderBook("BTCUSDT")
	b.Submit(limitOrder("alice", domain.Sell, "100", "1"))
	b.Submit(limitOrder("bob", domain.Sell, "200", "1"))

	taker := marketOrder("carol", domain.Buy, "0")
	taker.Quantity = decimal.Zero
	taker.QuoteOrderQty = dec("150")
	b.Submit(taker)

	// 100 spent on the first level (1 @ 100), 50 on the second (0.25 @ 200).
	if !taker.ExecutedQty.Equal(dec("1.25")) {
		t.Errorf("executed = %s, want 1.25", taker.ExecutedQty)
	}
	if !taker.CumQuoteQty.Equal(dec("150")) {
		t.Errorf("cum quote = %s, want 150", taker.CumQuoteQty)
	}
	if taker.Status != domain.Filled {
		t.Errorf("status = %s, want FILLED", taker.Status)
	}
}

func TestFOKRejectsWhenUnderfunded(t *testing.T) {
	b := NewOrderBook("BTCUSDT")
	b.Submit(limitOrder("alice", domain.Sell, "100", "0.5"))

	taker := limitOrder("bob", domain.Buy, "100", "1")
	taker.TimeInForce = domain.FOK
	res := b.Submit(taker)

	if len(res.Fills) != 0 {
		t.Fatal("FOK must produce zero fills when it cannot fully fill")
	}
	if taker.Status != domain.Expired {
		t.Errorf("status = %s, want EXPIRED", taker.Status)
	}
	snap := b.Depth(10)
	if len(snap.Asks) != 1 || !snap.Asks[0].Quantity.Equal(dec("0.5")) {
		t.Error("book must be unchanged after FOK rejection")
	}
}

func TestFOKFillsAcrossLevels(t *testing.T) {
	b := NewOrderBook("BTCUSDT")
	b.Submit(limitOrder("alice", domain.Sell, "100", "0.5"))
	b.Submit(limitOrder("bob", domain.Sell, "101", "0.5"))

	taker := limitOrder("carol", domain.Buy, "101", "1")
	taker.TimeInForce = domain.FOK
	res := b.Submit(taker)

	if len(res.Fills) != 2 || taker.Status != domain.Filled {
		t.Fatalf("FOK should fill fully: fills=%d status=%s", len(res.Fills), taker.Status)
	}
}

func TestFOKExpireTakerCountsOnlyReachableLiquidity(t *testing.T) {
	b := NewOrderBook("BTCUSDT")
	b.Submit(limitOrder("bob", domain.Sell, "100", "0.5"))
	b.Submit(limitOrder("alice", domain.Sell, "100", "0.5"))

	// Matching would stop at alice's own ask, so only bob's 0.5 is reachable
	// and the all-or-nothing check must reject without any fills.
	taker := limitOrder("alice", domain.Buy, "100", "1")
	taker.TimeInForce = domain.FOK
	taker.STP = domain.STPExpireTaker
	res := b.Submit(taker)

	if len(res.Fills) != 0 || taker.Status != domain.Expired {
		t.Errorf("fills=%d status=%s, want 0/EXPIRED", len(res.Fills), taker.Status)
	}
	snap := b.Depth(10)
	if len(snap.Asks) != 1 || !snap.Asks[0].Quantity.Equal(dec("1")) {
		t.Errorf("book changed: asks = %+v", snap.Asks)
	}
}

func TestFOKExpireMakerExcludesOwnLiquidity(t *testing.T) {
	b := NewOrderBook("BTCUSDT")
	b.Submit(limitOrder("alice", domain.Sell, "100", "0.5"))
	b.Submit(limitOrder("bob", domain.Sell, "101", "0.5"))

	// Own 0.5 would expire rather than fill, leaving only bob's 0.5.
	short := limitOrder("alice", domain.Buy, "101", "1")
	short.TimeInForce = domain.FOK
	short.STP = domain.STPExpireMaker
	res := b.Submit(short)
	if len(res.Fills) != 0 || len(res.ExpiredMakers) != 0 || short.Status != domain.Expired {
		t.Errorf("rejected FOK must leave the book untouched: %+v", res)
	}

	b.Submit(limitOrder("bob", domain.Sell, "101", "0.5"))

	// Now bob's liquidity alone covers the order; own ask expires mid-match.
	full := limitOrder("alice", domain.Buy, "101", "1")
	full.TimeInForce = domain.FOK
	full.STP = domain.STPExpireMaker
	res = b.Submit(full)
	if full.Status != domain.Filled {
		t.Fatalf("status = %s, want FILLED", full.Status)
	}
	if len(res.ExpiredMakers) != 1 || res.ExpiredMakers[0].UserID != "alice" {
		t.Errorf("own resting ask should have expired, got %+v", res.ExpiredMakers)
	}
}

func TestSimulateBuyCostSkipsOwnAsksForExpireMaker(t *testing.T) {
	b := NewOrderBook("BTCUSDT")
	b.Submit(limitOrder("alice", domain.Sell, "100", "1"))
	b.Submit(limitOrder("bob", domain.Sell, "110", "1"))

	taker := marketOrder("alice", domain.Buy, "1")
	taker.STP = domain.STPExpireMaker
	cost, fillable := b.SimulateBuyCost(taker)
	if !cost.Equal(dec("110")) || !fillable.Equal(dec("1")) {
		t.Errorf("cost=%s fillable=%s, want 110/1 (own ask expires, fill lands deeper)", cost, fillable)
	}

	plain := marketOrder("carol", domain.Buy, "1")
	cost, _ = b.SimulateBuyCost(plain)
	if !cost.Equal(dec("100")) {
		t.Errorf("cost = %s, want 100 for an unrelated buyer", cost)
	}
}

func TestIOCExpiresRemainder(t *testing.T) {
	b := NewOrderBook("BTCUSDT")
	b.Submit(limitOrder("alice", domain.Sell, "100", "0.5"))

	taker := limitOrder("bob", domain.Buy, "100", "1")
	taker.TimeInForce = domain.IOC
	b.Submit(taker)

	if taker.Status != domain.Expired {
		t.Errorf("status = %s, want EXPIRED", taker.Status)
	}
	if !taker.ExecutedQty.Equal(dec("0.5")) {
		t.Errorf("executed = %s, want 0.5", taker.ExecutedQty)
	}
	if _, ok := b.BestBid(); ok {
		t.Error("IOC remainder must not rest")
	}
}

func TestIcebergShowsOnlyPeak(t *testing.T) {
	b := NewOrderBook("BTCUSDT")
	o := limitOrder("alice", domain.Sell, "100", "10")
	o.IcebergQty = dec("2")
	b.Submit(o)

	snap := b.Depth(10)
	if len(snap.Asks) != 1 || !snap.Asks[0].Quantity.Equal(dec("2")) {
		t.Errorf("visible depth = %+v, want one level of 2", snap.Asks)
	}
}

func TestIcebergRefillsAndLosesPriority(t *testing.T) {
	b := NewOrderBook("BTCUSDT")
	iceberg := limitOrder("alice", domain.Sell, "100", "10")
	iceberg.IcebergQty = dec("2")
	plain := limitOrder("bob", domain.Sell, "100", "3")
	b.Submit(iceberg)
	b.Submit(plain)

	// Consumes the iceberg's visible slice; the refreshed slice requeues
	// behind bob even though alice arrived first.
	res := b.Submit(marketOrder("carol", domain.Buy, "2"))
	if len(res.Fills) != 1 || res.Fills[0].Maker.ID != iceberg.ID {
		t.Fatalf("unexpected fills: %+v", res.Fills)
	}

	res = b.Submit(marketOrder("dave", domain.Buy, "3"))
	if len(res.Fills) != 1 || res.Fills[0].Maker.ID != plain.ID {
		t.Error("refilled iceberg must lose time priority to bob")
	}

	// The hidden quantity is still matchable through successive refills.
	res = b.Submit(marketOrder("erin", domain.Buy, "8"))
	var total decimal.Decimal
	for _, f := range res.Fills {
		if f.Maker.ID != iceberg.ID {
			t.Fatalf("unexpected maker %s", f.Maker.ID)
		}
		total = total.Add(f.Qty)
	}
	if !total.Equal(dec("8")) {
		t.Errorf("total matched against iceberg = %s, want 8", total)
	}
	if iceberg.Status != domain.Filled {
		t.Errorf("iceberg status = %s, want FILLED", iceberg.Status)
	}
}

func TestSelfTradePreventionExpireTaker(t *testing.T) {
	b := NewOrderBook("BTCUSDT")
	b.Submit(limitOrder("alice", domain.Sell, "100", "1"))

	taker := limitOrder("alice", domain.Buy, "100", "1")
	taker.STP = domain.STPExpireTaker
	res := b.Submit(taker)

	if len(res.Fills) != 0 || taker.Status != domain.Expired {
		t.Errorf("EXPIRE_TAKER: fills=%d status=%s, want 0/EXPIRED", len(res.Fills), taker.Status)
	}
	if _, ok := b.BestAsk(); !ok {
		t.Error("resting order must survive EXPIRE_TAKER")
	}
}

func TestSelfTradePreventionExpireMaker(t *testing.T) {
	b := NewOrderBook("BTCUSDT")
	own := limitOrder("alice", domain.Sell, "100", "1")
	other := limitOrder("bob", domain.Sell, "100", "1")
	b.Submit(own)
	b.Submit(other)

	taker := limitOrder("alice", domain.Buy, "100", "1")
	taker.STP = domain.STPExpireMaker
	res := b.Submit(taker)

	if len(res.ExpiredMakers) != 1 || res.ExpiredMakers[0].ID != own.ID {
		t.Fatalf("expected own resting order expired, got %+v", res.ExpiredMakers)
	}
	if own.Status != domain.Expired {
		t.Errorf("own order status = %s, want EXPIRED", own.Status)
	}
	// Matching continued against the next eligible order.
	if len(res.Fills) != 1 || res.Fills[0].Maker.ID != other.ID {
		t.Errorf("expected fill against bob, got %+v", res.Fills)
	}
	if taker.Status != domain.Filled {
		t.Errorf("taker status = %s, want FILLED", taker.Status)
	}
}

func TestSelfTradePreventionExpireBoth(t *testing.T) {
	b := NewOrderBook("BTCUSDT")
	own := limitOrder("alice", domain.Sell, "100", "1")
	b.Submit(own)

	taker := limitOrder("alice", domain.Buy, "100", "1")
	taker.STP = domain.STPExpireBoth
	res := b.Submit(taker)

	if len(res.Fills) != 0 {
		t.Error("EXPIRE_BOTH must not trade")
	}
	if own.Status != domain.Expired || taker.Status != domain.Expired {
		t.Errorf("statuses = %s / %s, want EXPIRED / EXPIRED", own.Status, taker.Status)
	}
}

func TestSelfTradeAllowedWithNone(t *testing.T) {
	b := NewOrderBook("BTCUSDT")
	b.Submit(limitOrder("alice", domain.Sell, "100", "1"))

	taker := limitOrder("alice", domain.Buy, "100", "1")
	res := b.Submit(taker)
	if len(res.Fills) != 1 {
		t.Error("NONE mode must allow self trades")
	}
}

func TestLimitMakerRejectedWhenCrossing(t *testing.T) {
	b := NewOrderBook("BTCUSDT")
	b.Submit(limitOrder("alice", domain.Sell, "100", "1"))

	o := limitOrder("bob", domain.Buy, "100", "1")
	o.Type = domain.LimitMaker
	res := b.Submit(o)

	if len(res.Fills) != 0 || o.Status != domain.Rejected {
		t.Errorf("crossing LIMIT_MAKER: fills=%d status=%s, want 0/REJECTED", len(res.Fills), o.Status)
	}

	passive := limitOrder("bob", domain.Buy, "99", "1")
	passive.Type = domain.LimitMaker
	b.Submit(passive)
	if passive.Status != domain.New {
		t.Errorf("passive LIMIT_MAKER status = %s, want NEW", passive.Status)
	}
}

func TestCancel(t *testing.T) {
	b := NewOrderBook("BTCUSDT")
	o := limitOrder("alice", domain.Buy, "100", "1")
	b.Submit(o)

	if !b.Cancel(o.ID) {
		t.Fatal("cancel of resting order should succeed")
	}
	if o.Status != domain.Cancelled {
		t.Errorf("status = %s, want CANCELED", o.Status)
	}
	if b.Cancel(o.ID) {
		t.Error("second cancel must fail")
	}
	if _, ok := b.BestBid(); ok {
		t.Error("canceled order still on the book")
	}
	if b.Cancel("missing") {
		t.Error("cancel of unknown order must fail")
	}
}

func TestDepthOrderingAndLimit(t *testing.T) {
	b := NewOrderBook("BTCUSDT")
	b.Submit(limitOrder("a", domain.Buy, "98", "1"))
	b.Submit(limitOrder("b", domain.Buy, "99", "2"))
	b.Submit(limitOrder("c", domain.Buy, "99", "1"))
	b.Submit(limitOrder("d", domain.Sell, "101", "1"))
	b.Submit(limitOrder("e", domain.Sell, "102", "1"))

	snap := b.Depth(1)
	if len(snap.Bids) != 1 || len(snap.Asks) != 1 {
		t.Fatalf("depth(1) returned %d/%d levels", len(snap.Bids), len(snap.Asks))
	}
	if !snap.Bids[0].Price.Equal(dec("99")) || !snap.Bids[0].Quantity.Equal(dec("3")) {
		t.Errorf("best bid level = %+v, want 99 x 3", snap.Bids[0])
	}
	if !snap.Asks[0].Price.Equal(dec("101")) {
		t.Errorf("best ask level = %+v, want 101", snap.Asks[0])
	}

	full := b.Depth(10)
	if len(full.Bids) != 2 || len(full.Asks) != 2 {
		t.Errorf("full depth = %d/%d levels, want 2/2", len(full.Bids), len(full.Asks))
	}
	if !full.Bids[0].Price.GreaterThan(full.Bids[1].Price) {
		t.Error("bids must be sorted descending")
	}
	if !full.Asks[0].Price.LessThan(full.Asks[1].Price) {
		t.Error("asks must be sorted ascending")
	}
}

func BenchmarkSubmitMatch(b *testing.B) {
	book := NewOrderBook("BTCUSDT")
	for i := 0; i < 1000; i++ {
		book.Submit(limitOrder("maker", domain.Sell, "100", "1000000"))
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		book.Submit(limitOrder("taker", domain.Buy, "100", "1"))
	}
}
