package settlement

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeWallet struct {
	credits map[string]int
	failFor map[string]bool
}

func newFakeWallet() *fakeWallet {
	return &fakeWallet{credits: make(map[string]int), failFor: make(map[string]bool)}
}

func (w *fakeWallet) Credit(ctx context.Context, userID string, amount int, reference string) error {
	if w.failFor[userID] {
		return errors.New("wallet unavailable")
	}
	w.credits[userID] += amount
	return nil
}

func TestITMCount(t *testing.T) {
	cases := []struct {
		players int
		pct     float64
		levels  int
		want    int
	}{
		{100, 15, 20, 15},
		{100, 15, 10, 10}, // capped by payout structure length
		{3, 10, 5, 1},     // floor of 1
		{25, 12, 9, 3},
		{10, 0, 5, 1},
	}
	for _, c := range cases {
		if got := ITMCount(c.players, c.pct, c.levels); got != c.want {
			t.Errorf("ITMCount(%d, %v, %d) = %d, want %d", c.players, c.pct, c.levels, got, c.want)
		}
	}
}

func settleInput() Input {
	return Input{
		TournamentID:    "t1",
		PrizePool:       10000,
		PayoutStructure: []float64{0.5, 0.3, 0.2},
		ITMPercentage:   30,
		TotalPlayers:    10,
		FinalRanking: []RankedPlayer{
			{UserID: "winner", Rank: 1, Chips: 100000},
			{UserID: "second", Rank: 2},
			{UserID: "third", Rank: 3},
			{UserID: "fourth", Rank: 4},
		},
	}
}

func TestCalculatePayouts(t *testing.T) {
	payouts := CalculatePayouts(settleInput())
	if len(payouts) != 3 {
		t.Fatalf("expected 3 payouts, got %d", len(payouts))
	}
	want := map[string]int{"winner": 5000, "second": 3000, "third": 2000}
	for _, p := range payouts {
		if want[p.UserID] != p.Amount {
			t.Errorf("payout for %s = %d, want %d", p.UserID, p.Amount, want[p.UserID])
		}
	}
}

func TestSettleTransfersAll(t *testing.T) {
	wallet := newFakeWallet()
	svc := NewService(wallet)

	summary := svc.Settle(context.Background(), settleInput())
	if summary.FailedCount != 0 {
		t.Fatalf("unexpected failures: %+v", summary)
	}
	if summary.TotalPaid != 10000 {
		t.Fatalf("total paid = %d, want 10000", summary.TotalPaid)
	}
	if wallet.credits["fourth"] != 0 {
		t.Fatal("out-of-the-money player was paid")
	}
}

func TestSettlePartialFailureContinues(t *testing.T) {
	wallet := newFakeWallet()
	wallet.failFor["second"] = true
	svc := NewService(wallet)

	summary := svc.Settle(context.Background(), settleInput())
	if summary.FailedCount != 1 {
		t.Fatalf("failed count = %d, want 1", summary.FailedCount)
	}
	if wallet.credits["winner"] != 5000 || wallet.credits["third"] != 2000 {
		t.Fatalf("surviving payouts wrong: %v", wallet.credits)
	}
	if summary.TotalPaid != 7000 {
		t.Fatalf("total paid = %d, want 7000", summary.TotalPaid)
	}
	if svc.PendingRetries() != 1 {
		t.Fatalf("pending retries = %d, want 1", svc.PendingRetries())
	}
}

func TestRetryDrainsQueue(t *testing.T) {
	wallet := newFakeWallet()
	wallet.failFor["second"] = true
	svc := NewService(wallet)
	svc.Settle(context.Background(), settleInput())

	// Wallet recovers; force the queued entry due and drain directly.
	wallet.failFor["second"] = false
	svc.mu.Lock()
	for i := range svc.queue {
		svc.queue[i].nextTry = svc.queue[i].nextTry.Add(-time.Hour)
	}
	svc.mu.Unlock()

	svc.drainDue(context.Background(), 5)
	if svc.PendingRetries() != 0 {
		t.Fatalf("queue not drained: %d entries", svc.PendingRetries())
	}
	if wallet.credits["second"] != 3000 {
		t.Fatalf("retried payout not credited: %v", wallet.credits)
	}
}
