// Package settlement distributes a completed tournament's prize pool
// by final rank through an external wallet contract. Transfer
// failures never abort the run: they are recorded on the summary and
// queued for background retry with backoff.
package settlement

import (
	"context"
	"fmt"
	"log"
	"math"
	"sync"
	"time"
)

// Wallet is the external wallet contract the core consumes but does not
// design: a single credit operation per payout.
type Wallet interface {
	Credit(ctx context.Context, userID string, amount int, reference string) error
}

// RankedPlayer is one row of the final standing handed to Settle.
type RankedPlayer struct {
	UserID string
	Rank   int // 1 = winner
	Chips  int
}

// Input is everything Settle needs from the tournament's final state.
type Input struct {
	TournamentID    string
	PrizePool       int
	PayoutStructure []float64 // fractions of the pool by rank, sum <= 1
	ITMPercentage   float64
	TotalPlayers    int
	FinalRanking    []RankedPlayer // rank order, winner first
}

// Payout is one player's settled (or failed) prize.
type Payout struct {
	UserID string `json:"user_id"`
	Rank   int    `json:"rank"`
	Amount int    `json:"amount"`
	Paid   bool   `json:"paid"`
	Error  string `json:"error,omitempty"`
}

// Summary reports the full settlement outcome, broadcast on
// TOURNAMENT_COMPLETED.
type Summary struct {
	TournamentID string    `json:"tournament_id"`
	PrizePool    int       `json:"prize_pool"`
	ITMCount     int       `json:"itm_count"`
	Payouts      []Payout  `json:"payouts"`
	TotalPaid    int       `json:"total_paid"`
	FailedCount  int       `json:"failed_count"`
	SettledAt    time.Time `json:"settled_at"`
}

// ITMCount computes how many ranks are in the money: at least 1, capped
// by the payout structure's length.
func ITMCount(totalPlayers int, itmPercentage float64, payoutLevels int) int {
	n := int(math.Round(float64(totalPlayers) * itmPercentage / 100))
	if n < 1 {
		n = 1
	}
	if n > payoutLevels {
		n = payoutLevels
	}
	return n
}

// CalculatePayouts applies the payout structure to the prize pool for
// every in-the-money rank. Pure, so the math is testable without a
// wallet.
func CalculatePayouts(in Input) []Payout {
	itm := ITMCount(in.TotalPlayers, in.ITMPercentage, len(in.PayoutStructure))
	payouts := make([]Payout, 0, itm)
	for _, p := range in.FinalRanking {
		if p.Rank > itm {
			continue
		}
		amount := int(float64(in.PrizePool) * in.PayoutStructure[p.Rank-1])
		payouts = append(payouts, Payout{UserID: p.UserID, Rank: p.Rank, Amount: amount})
	}
	return payouts
}

// retryEntry is one failed transfer waiting in the retry queue.
type retryEntry struct {
	tournamentID string
	payout       Payout
	attempts     int
	nextTry      time.Time
}

// Service settles tournaments against a wallet and retries failures.
type Service struct {
	wallet Wallet

	mu    sync.Mutex
	queue []retryEntry
	stop  chan struct{}
	once  sync.Once
}

// NewService builds a settlement service over the external wallet.
func NewService(wallet Wallet) *Service {
	return &Service{wallet: wallet, stop: make(chan struct{})}
}

// Settle transfers every in-the-money payout. A failed transfer is
// recorded on the summary and enqueued for retry; the remaining payouts
// still proceed.
func (s *Service) Settle(ctx context.Context, in Input) Summary {
	summary := Summary{
		TournamentID: in.TournamentID,
		PrizePool:    in.PrizePool,
		ITMCount:     ITMCount(in.TotalPlayers, in.ITMPercentage, len(in.PayoutStructure)),
		SettledAt:    time.Now(),
	}

	for _, payout := range CalculatePayouts(in) {
		ref := fmt.Sprintf("tournament:%s:rank:%d", in.TournamentID, payout.Rank)
		if err := s.wallet.Credit(ctx, payout.UserID, payout.Amount, ref); err != nil {
			payout.Paid = false
			payout.Error = err.Error()
			summary.FailedCount++
			s.enqueueRetry(in.TournamentID, payout)
			log.Printf("[SETTLEMENT] transfer failed for %s rank %d (%d chips): %v", payout.UserID, payout.Rank, payout.Amount, err)
		} else {
			payout.Paid = true
			summary.TotalPaid += payout.Amount
			log.Printf("[SETTLEMENT] paid %s rank %d: %d chips", payout.UserID, payout.Rank, payout.Amount)
		}
		summary.Payouts = append(summary.Payouts, payout)
	}

	log.Printf("[SETTLEMENT] tournament %s settled: %d payouts, %d failed, %d chips paid",
		in.TournamentID, len(summary.Payouts), summary.FailedCount, summary.TotalPaid)
	return summary
}

func (s *Service) enqueueRetry(tournamentID string, payout Payout) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue = append(s.queue, retryEntry{
		tournamentID: tournamentID,
		payout:       payout,
		attempts:     1,
		nextTry:      time.Now().Add(retryDelay(1)),
	})
}

// PendingRetries reports how many failed payouts are queued.
func (s *Service) PendingRetries() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// RunRetryLoop drains the retry queue until ctx is done, re-attempting
// each entry at its backoff deadline. Entries that keep failing are
// capped at maxAttempts and dropped with a loud log line.
func (s *Service) RunRetryLoop(ctx context.Context, interval time.Duration) {
	const maxAttempts = 5
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stop:
			return
		case <-ticker.C:
			s.drainDue(ctx, maxAttempts)
		}
	}
}

func (s *Service) drainDue(ctx context.Context, maxAttempts int) {
	now := time.Now()
	s.mu.Lock()
	var due, rest []retryEntry
	for _, e := range s.queue {
		if now.After(e.nextTry) {
			due = append(due, e)
		} else {
			rest = append(rest, e)
		}
	}
	s.queue = rest
	s.mu.Unlock()

	for _, e := range due {
		ref := fmt.Sprintf("tournament:%s:rank:%d:retry:%d", e.tournamentID, e.payout.Rank, e.attempts)
		err := s.wallet.Credit(ctx, e.payout.UserID, e.payout.Amount, ref)
		if err == nil {
			log.Printf("[SETTLEMENT] retry succeeded for %s (%d chips, attempt %d)", e.payout.UserID, e.payout.Amount, e.attempts+1)
			continue
		}
		e.attempts++
		if e.attempts >= maxAttempts {
			log.Printf("[SETTLEMENT] ⚠️  giving up on payout to %s after %d attempts: %v", e.payout.UserID, e.attempts, err)
			continue
		}
		e.nextTry = now.Add(retryDelay(e.attempts))
		s.mu.Lock()
		s.queue = append(s.queue, e)
		s.mu.Unlock()
	}
}

func retryDelay(attempt int) time.Duration {
	d := time.Duration(1<<attempt) * time.Second
	if d > 2*time.Minute {
		d = 2 * time.Minute
	}
	return d
}

// Shutdown stops the retry loop.
func (s *Service) Shutdown() {
	s.once.Do(func() { close(s.stop) })
}
