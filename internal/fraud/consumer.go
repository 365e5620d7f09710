package fraud

import (
	"context"
	"encoding/json"
	"log"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"pokercore/internal/config"
	"pokercore/internal/metrics"
	"pokercore/internal/persistence"
)

// handCompletedEvent is the fraud:hand_completed payload.
type handCompletedEvent struct {
	TableID    string `json:"table_id"`
	HandNumber int    `json:"hand_number"`
	Transfers  []struct {
		Winner string `json:"winner"`
		Loser  string `json:"loser"`
		Amount int    `json:"amount"`
	} `json:"transfers"`
	Timestamp time.Time `json:"timestamp"`
}

// playerActionEvent is the fraud:player_action payload.
type playerActionEvent struct {
	UserID         string    `json:"user_id"`
	Action         string    `json:"action"`
	ResponseTimeMs int       `json:"response_time_ms"`
	Timestamp      time.Time `json:"timestamp"`
}

// playerStatsEvent is the fraud:player_stats payload.
type playerStatsEvent struct {
	UserID          string `json:"user_id"`
	RoomID          string `json:"room_id"`
	HandsPlayed     int    `json:"hands_played"`
	TotalBet        int    `json:"total_bet"`
	TotalWon        int    `json:"total_won"`
	DurationSeconds int    `json:"session_duration_seconds"`
}

// Consumer is the single listen loop over the three fraud channels. One
// bad message never stops the loop; it is logged and the next message
// is read.
type Consumer struct {
	redis   *redis.Client
	cfg     config.Config
	th      Thresholds
	buffer  *actionBuffer
	dumps   *ChipDumpDetector
	autoban *AutoBan
	store   *persistence.Writer
}

// NewConsumer assembles the fraud pipeline.
func NewConsumer(redisClient *redis.Client, cfg config.Config, store *persistence.Writer, autoban *AutoBan) *Consumer {
	th := DefaultThresholds(cfg)
	return &Consumer{
		redis:   redisClient,
		cfg:     cfg,
		th:      th,
		buffer:  newActionBuffer(cfg.BotMinSampleSize),
		dumps:   NewChipDumpDetector(th),
		autoban: autoban,
		store:   store,
	}
}

// Run subscribes and processes messages until ctx is done.
func (c *Consumer) Run(ctx context.Context) {
	channels := []string{
		config.FraudChannel(config.FraudChannelHandCompleted),
		config.FraudChannel(config.FraudChannelPlayerAction),
		config.FraudChannel(config.FraudChannelPlayerStats),
	}
	sub := c.redis.Subscribe(ctx, channels...)
	defer sub.Close()
	log.Printf("[FRAUD] consumer listening on %v", channels)

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			log.Printf("[FRAUD] consumer stopped")
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			c.dispatch(ctx, msg.Channel, []byte(msg.Payload))
		}
	}
}

func (c *Consumer) dispatch(ctx context.Context, channel string, payload []byte) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[FRAUD] panic processing %s message: %v", channel, r)
			metrics.FraudMessages.WithLabelValues(channel, "panic").Inc()
		}
	}()

	var err error
	switch channel {
	case config.FraudChannel(config.FraudChannelHandCompleted):
		err = c.handleHandCompleted(ctx, payload)
	case config.FraudChannel(config.FraudChannelPlayerAction):
		err = c.handlePlayerAction(ctx, payload)
	case config.FraudChannel(config.FraudChannelPlayerStats):
		err = c.handlePlayerStats(ctx, payload)
	default:
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
		log.Printf("[FRAUD] failed to process %s message: %v", channel, err)
	}
	metrics.FraudMessages.WithLabelValues(channel, outcome).Inc()
}

// handleHandCompleted feeds the chip-dumping detector and scans for
// one-way flow.
func (c *Consumer) handleHandCompleted(ctx context.Context, payload []byte) error {
	var evt handCompletedEvent
	if err := json.Unmarshal(payload, &evt); err != nil {
		return err
	}
	at := evt.Timestamp
	if at.IsZero() {
		at = time.Now()
	}
	for _, t := range evt.Transfers {
		c.dumps.RecordHand(t.Winner, t.Loser, t.Amount, at)
	}
	for _, flag := range c.dumps.Scan(at) {
		log.Printf("[FRAUD] %s", flag)
		c.autoban.Process(ctx, flag)
	}
	return nil
}

// handlePlayerAction appends to the user's ring buffer and runs the
// realtime bot detector when the buffer fills. Response times are also
// mirrored into the stats:* keys for offline analysis.
func (c *Consumer) handlePlayerAction(ctx context.Context, payload []byte) error {
	var evt playerActionEvent
	if err := json.Unmarshal(payload, &evt); err != nil {
		return err
	}
	if evt.UserID == "" {
		return nil
	}
	at := evt.Timestamp
	if at.IsZero() {
		at = time.Now()
	}

	c.mirrorToStats(ctx, evt, at)

	full := c.buffer.add(evt.UserID, actionSample{Action: evt.Action, ResponseTimeMs: evt.ResponseTimeMs, At: at})
	if !full {
		return nil
	}

	times, counts := c.buffer.drain(evt.UserID)
	verdict := RunRealtimeBotDetection(evt.UserID, times, counts, c.th)
	if !verdict.IsLikelyBot {
		return nil
	}
	log.Printf("[FRAUD] bot suspicion for %s: score=%d reasons=%v", evt.UserID, verdict.Score, verdict.Reasons)
	c.autoban.Process(ctx, Flag{
		UserID:        evt.UserID,
		DetectionType: DetectBot,
		Severity:      verdict.Severity,
		Score:         float64(verdict.Score),
		Reasons:       verdict.Reasons,
		Details:       map[string]any{"sample_size": len(times)},
	})
	return nil
}

// mirrorToStats maintains the stats:response_times ZSET (trimmed to the
// last hour) and stats:action_pattern HASH for offline analyzers.
func (c *Consumer) mirrorToStats(ctx context.Context, evt playerActionEvent, at time.Time) {
	pipe := c.redis.Pipeline()
	ts := float64(at.UnixMilli())
	pipe.ZAdd(ctx, config.ResponseTimesKey(evt.UserID), redis.Z{Score: ts, Member: evt.ResponseTimeMs})
	pipe.ZRemRangeByScore(ctx, config.ResponseTimesKey(evt.UserID), "0", strconv.FormatInt(at.Add(-time.Hour).UnixMilli(), 10))
	pipe.HIncrBy(ctx, config.ActionPatternKey(evt.UserID), evt.Action, 1)
	pipe.HIncrBy(ctx, config.ActionPatternKey(evt.UserID), "total", 1)
	pipe.Expire(ctx, config.ResponseTimesKey(evt.UserID), 24*time.Hour)
	pipe.Expire(ctx, config.ActionPatternKey(evt.UserID), 24*time.Hour)
	if _, err := pipe.Exec(ctx); err != nil {
		log.Printf("[FRAUD] stats mirror failed for %s: %v", evt.UserID, err)
	}
}

// handlePlayerStats runs the session heuristics, and the DB-backed
// anomaly pass when the session is long enough to be meaningful.
func (c *Consumer) handlePlayerStats(ctx context.Context, payload []byte) error {
	var evt playerStatsEvent
	if err := json.Unmarshal(payload, &evt); err != nil {
		return err
	}
	if evt.UserID == "" {
		return nil
	}

	c.store.SaveSessionStats(persistence.PlayerSessionStats{
		UserID:      evt.UserID,
		HandsPlayed: evt.HandsPlayed,
		WinRate:     winRate(evt),
		NetProfit:   evt.TotalWon - evt.TotalBet,
		DurationSec: evt.DurationSeconds,
	})

	stats := SessionStats{
		UserID:          evt.UserID,
		HandsPlayed:     evt.HandsPlayed,
		TotalBet:        evt.TotalBet,
		TotalWon:        evt.TotalWon,
		DurationSeconds: evt.DurationSeconds,
	}
	if flag, suspicious := AnalyzeSession(stats); suspicious {
		log.Printf("[FRAUD] %s", flag)
		c.autoban.Process(ctx, flag)
	}

	if evt.HandsPlayed >= 10 {
		if flag, suspicious := c.runHistoricalAnomaly(evt); suspicious {
			log.Printf("[FRAUD] %s", flag)
			c.autoban.Process(ctx, flag)
		}
	}
	return nil
}

func winRate(evt playerStatsEvent) float64 {
	if evt.TotalBet == 0 {
		return 0
	}
	return float64(evt.TotalWon) / float64(evt.TotalBet)
}

// runHistoricalAnomaly compares this session against the user's recent
// stored sessions: a sustained run of winning sessions well above the
// user's own baseline is flagged.
func (c *Consumer) runHistoricalAnomaly(evt playerStatsEvent) (Flag, bool) {
	history, err := c.store.RecentSessionStats(evt.UserID, detectionWindow, 50)
	if err != nil {
		log.Printf("[FRAUD] history lookup failed for %s: %v", evt.UserID, err)
		return Flag{}, false
	}
	if len(history) < 5 {
		return Flag{}, false
	}

	winning := 0
	totalProfit := 0
	for _, s := range history {
		if s.NetProfit > 0 {
			winning++
		}
		totalProfit += s.NetProfit
	}
	winningRate := float64(winning) / float64(len(history))
	if winningRate < 0.9 || totalProfit <= 0 {
		return Flag{}, false
	}

	return Flag{
		UserID:        evt.UserID,
		DetectionType: DetectAnomaly,
		Severity:      SeverityMedium,
		Score:         winningRate * 100,
		Reasons:       []string{"sustained_winning_sessions"},
		Details: map[string]any{
			"sessions":     len(history),
			"winning_rate": winningRate,
			"total_profit": totalProfit,
		},
	}, true
}
