package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"pokercore/internal/auth"
	"pokercore/internal/blinds"
	"pokercore/internal/bots"
	"pokercore/internal/chipintegrity"
	"pokercore/internal/config"
	"pokercore/internal/events"
	"pokercore/internal/fraud"
	"pokercore/internal/gameloop"
	"pokercore/internal/lock"
	"pokercore/internal/metrics"
	"pokercore/internal/persistence"
	"pokercore/internal/ranking"
	"pokercore/internal/settlement"
	"pokercore/internal/snapshot"
	"pokercore/internal/table"
	"pokercore/internal/tournament"
	"pokercore/internal/wsgateway"
)

func main() {
	godotenv.Load()
	cfg := config.Load()

	redisClient, err := config.NewRedisClient(cfg)
	if err != nil {
		log.Fatalf("redis connection failed: %v", err)
	}
	defer redisClient.Close()

	db, err := persistence.Open(persistence.Config{
		Driver: getEnv("DB_DRIVER", "sqlite"),
		DSN:    getEnv("DB_DSN", ""),
	})
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	store := persistence.NewWriter(db)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Core singletons, initialized explicitly in dependency order.
	authService := auth.NewService(cfg.JWTSecret, 24*time.Hour)
	integrity := chipintegrity.NewVerifier([]byte(getEnv("CHIP_INTEGRITY_SECRET", cfg.JWTSecret)))
	manager := gameloop.NewManager(integrity, cfg.TableEmptyEvictAfter)
	gateway := wsgateway.New(authService, cfg.HeartbeatInterval, cfg.MaxMissedPongs)

	loop := gameloop.NewLoop(manager, nil, gateway, cfg)
	orchestrator := bots.New(manager, loop, cfg)
	loop.Deciders = orchestrator

	locks := lock.NewManager(redisClient, cfg)
	rank := ranking.NewEngine(redisClient)
	snaps := snapshot.NewManager(redisClient, []byte(getEnv("SNAPSHOT_SECRET", cfg.JWTSecret)), 0)
	settler := settlement.NewService(newRedisWallet(redisClient))

	scheduler := blinds.NewScheduler(redisClient, cfg.BlindWarningThresholds, func(tournamentID string, env events.Envelope) {
		gateway.BroadcastToChannel("tournament:"+tournamentID, env)
	})
	scheduler.SetDriftObserver(func(_ string, drift time.Duration) {
		metrics.BlindDriftSeconds.Observe(drift.Seconds())
	})

	bridge := newTournamentBridge(manager, loop)
	var engine *tournament.Engine
	publish := publishTournamentEvent(ctx, gateway, redisClient, func(evt events.TournamentEvent) {
		// Keep the precision blind clock in lockstep with the engine's
		// lifecycle transitions.
		switch evt.EventType {
		case events.EvtTournamentStarted:
			if phase, _ := evt.Payload["phase"].(string); phase != "shotgun" {
				return
			}
			if state, ok := engine.Store().Get(evt.TournamentID); ok {
				if err := scheduler.Register(ctx, evt.TournamentID, state.Config.BlindStructure, state.CurrentLevel, 0); err != nil {
					log.Printf("blind clock registration failed for %s: %v", evt.TournamentID, err)
				}
			}
		case events.EvtTournamentPaused:
			scheduler.Pause(evt.TournamentID)
		case events.EvtTournamentResumed:
			scheduler.Resume(evt.TournamentID)
		case events.EvtTournamentCompleted, events.EvtTournamentCancelled:
			scheduler.Unregister(ctx, evt.TournamentID)
		}
	})
	engine = tournament.NewEngine(locks, rank, snaps, settler, bridge, publish)
	bridge.engine = engine
	loop.OnHandComplete = func(tableID string, result table.HandResult) bool {
		saveHandHistory(store, manager, tableID, result)
		return bridge.onHandComplete(tableID, result)
	}

	autoban := fraud.NewAutoBan(cfg, store, nil, nil)
	consumer := fraud.NewConsumer(redisClient, cfg, store, autoban)

	// Crash recovery before anything starts dealing.
	if n, err := engine.Recover(ctx); err != nil {
		log.Printf("tournament recovery failed: %v", err)
	} else if n > 0 {
		log.Printf("recovered %d tournaments", n)
	}

	// Background loops.
	go manager.RunCleanupLoop(cfg.CleanupLoopInterval)
	go loop.RunTurnTimeoutLoop(ctx)
	go gateway.RunHeartbeat(ctx)
	go rank.RunSnapshotUpdater(ctx, time.Second)
	go engine.RunBlindLoop(ctx)
	go engine.RunBalancingLoop(ctx)
	go settler.RunRetryLoop(ctx, 5*time.Second)
	go consumer.Run(ctx)
	orchestrator.Start()

	router := gin.Default()
	router.Use(cors.New(cors.Config{
		AllowOrigins: getAllowedOrigins(),
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Authorization"},
		MaxAge:       12 * time.Hour,
	}))

	router.GET("/ws", gin.WrapF(gateway.ServeWS))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/readyz", func(c *gin.Context) {
		if err := redisClient.Ping(c.Request.Context()).Err(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "redis unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"status":      "ready",
			"connections": gateway.ConnectionCount(),
			"tables":      len(manager.TableIDs()),
		})
	})

	srv := &http.Server{
		Addr:    ":" + getEnv("SERVER_PORT", "8080"),
		Handler: router,
	}
	go func() {
		log.Printf("listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	// Graceful shutdown: stop intake, drain loops, release everything.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	srv.Shutdown(shutdownCtx)

	orchestrator.Stop()
	engine.Shutdown()
	scheduler.Shutdown()
	settler.Shutdown()
	rank.Shutdown()
	gateway.Shutdown()
	manager.Shutdown()
	cancel()
	log.Println("shutdown complete")
}

// publishTournamentEvent fans engine events out to subscribers, onto
// the durable Redis stream consumer groups read from, and through the
// lifecycle hook.
func publishTournamentEvent(ctx context.Context, gateway *wsgateway.Gateway, redisClient *redis.Client, lifecycle func(events.TournamentEvent)) tournament.EventPublisher {
	return func(evt events.TournamentEvent) {
		if lifecycle != nil {
			lifecycle(evt)
		}
		gateway.BroadcastToChannel("tournament:"+evt.TournamentID, events.New(events.TypeTournamentEvent, evt))
		if evt.TableID != "" {
			gateway.BroadcastToChannel(fmt.Sprintf("tournament:%s:table:%s", evt.TournamentID, evt.TableID), events.New(events.TypeTableEvent, evt))
		}

		payload, err := json.Marshal(evt)
		if err != nil {
			return
		}
		if err := redisClient.XAdd(ctx, &redis.XAddArgs{
			Stream: config.TournamentEventStream,
			MaxLen: 10000,
			Approx: true,
			Values: map[string]any{"event": payload},
		}).Err(); err != nil {
			log.Printf("event stream append failed: %v", err)
		}
	}
}

// saveHandHistory records a completed hand's permanent trail; strictly
// best-effort, after the hand has already resolved.
func saveHandHistory(store *persistence.Writer, manager *gameloop.Manager, tableID string, result table.HandResult) {
	t, ok := manager.GetTable(tableID)
	if !ok {
		return
	}
	t.Mu.Lock()
	startingStacks, _ := json.Marshal(t.StartingStacks)
	actionLog, _ := json.Marshal(t.ActionLog)
	t.Mu.Unlock()

	winners, _ := json.Marshal(result.Winners)
	showdown, _ := json.Marshal(result.ShowdownCards)
	store.SaveHandHistory(persistence.HandHistory{
		TableID:        tableID,
		HandNumber:     result.HandNumber,
		StartingStacks: string(startingStacks),
		ActionLog:      string(actionLog),
		Winners:        string(winners),
		ShowdownCards:  string(showdown),
		Pot:            result.Pot,
	})
}

// redisWallet enqueues prize transfers for the external wallet worker;
// the wallet service itself lives outside this process.
type redisWallet struct {
	client *redis.Client
}

func newRedisWallet(client *redis.Client) *redisWallet {
	return &redisWallet{client: client}
}

func (w *redisWallet) Credit(ctx context.Context, userID string, amount int, reference string) error {
	payload, err := json.Marshal(map[string]any{
		"user_id":   userID,
		"amount":    amount,
		"reference": reference,
		"queued_at": time.Now(),
	})
	if err != nil {
		return err
	}
	return w.client.LPush(ctx, "wallet:transfers", payload).Err()
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getAllowedOrigins() []string {
	if v := os.Getenv("ALLOWED_ORIGINS"); v != "" {
		return strings.Split(v, ",")
	}
	return []string{"http://localhost:3000"}
}
