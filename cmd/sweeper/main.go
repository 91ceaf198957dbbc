package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/bsm/redislock"
	"github.com/joho/godotenv"

	"github.com/caskline/distro/internal/config"
	kafkax "github.com/caskline/distro/internal/kafka"
	"github.com/caskline/distro/internal/orders"
	"github.com/caskline/distro/internal/postgres"
	"github.com/caskline/distro/internal/redisx"
	"github.com/caskline/distro/internal/sweeper"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	log := config.GetLogger()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer db.Close()

	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	pExpired := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicReservationExpired, 1024, log)
	pExpired.Start(ctx)
	pReleased := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicReservationReleased, 1024, log)
	pReleased.Start(ctx)

	svc := &sweeper.Service{
		Repo:             &orders.ReservationRepo{DB: db},
		Redis:            rdb,
		Locker:           redislock.New(rdb),
		ProducerExpired:  pExpired,
		ProducerReleased: pReleased,
		Log:              log,
		ServiceName:      cfg.ServiceName + "-sweeper",
	}

	// Release holds when the fulfillment workflow cancels an order.
	group := getenv("SWEEPER_GROUP", "reservation-sweeper")
	workers := mustAtoi(os.Getenv("SWEEPER_WORKERS"), "4")
	cons := kafkax.NewConsumer(cfg.KafkaBrokers, group, orders.TopicOrderCancelled, workers, log)
	go func() {
		log.Infof("cancel consumer started: group=%s topic=%s workers=%d", group, orders.TopicOrderCancelled, workers)
		if err := cons.Start(ctx, svc.HandleOrderCancelled); err != nil {
			log.Errorf("consumer exit: %v", err)
			cancel()
		}
	}()

	// Periodic expiry pass.
	ticker := time.NewTicker(cfg.SweepInterval)
	defer ticker.Stop()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := svc.SweepOnce(ctx); err != nil {
					log.Errorf("sweep: %v", err)
				}
			}
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info("shutting down sweeper...")
	cancel()
	time.Sleep(500 * time.Millisecond)
	pExpired.Close()
	pReleased.Close()
	pExpired.WaitClosed()
	pReleased.WaitClosed()
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func mustAtoi(s, def string) int {
	if s == "" {
		s = def
	}
	i, err := strconv.Atoi(s)
	if err != nil {
		return 1
	}
	return i
}
