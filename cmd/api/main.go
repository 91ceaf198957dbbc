package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"github.com/caskline/distro/internal/config"
	"github.com/caskline/distro/internal/httpx"
	kafkax "github.com/caskline/distro/internal/kafka"
	"github.com/caskline/distro/internal/orders"
	"github.com/caskline/distro/internal/postgres"
	"github.com/caskline/distro/internal/redisx"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	log := config.GetLogger()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("db connect: %v", err)
	}
	defer db.Close()

	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	prod := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOrderCreated, 1024, log)
	prod.Start(ctx)

	repo := &orders.Repo{DB: db}
	svc := &orders.Service{
		DB:      db,
		Repo:    repo,
		Log:     log,
		TxLimit: cfg.OrderTxLimit,
	}

	router := httpx.NewRouter()
	oh := &httpx.OrdersHandler{
		Service:  svc,
		Repo:     repo,
		Producer: prod,
		Redis:    rdb,
		Log:      log,
		Validate: validator.New(),
		Name:     cfg.ServiceName,
	}
	oh.Register(router)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	go func() {
		log.Infof("HTTP listening at %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info("shutting down...")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)
	prod.Close()
	cancel()
	prod.WaitClosed()
}
