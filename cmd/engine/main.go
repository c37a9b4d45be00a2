package main

import (
	"context"
	"flag"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/eaglecoth/matching-engine/config"
	"github.com/eaglecoth/matching-engine/feed"
	"github.com/eaglecoth/matching-engine/infra/metrics"
	"github.com/eaglecoth/matching-engine/infra/outbox"
	"github.com/eaglecoth/matching-engine/jobs/publisher"
	"github.com/eaglecoth/matching-engine/service"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	log := zap.Must(zap.NewProduction())
	defer log.Sync()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal("config load failed", zap.Error(err))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	metricsSrv := &http.Server{Addr: cfg.Metrics.Addr, Handler: mux}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("metrics server failed", zap.Error(err))
		}
	}()

	svc := service.New(service.Config{QueueDepth: cfg.QueueDepth}, m, log)
	svc.Start()

	box, err := outbox.Open(cfg.Outbox.Dir)
	if err != nil {
		log.Fatal("outbox open failed", zap.Error(err))
	}

	pub, err := publisher.New(publisher.Config{
		Brokers:  cfg.Kafka.Brokers,
		Topic:    cfg.Kafka.ExecutionTopic,
		Interval: cfg.PublishInterval,
	}, box, svc.Executions(), svc.ReleaseExecution, m, log)
	if err != nil {
		log.Fatal("publisher init failed", zap.Error(err))
	}
	pub.Start(ctx)

	ser := feed.NewSerializer(svc, feed.Config{
		Delimiter:        cfg.Feed.Delimiter,
		RetryCount:       cfg.Feed.RetryCount,
		RetrySleep:       cfg.Feed.RetrySleep,
		DefaultMarketQty: cfg.Feed.DefaultMarketQty,
	}, log)
	consumer := feed.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.InstructionTopic, cfg.Kafka.GroupID, ser, log)

	log.Info("matching engine started",
		zap.Strings("brokers", cfg.Kafka.Brokers),
		zap.String("instruction_topic", cfg.Kafka.InstructionTopic),
		zap.String("execution_topic", cfg.Kafka.ExecutionTopic))

	if err := consumer.Run(ctx); err != nil {
		log.Error("consumer stopped", zap.Error(err))
	}

	cancel()
	consumer.Close()
	svc.Shutdown()
	pub.Close()
	box.Close()
	metricsSrv.Close()
	log.Info("matching engine stopped")
}
