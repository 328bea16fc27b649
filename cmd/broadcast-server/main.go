package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/wtsdeal/broadcast-service/internal/accounts"
	"github.com/wtsdeal/broadcast-service/internal/config"
	"github.com/wtsdeal/broadcast-service/internal/dispatcher"
	"github.com/wtsdeal/broadcast-service/internal/kafka/producer"
	kafkapublisher "github.com/wtsdeal/broadcast-service/internal/kafka/publisher"
	"github.com/wtsdeal/broadcast-service/internal/logger"
	"github.com/wtsdeal/broadcast-service/internal/notifier"
	"github.com/wtsdeal/broadcast-service/internal/orchestrator"
	"github.com/wtsdeal/broadcast-service/internal/provider/graph"
	"github.com/wtsdeal/broadcast-service/internal/sender"
	"github.com/wtsdeal/broadcast-service/internal/server"
	"github.com/wtsdeal/broadcast-service/internal/store"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		fail("config load", err)
	}

	baseLogger, err := logger.New(cfg.App.Env, cfg.App.LogLevel)
	if err != nil {
		fail("logger init", err)
	}
	log := baseLogger.With().Str("service", "broadcast-server").Logger()

	httpClient := &http.Client{
		Timeout: time.Duration(cfg.Provider.TimeoutSeconds) * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        cfg.Dispatch.MaxConnections,
			MaxIdleConnsPerHost: cfg.Dispatch.MaxConnections,
		},
	}

	graphClient, err := graph.New(cfg.Provider, logger.Component(log, "graph-client"),
		graph.WithHTTPClient(httpClient),
		graph.WithBodyLimit(int64(cfg.Dispatch.ResponseBodyLimit)))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialise graph client")
	}

	snd, err := sender.New(graphClient, logger.Component(log, "sender"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialise sender")
	}

	disp, err := dispatcher.New(dispatcher.Config{
		BatchSize:  cfg.Dispatch.BatchSize,
		BatchDelay: time.Duration(cfg.Dispatch.BatchDelayMS) * time.Millisecond,
	}, snd, logger.Component(log, "dispatcher"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialise dispatcher")
	}

	notify, err := notifier.New(cfg.Webhook.NotifyURL, logger.Component(log, "notifier"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialise notifier")
	}

	accountsSvc, lookup, err := buildAccounts(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialise accounts source")
	}

	var events *kafkapublisher.JobEventPublisher
	if len(cfg.Kafka.Brokers) > 0 {
		prod, err := producer.New(cfg.Kafka.Brokers, logger.Component(log, "kafka-producer"))
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create kafka producer")
		}
		defer func() {
			if err := prod.Close(); err != nil {
				log.Error().Err(err).Msg("failed to close kafka producer")
			}
		}()
		events = kafkapublisher.NewJobEventPublisher(prod, cfg.Kafka.JobEventsTopic, logger.Component(log, "job-events"))
	}

	orch, err := orchestrator.New(orchestrator.Dependencies{
		Dispatcher: disp,
		Notifier:   notify,
		Accounts:   accountsSvc,
		Templates:  graphClient,
		Events:     events,
		Logger:     logger.Component(log, "orchestrator"),
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialise orchestrator")
	}

	srv, err := server.New(orch, lookup, graphClient, logger.Component(log, "server"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialise http server")
	}

	addr := fmt.Sprintf(":%d", cfg.App.Port)
	if err := srv.ListenAndServe(ctx, addr); err != nil {
		log.Error().Err(err).Msg("http server terminated with error")
		os.Exit(1)
	}
	log.Info().Msg("shutdown complete")
}

// buildAccounts selects the credential source. Both implementations satisfy
// the orchestrator's combined lookup/reservation contract.
func buildAccounts(cfg *config.Config, log zerolog.Logger) (orchestrator.Accounts, accounts.Lookup, error) {
	switch cfg.Accounts.Source {
	case config.AccountsSourceSQLite:
		st, err := store.Open(cfg.Accounts.SQLitePath, logger.Component(log, "store"))
		if err != nil {
			return nil, nil, err
		}
		return st, st, nil
	default:
		client, err := accounts.NewClient(cfg.Accounts.BaseURL, logger.Component(log, "accounts"))
		if err != nil {
			return nil, nil, err
		}
		return client, client, nil
	}
}

func fail(stage string, err error) {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	logger.Fatal().Err(err).Str("stage", stage).Msg("broadcast server init failed")
}
