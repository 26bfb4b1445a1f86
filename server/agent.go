package server

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/MagicHoovy/Steve/internal"
	"github.com/MagicHoovy/Steve/internal/config"
	"github.com/MagicHoovy/Steve/metrics"
	"github.com/MagicHoovy/Steve/models"
	"github.com/MagicHoovy/Steve/poller"
	"github.com/MagicHoovy/Steve/publisher"
	"github.com/MagicHoovy/Steve/steve"
	"github.com/MagicHoovy/Steve/telegram"
)

// Agent owns the long lived resources: one database client, one SteVe client
// and a poller per enabled pipeline
type Agent struct {
	conf     *config.Config
	logger   *internal.Logger
	database *internal.MongoDB
	pollers  []*poller.Poller
	bot      *telegram.TgBot
	kafka    *publisher.KafkaPublisher
}

func NewAgent(ctx context.Context, conf *config.Config) (*Agent, error) {
	agent := &Agent{conf: conf}

	log.Println("set time zone to " + conf.TimeZone)
	location, err := time.LoadLocation(conf.TimeZone)
	if err != nil {
		return nil, fmt.Errorf("time zone initialization failed: %s", err)
	}

	logService, err := internal.NewLogger(internal.LogConfig{
		File:       conf.Log.File,
		MaxSize:    conf.Log.MaxSize,
		MaxBackups: conf.Log.MaxBackups,
		Console:    conf.Log.Console,
	}, location)
	if err != nil {
		return nil, fmt.Errorf("logger setup failed: %s", err)
	}
	logService.SetDebugMode(conf.Debug())
	agent.logger = logService

	database, err := internal.NewMongoClient(ctx, conf)
	if err != nil {
		logService.Error("mongodb setup failed", err)
		logService.Close()
		return nil, err
	}
	agent.database = database
	logService.FeatureEvent("startup", "", fmt.Sprintf("connected to mongodb, database %s", conf.Mongo.Database))
	if conf.Log.ToDatabase {
		logService.SetDatabase(database)
	}

	var handlers []internal.EventHandler
	if conf.Telegram.Enabled {
		bot, err := telegram.NewBot(conf.Telegram.ApiKey, conf.Telegram.ChatIDs, logService)
		if err != nil {
			agent.Close()
			return nil, fmt.Errorf("telegram bot setup failed: %s", err)
		}
		agent.bot = bot
		handlers = append(handlers, bot)
		logService.FeatureEvent("startup", "", "telegram bot is configured and enabled")
	}
	if conf.Kafka.Enabled {
		agent.kafka = publisher.NewKafkaPublisher(conf.Kafka.Brokers, conf.Kafka.Topic, logService)
		handlers = append(handlers, agent.kafka)
		logService.FeatureEvent("startup", "", "kafka publisher is configured and enabled, topic "+conf.Kafka.Topic)
	}

	client := steve.New(conf.Steve.Url, conf.Steve.Username, conf.Steve.Password, conf.Steve.ApiKey, conf.Steve.Timeout)
	pipelines := []struct {
		pipeline config.Pipeline
		kind     models.EntityKind
	}{
		{conf.Snapshots, models.ChargerSnapshotKind(conf.Snapshots.Collection)},
		{conf.Transactions, models.TransactionKind(conf.Transactions.Collection)},
	}
	for _, p := range pipelines {
		if !p.pipeline.Enabled {
			continue
		}
		if err = database.EnsureIndexes(ctx, p.kind); err != nil {
			agent.Close()
			return nil, fmt.Errorf("indexes on %s: %w", p.kind.Collection, err)
		}
		worker := poller.New(p.kind, conf.Chargers, client, database, logService, poller.Settings{
			Interval:  p.pipeline.Interval,
			Threshold: conf.Backoff.Threshold,
			CoolDown:  conf.Backoff.CoolDown,
		})
		for _, handler := range handlers {
			worker.AddEventHandler(handler)
		}
		agent.pollers = append(agent.pollers, worker)
	}
	return agent, nil
}

// Run blocks until ctx is cancelled and every poller has finished its step
func (a *Agent) Run(ctx context.Context) {
	if a.bot != nil {
		a.bot.Start(ctx)
	}
	go func() {
		if err := metrics.Listen(ctx, a.conf, a.logger); err != nil {
			a.logger.Error("metrics server", err)
		}
	}()

	var wg sync.WaitGroup
	for _, worker := range a.pollers {
		wg.Add(1)
		go func(p *poller.Poller) {
			defer wg.Done()
			if err := p.Run(ctx); err != nil {
				a.logger.Error("poller stopped", err)
			}
		}(worker)
	}
	wg.Wait()
}

// Close releases the database connection and flushes the logs
func (a *Agent) Close() {
	if a.kafka != nil {
		if err := a.kafka.Close(); err != nil {
			a.logger.Error("closing kafka publisher", err)
		}
	}
	if a.database != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.database.Close(ctx); err != nil {
			a.logger.Error("closing mongodb connection", err)
		}
	}
	a.logger.FeatureEvent("shutdown", "", "resources released")
	a.logger.Close()
}
