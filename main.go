package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/kataras/iris/v12"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func main() {
	if err := godotenv.Load(); err != nil {
		logrus.Info("Error loading .env file. Using existing environment variables.")
	}

	cfg, err := LoadConfig()
	if err != nil {
		logrus.WithError(err).Fatal("invalid configuration")
	}

	lm := NewLogManager(cfg.ServerID, cfg.LogLevel, cfg.LogPrivacy)
	if cfg.LokiURL != "" {
		lm.AddHook(NewLokiHook(NewLokiClient(cfg.LokiURL, cfg.LokiUsername, cfg.LokiPassword), cfg.ServerID, cfg.LogLevel))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics := NewMetrics()
	gateway, err := buildGateway(ctx, cfg, lm, metrics)
	if err != nil {
		lm.SendLog(lm.BuildLog("Main", "Failed to create SMS gateway", logrus.ErrorLevel, nil, err))
		os.Exit(1)
	}
	defer gateway.Close(context.Background())

	if err := seedLedger(ctx, gateway); err != nil {
		lm.SendLog(lm.BuildLog("Main", "Failed to seed ledger", logrus.ErrorLevel, nil, err))
		os.Exit(1)
	}

	metrics.Registry().MustRegister(NewMetricExporter(cfg.ServerID, gateway.Ledger))
	go func() {
		exporter := &PrometheusExporter{Path: "/metrics", Listen: cfg.PrometheusListen, registry: metrics.Registry()}
		if err := exporter.Start(); err != nil {
			lm.SendLog(lm.BuildLog("Main", "Prometheus exporter stopped", logrus.ErrorLevel, nil, err))
		}
	}()

	gateway.Start(ctx)

	app := gateway.NewWebApp()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = app.Shutdown(shutdownCtx)
	}()

	lm.SendLog(lm.BuildLog("Main", "Listening", logrus.InfoLevel, map[string]interface{}{"listen": cfg.WebListen}))
	if err := app.Listen(cfg.WebListen, iris.WithoutInterruptHandler, iris.WithoutStartupLog); err != nil {
		lm.SendLog(lm.BuildLog("Main", "Web server stopped", logrus.ErrorLevel, nil, err))
	}
}

// buildGateway picks the storage backend and attaches the optional
// infrastructure clients.
func buildGateway(ctx context.Context, cfg *Config, lm *LogManager, metrics *Metrics) (*Gateway, error) {
	var (
		db   *DB
		deps = GatewayDeps{Metrics: metrics}
		err  error
	)

	switch cfg.LedgerBackend {
	case "memory":
		deps.LedgerStore = NewMemoryLedgerStore(cfg.SystemInitialBalance)
		deps.Records = NewMemoryMessageRecordStore()
	default:
		db, err = NewDB(ctx, cfg.DB)
		if err != nil {
			return nil, err
		}
		if err := db.Migrate(); err != nil {
			db.Close()
			return nil, err
		}
		store := NewPGLedgerStore(db.pool)
		if err := store.EnsurePool(ctx, cfg.SystemInitialBalance); err != nil {
			db.Close()
			return nil, err
		}
		deps.LedgerStore = store
		deps.Records = NewGormMessageRecordStore(db.Gorm)
	}

	gateway, err := NewGateway(cfg, lm, deps)
	if err != nil {
		if db != nil {
			db.Close()
		}
		return nil, err
	}
	gateway.DB = db

	if cfg.AMQPURL != "" {
		gateway.AMPQClient = NewMsgQueueClient(cfg.AMQPURL, []string{deliveryEventsQueue, dispatchResultsQueue}, lm.Entry("AMQP"))
		gateway.Publisher = gateway.AMPQClient
		gateway.AddSink(NewAMQPEventSink(gateway.AMPQClient))
	}

	if cfg.MongoURI != "" {
		mongoClient, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
		if err != nil {
			gateway.Close(ctx)
			return nil, err
		}
		gateway.MongoClient = mongoClient
		archive := NewMongoEventSink(mongoClient, cfg.MongoDatabase, cfg.ServerID)
		if err := archive.EnsureIndexes(ctx); err != nil {
			lm.SendLog(lm.BuildLog("Main", "Mongo index setup failed", logrus.WarnLevel, nil, err))
		}
		gateway.AddSink(archive)
		gateway.Archive = archive
	}

	return gateway, nil
}

// seedLedger makes sure the admin account exists.
func seedLedger(ctx context.Context, gateway *Gateway) error {
	return gateway.Ledger.EnsureAccount(ctx, LedgerAccount{
		ID:      gateway.Config.AdminUsername,
		IsAdmin: true,
	})
}
