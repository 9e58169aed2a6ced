package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/durkcogs/linkbot/internal/config"
	"github.com/durkcogs/linkbot/internal/discord"
	"github.com/durkcogs/linkbot/internal/linker"
	"github.com/durkcogs/linkbot/internal/storage"
)

type app struct {
	ctx    context.Context
	cancel context.CancelFunc

	logConf zap.Config
	logger  *zap.Logger

	config *config.Config
	guilds *config.GuildStore

	registry   *storage.Registry
	discord    *discord.Discord
	reconciler *linker.Reconciler
}

func newApp(ctx context.Context, lcf zap.Config, log *zap.Logger) (*app, error) {
	ctx, cancel := context.WithCancel(ctx)
	a := &app{ctx: ctx, cancel: cancel, logConf: lcf, logger: log}
	var err error

	log.Debug("Loading configuration.")
	a.config, err = config.Read()
	if err != nil {
		return nil, fmt.Errorf("couldn't load configuration: %w", err)
	}

	log.Debug("Successfully loaded configuration (also switching log level.)")
	lcf.Level.SetLevel(a.config.Logging.Level)

	log.Debug("Loading per-guild settings.")
	a.guilds, err = config.LoadGuilds(a.config.Guilds.Path)
	if err != nil {
		return nil, fmt.Errorf("couldn't load per-guild settings: %w", err)
	}

	log.Debug("Initializing connection registry.")
	a.registry = storage.NewRegistry(log.Sugar(), a.guilds)

	log.Debug("Initializing Discord struct.")
	workflow := linker.NewWorkflow(log.Sugar())
	a.discord, err = discord.NewDiscord(ctx, log.Sugar(), a.config.Discord.Auth, a.guilds, a.registry, workflow)
	if err != nil {
		return nil, fmt.Errorf("couldn't initialize Discord struct: %w", err)
	}

	log.Debug("Initializing patron reconciler.")
	a.reconciler = linker.NewReconciler(log.Sugar(), a.config.Linker.Interval, a.guilds, a.storeSource, a.discord)

	return a, nil
}

func (a *app) storeSource(ctx context.Context, guildID int64) (linker.ReconcileStore, error) {
	pool, err := a.registry.Pool(ctx, guildID)
	if err != nil {
		return nil, err
	}
	return storage.NewStore(pool), nil
}

func (a *app) Run() error {
	a.logger.Debug("Connecting to Discord API gateway.")
	if err := a.discord.Connect(); err != nil {
		return fmt.Errorf("couldn't connect to Discord: %s", err)
	}
	defer func() {
		a.logger.Debug("Closing connection with Discord API gateway.")
		if err := a.discord.Close(); err != nil {
			a.logger.Sugar().Errorf("Couldn't close Discord: %s.", err)
		}
		a.logger.Debug("Closed connection with Discord API gateway.")
	}()
	a.logger.Debug("Successfully connected to Discord API gateway.")

	defer func() {
		a.logger.Debug("Closing guild database pools.")
		a.registry.Close()
		a.logger.Debug("Closed guild database pools.")
	}()

	go a.reconciler.Run(a.ctx)

	a.logger.Info("Launch complete. Send SIGINT to gracefully terminate.")
	<-a.ctx.Done()
	a.logger.Info("SIGINT received, terminating.")

	return a.ctx.Err()
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, os.Kill)
	defer cancel()

	lcf := zap.NewDevelopmentConfig() // to later switch level without reallocation
	lcf.Level.SetLevel(zapcore.DebugLevel)
	lcf.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	lcf.DisableCaller = true
	log, _ := lcf.Build()

	log.Info("Initializing application.")
	a, err := newApp(ctx, lcf, log)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			log.Sugar().Fatalf("Couldn't initialize application: %s.", err)
		}

		return
	}

	log.Debug("Initialization tasks complete, continuing with launch.")
	if err := a.Run(); err != nil {
		if !errors.Is(err, context.Canceled) {
			log.Sugar().Fatalf("Application crashed: %s.", err)
		}
	}
}
