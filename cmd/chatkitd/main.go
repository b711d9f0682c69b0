// chatkitd is a demo daemon around the chatkit engine: it connects,
// runs an initial conversation sync, and logs inbound traffic until
// interrupted.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/matheus3301/chatkit"
	"github.com/matheus3301/chatkit/config"
	"github.com/matheus3301/chatkit/lock"
	"github.com/matheus3301/chatkit/logging"
	"github.com/matheus3301/chatkit/models"
)

// Params holds the resolved command line configuration.
type Params struct {
	ConfigPath string
	UserID     string
	Token      string
	Device     string
}

func main() {
	configFlag := flag.String("config", "chatkit.toml", "path to config file")
	userFlag := flag.String("user", "", "user id")
	tokenFlag := flag.String("token", "", "auth token")
	deviceFlag := flag.String("device", "go", "device name")
	flag.Parse()

	if *userFlag == "" || *tokenFlag == "" {
		fmt.Fprintln(os.Stderr, "error: -user and -token are required")
		os.Exit(1)
	}

	app := fx.New(
		Module(Params{
			ConfigPath: *configFlag,
			UserID:     *userFlag,
			Token:      *tokenFlag,
			Device:     *deviceFlag,
		}),
	)

	app.Run()
}

// Module composes the daemon's providers and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("chatkitd",
		fx.Supply(p),
		fx.Provide(
			provideConfig,
			provideLogger,
			provideClient,
		),
		fx.Invoke(registerCacheLock, registerLifecycle),
	)
}

func provideConfig(p Params) (*config.Config, error) {
	cfg, err := config.Load(p.ConfigPath)
	if err != nil {
		if os.IsNotExist(err) {
			return config.Default(), nil
		}
		return nil, err
	}
	return cfg, nil
}

func provideLogger(cfg *config.Config) (*zap.Logger, error) {
	return logging.New(cfg.LogFile, cfg.LogLevel)
}

func provideClient(p Params, cfg *config.Config, logger *zap.Logger) (*chatkit.Client, error) {
	return chatkit.New(cfg, chatkit.Info{
		Endpoint: cfg.Endpoint,
		UserID:   p.UserID,
		Token:    p.Token,
		Device:   p.Device,
	}, logger)
}

// registerCacheLock holds an exclusive lock on the cache database for
// the daemon's lifetime so two instances never share one cache.
func registerCacheLock(lc fx.Lifecycle, cfg *config.Config) {
	if cfg.DBPath == "" || strings.HasPrefix(cfg.DBPath, "file::memory:") {
		return
	}
	var held *lock.Lock
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			l, err := lock.Acquire(cfg.DBPath)
			if err != nil {
				return err
			}
			held = l
			return nil
		},
		OnStop: func(_ context.Context) error {
			return held.Release()
		},
	})
}

func registerLifecycle(lc fx.Lifecycle, client *chatkit.Client, logger *zap.Logger) {
	client.Handlers = chatkit.Handlers{
		OnConnected: func() {
			logger.Info("connected")
			go func() {
				if err := client.SyncConversations(context.Background(), nil); err != nil {
					logger.Warn("initial sync failed", zap.Error(err))
				}
			}()
		},
		OnConnecting: func() {
			logger.Info("connecting")
		},
		OnNetBroken: func(reason string) {
			logger.Warn("connection broken", zap.String("reason", reason))
		},
		OnKickoff: func(reason string) {
			logger.Warn("kicked off", zap.String("reason", reason))
		},
		OnTokenExpired: func(reason string) {
			logger.Warn("token expired", zap.String("reason", reason))
		},
		OnTopicMessage: func(req *models.ChatRequest) bool {
			logger.Info("message",
				zap.String("topic", req.TopicID),
				zap.String("sender", req.Attendee),
				zap.Int64("seq", req.Seq))
			return true
		},
		OnConversationsUpdated: func(conversations []*models.Conversation) {
			logger.Info("conversations updated", zap.Int("count", len(conversations)))
		},
		OnConversationsRemoved: func(topicIDs []string) {
			logger.Info("conversations removed", zap.Strings("topics", topicIDs))
		},
	}

	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			return client.Connect()
		},
		OnStop: func(_ context.Context) error {
			logger.Info("shutting down")
			client.Shutdown()
			return nil
		},
	})
}
