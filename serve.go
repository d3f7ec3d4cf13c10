package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	httpadapter "github.com/satriahrh/cocoa-fruit/gateway/adapters/http"
	"github.com/satriahrh/cocoa-fruit/gateway/adapters/hasher"
	"github.com/satriahrh/cocoa-fruit/gateway/adapters/llm"
	"github.com/satriahrh/cocoa-fruit/gateway/adapters/memstore"
	"github.com/satriahrh/cocoa-fruit/gateway/adapters/message_broker"
	"github.com/satriahrh/cocoa-fruit/gateway/adapters/oauth"
	"github.com/satriahrh/cocoa-fruit/gateway/adapters/postgres"
	"github.com/satriahrh/cocoa-fruit/gateway/adapters/realtime"
	"github.com/satriahrh/cocoa-fruit/gateway/adapters/speech"
	"github.com/satriahrh/cocoa-fruit/gateway/adapters/token"
	"github.com/satriahrh/cocoa-fruit/gateway/adapters/tts"
	"github.com/satriahrh/cocoa-fruit/gateway/adapters/websocket"
	"github.com/satriahrh/cocoa-fruit/gateway/config"
	"github.com/satriahrh/cocoa-fruit/gateway/domain"
	"github.com/satriahrh/cocoa-fruit/gateway/usecase"
	"github.com/satriahrh/cocoa-fruit/gateway/utils/log"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and realtime gateway",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath(cmd))
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid config: %w", err)
			}
			if err := log.Configure(cfg.Log.Debug, cfg.Log.Level); err != nil {
				return err
			}
			return runServe(cfg)
		},
	}
}

func runServe(cfg config.Config) error {
	app := fx.New(
		fx.Supply(cfg),
		fx.Provide(
			log.L,
			provideStores,
			provideBroker,
			provideRecorder,
			provideGemini,
			provideTTS,
			provideSpeech,
			provideLive,
			providePolicy,
			provideIssuer,
			provideOAuth,
			providePasswordHasher,
			hasher.New,
			provideGenerationService,
			provideAuthService,
			usecase.NewConversationService,
			usecase.NewRealtimeService,
			provideRealtimeServer,
			provideRouter,
		),
		fx.Invoke(
			startHistoryWorker,
			startServer,
		),
		fx.WithLogger(func(logger *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: logger.With(zap.String("component", "fx"))}
		}),
	)
	if err := app.Err(); err != nil {
		return err
	}
	app.Run()
	return nil
}

type stores struct {
	fx.Out

	Users         domain.UserStore
	Conversations domain.ConversationStore
}

// provideStores uses Postgres when a DSN is configured and falls back to
// process memory otherwise.
func provideStores(lc fx.Lifecycle, cfg config.Config, logger *zap.Logger) (stores, error) {
	if cfg.Postgres.DSN == "" {
		logger.Warn("no postgres dsn configured; users and conversations are kept in memory")
		s := memstore.New()
		return stores{Users: s, Conversations: s}, nil
	}
	if cfg.Postgres.AutoMigrate {
		if err := postgres.Migrate(cfg.Postgres.DSN, postgres.Up); err != nil {
			return stores{}, err
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	pool, err := postgres.Open(ctx, postgres.Config{
		DSN:             cfg.Postgres.DSN,
		MaxConns:        cfg.Postgres.MaxConns,
		ConnMaxLifetime: cfg.Postgres.Lifetime(),
	})
	if err != nil {
		return stores{}, fmt.Errorf("db connect: %w", err)
	}
	lc.Append(fx.Hook{OnStop: func(context.Context) error { pool.Close(); return nil }})

	s := postgres.NewStore(pool)
	return stores{Users: s, Conversations: s}, nil
}

func provideBroker(lc fx.Lifecycle, cfg config.Config) domain.MessageBroker {
	broker := message_broker.NewChannelMessageBroker(cfg.History.Buffer)
	lc.Append(fx.Hook{OnStop: func(context.Context) error { return broker.Close() }})
	return broker
}

func provideRecorder(broker domain.MessageBroker) domain.TurnRecorder {
	return usecase.NewBrokerRecorder(broker)
}

func provideGemini(cfg config.Config, h domain.Hasher) (*llm.GeminiClient, error) {
	return llm.NewGeminiClient(context.Background(), llm.GeminiConfig{
		APIKey:       cfg.Gemini.APIKey,
		BaseURL:      cfg.Gemini.BaseURL,
		FetchTimeout: 15 * time.Second,
	}, h)
}

func provideTTS(lc fx.Lifecycle, cfg config.Config) (*tts.GoogleTTS, error) {
	client, err := tts.NewGoogleTTS(context.Background(), tts.Config{
		CredentialsFile: cfg.Cloud.CredentialsFile,
		APIKey:          cfg.Cloud.APIKey,
	})
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{OnStop: func(context.Context) error { return client.Close() }})
	return client, nil
}

func provideSpeech(lc fx.Lifecycle, cfg config.Config) (*speech.GoogleSpeech, error) {
	client, err := speech.NewGoogleSpeech(context.Background(), speech.Config{
		CredentialsFile: cfg.Cloud.CredentialsFile,
		APIKey:          cfg.Cloud.APIKey,
		LanguageCode:    cfg.Cloud.LanguageCode,
		StreamModel:     cfg.Models.Transcription,
	})
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{OnStop: func(context.Context) error { return client.Close() }})
	return client, nil
}

func provideLive(cfg config.Config) (domain.RealtimeConnector, error) {
	return realtime.NewGeminiLive(realtime.Config{
		APIKey:           cfg.Gemini.APIKey,
		Model:            cfg.Gemini.LiveModel,
		BaseURL:          cfg.Gemini.LiveURL,
		HandshakeTimeout: 10 * time.Second,
	})
}

func providePolicy(cfg config.Config) *usecase.FallbackPolicy {
	chain := func(c config.ChainConfig) usecase.ModelDefaults {
		return usecase.ModelDefaults{Default: c.Default, Fallbacks: c.Fallbacks}
	}
	return usecase.NewFallbackPolicy(map[domain.Capability]usecase.ModelDefaults{
		domain.CapabilityText:          chain(cfg.Models.Text),
		domain.CapabilityVision:        chain(cfg.Models.Vision),
		domain.CapabilityImage:         chain(cfg.Models.Image),
		domain.CapabilitySpeech:        {Default: cfg.Models.Speech},
		domain.CapabilityTranscription: {Default: cfg.Models.Transcription},
	})
}

func provideIssuer(cfg config.Config) (*token.JWTIssuer, error) {
	return token.NewJWTIssuer(cfg.Auth.JWTSecret)
}

// provideOAuth yields a nil provider when Google login is not configured.
func provideOAuth(cfg config.Config) (domain.OAuthProvider, error) {
	g, err := oauth.NewGoogle(oauth.GoogleConfig{
		ClientID:     cfg.Google.ClientID,
		ClientSecret: cfg.Google.ClientSecret,
		RedirectURL:  cfg.Google.RedirectURL,
	})
	if err != nil || g == nil {
		return nil, err
	}
	return g, nil
}

func providePasswordHasher(cfg config.Config) domain.PasswordHasher {
	return hasher.NewBcrypt(cfg.Auth.BcryptCost)
}

func provideGenerationService(gemini *llm.GeminiClient, voice *tts.GoogleTTS, stt *speech.GoogleSpeech, policy *usecase.FallbackPolicy, recorder domain.TurnRecorder) *usecase.GenerationService {
	return usecase.NewGenerationService(usecase.Providers{
		Chat:        gemini,
		Streamer:    gemini,
		Vision:      gemini,
		Images:      gemini,
		Speech:      voice,
		Transcriber: stt,
	}, policy, recorder)
}

func provideAuthService(users domain.UserStore, passwords domain.PasswordHasher, issuer *token.JWTIssuer, provider domain.OAuthProvider, cfg config.Config) *usecase.AuthService {
	return usecase.NewAuthService(users, passwords, issuer, provider, usecase.AuthConfig{
		SessionTTL:  cfg.Auth.SessionTTL(),
		RealtimeTTL: cfg.Auth.TicketTTL(),
	})
}

func provideRealtimeServer(lc fx.Lifecycle, auth *usecase.AuthService, sessions *usecase.RealtimeService, cfg config.Config) *websocket.Server {
	srv := websocket.NewServer(auth, sessions, websocket.ServerConfig{
		MaxSessionsPerUser: cfg.Server.MaxRealtimeSessions,
		AllowedOrigins:     cfg.Server.CORSOrigins,
	})
	lc.Append(fx.Hook{OnStop: func(context.Context) error { srv.Shutdown(); return nil }})
	return srv
}

func provideRouter(
	cfg config.Config,
	issuer *token.JWTIssuer,
	generation *usecase.GenerationService,
	auth *usecase.AuthService,
	conversations *usecase.ConversationService,
	ws *websocket.Server,
) *echo.Echo {
	return httpadapter.NewRouter(httpadapter.RouterConfig{
		CORSOrigins:          cfg.Server.CORSOrigins,
		BodyLimit:            cfg.Server.BodyLimit,
		RateLimit:            cfg.Server.RateLimit,
		MaxConcurrentStreams: cfg.Server.MaxConcurrentStreams,
	}, issuer, httpadapter.Handlers{
		AI: httpadapter.NewAIHandler(generation, auth),
		Auth: httpadapter.NewAuthHandler(auth, issuer, httpadapter.AuthHandlerConfig{
			FrontendURL:  cfg.Server.FrontendURL,
			SecureCookie: cfg.Server.SecureCookies,
		}),
		Conversations: httpadapter.NewConversationHandler(conversations),
		Health:        httpadapter.NewHealthHandler(ws.GetHub()),
		Realtime:      ws.Handler,
	})
}

// startHistoryWorker drains recorded turns into the conversation store. Its
// stop hook runs before the broker closes.
func startHistoryWorker(lc fx.Lifecycle, broker domain.MessageBroker, store domain.ConversationStore, logger *zap.Logger) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer close(done)
				if err := usecase.NewHistoryWorker(broker, store).Run(ctx); err != nil {
					logger.Error("history worker stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			select {
			case <-done:
			case <-stopCtx.Done():
			}
			return nil
		},
	})
}

func startServer(lc fx.Lifecycle, e *echo.Echo, cfg config.Config, logger *zap.Logger, shutdowner fx.Shutdowner) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			logger.Info("gateway listening", zap.String("addr", cfg.Server.Addr))
			go func() {
				if err := e.Start(cfg.Server.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("server failed", zap.Error(err))
					_ = shutdowner.Shutdown()
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if err := e.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server stop: %w", err)
			}
			return nil
		},
	})
}
