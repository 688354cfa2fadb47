package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"closeus-backend/internal/config"
	"closeus-backend/internal/database"
	"closeus-backend/internal/handlers"
	"closeus-backend/internal/middleware"
	"closeus-backend/internal/repository"
	"closeus-backend/internal/services"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

const devPartnerTickInterval = time.Minute

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP and WebSocket server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		return serve(cfg)
	},
}

// app holds the wired services shared by the HTTP routes
type app struct {
	tokens    *services.TokenService
	hub       *services.WSHub
	notifier  *services.Notifier
	users     *services.UserService
	pairs     *services.PairService
	questions *services.DailyQuestionService
	pool      *services.QuestionPoolService
	messages  *services.MessageService
	media     *services.MediaService
	features  *services.FeatureService
	db        handlers.Pinger
}

func serve(cfg *config.Config) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := database.Connect(ctx, cfg.Database.DSN())
	if err != nil {
		return err
	}
	defer db.Close()
	log.Info().Msg("Database connection established")

	userRepo := repository.NewUserRepository(db)
	coupleRepo := repository.NewCoupleRepository(db)
	questionRepo := repository.NewQuestionRepository(db)
	answerRepo := repository.NewAnswerRepository(db)
	messageRepo := repository.NewMessageRepository(db)
	featureRepo := repository.NewFeatureFlagRepository(db)

	var pusher services.Pusher = services.NoopPusher{}
	if cfg.APNs.KeyPath != "" {
		apns, err := services.NewAPNsPusher(cfg.APNs.KeyPath, cfg.APNs.KeyID, cfg.APNs.TeamID, cfg.APNs.Topic, cfg.APNs.Production)
		if err != nil {
			return fmt.Errorf("failed to create APNs client: %w", err)
		}
		pusher = apns
	} else {
		log.Warn().Msg("APNs is not configured, push notifications are disabled")
	}

	hub := services.NewWSHub()
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		broadcaster, err := services.NewRedisBroadcaster(ctx, rdb, hub.Deliver)
		if err != nil {
			return err
		}
		hub.SetBroadcaster(broadcaster)
		log.Info().Str("addr", cfg.Redis.Addr).Msg("Room events fan out through Redis")
	}
	defer hub.Close()

	loc, err := cfg.Questions.Location()
	if err != nil {
		return err
	}

	a := &app{
		tokens:   services.NewTokenService(cfg.JWT.Secret, cfg.JWT.AccessTTL, cfg.JWT.RefreshTTL),
		hub:      hub,
		notifier: services.NewNotifier(userRepo, pusher),
		features: services.NewFeatureService(featureRepo),
		db:       db,
	}
	a.users = services.NewUserService(userRepo, coupleRepo, a.tokens, cfg.Presence.Window)
	a.pairs = services.NewPairService(coupleRepo, userRepo, cfg.Pairing.KeyTTL)
	a.questions = services.NewDailyQuestionService(coupleRepo, questionRepo, answerRepo, a.notifier, loc)
	a.pool = services.NewQuestionPoolService(questionRepo,
		services.NewChatCompletionGenerator(cfg.Questions.AIEndpoint, cfg.Questions.AIModel, cfg.Questions.AIAPIKey),
		cfg.Questions.Retention, cfg.Questions.DailyBatch)
	a.messages = services.NewMessageService(messageRepo, coupleRepo, userRepo, hub, a.notifier, cfg.Presence.Window)
	a.media, err = services.NewMediaService(ctx, coupleRepo,
		cfg.AWS.Region, cfg.AWS.S3Bucket, cfg.AWS.AccessKey, cfg.AWS.SecretKey, cfg.AWS.Endpoint)
	if err != nil {
		return fmt.Errorf("failed to create media service: %w", err)
	}

	tasks := []*services.RepeatedTask{
		services.NewRepeatedTask("question-pool", cfg.Questions.RefreshInterval, func(ctx context.Context) {
			if _, err := a.pool.Refresh(ctx); err != nil {
				log.Error().Err(err).Msg("Failed to refresh question pool")
			}
		}),
	}

	var dev *services.DevPartner
	if cfg.DevPartner.Enabled {
		dev = services.NewDevPartner(ctx, userRepo, a.messages, cfg.DevPartner.ReplyDelay, cfg.DevPartner.Reply)
		a.messages.SetResponder(dev)
		tasks = append(tasks, services.NewRepeatedTask("dev-partner", devPartnerTickInterval, dev.Tick))
		log.Warn().Msg("Dev partner is enabled")
	}

	for _, task := range tasks {
		task.Start(ctx)
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      newRouter(a),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().
			Str("host", cfg.Server.Host).
			Int("port", cfg.Server.Port).
			Msg("Starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	}

	log.Info().Msg("Shutting down server...")

	for _, task := range tasks {
		task.Stop()
	}
	cancel()
	if dev != nil {
		dev.Wait()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	// Hijacked WebSocket connections are not tracked by Shutdown.
	hub.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
	return nil
}

func newRouter(a *app) http.Handler {
	userHandler := handlers.NewUserHandler(a.users)
	pairHandler := handlers.NewPairHandler(a.pairs, a.hub, a.notifier)
	questionHandler := handlers.NewQuestionHandler(a.questions)
	messageHandler := handlers.NewMessageHandler(a.messages, a.media)
	featureHandler := handlers.NewFeatureHandler(a.features)
	wsHandler := handlers.NewWebSocketHandler(a.hub, a.tokens, a.pairs, a.users, a.messages)

	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(corsMiddleware)

	r.Get("/healthz", handlers.Healthz)
	r.Get("/readyz", handlers.Readyz(a.db))

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/login", userHandler.Login)
		r.Post("/auth/refresh", userHandler.Refresh)

		r.Group(func(r chi.Router) {
			r.Use(middleware.AuthMiddleware(a.tokens))

			r.Get("/users/me", userHandler.Me)
			r.Put("/users/me", userHandler.UpdateMe)
			r.Post("/users/me/onboarding", userHandler.Onboarding)
			r.Put("/users/me/push-token", userHandler.PushToken)
			r.Post("/users/me/heartbeat", userHandler.Heartbeat)
			r.Get("/users/partner", userHandler.Partner)

			r.Post("/couples/create-key", pairHandler.CreateKey)
			r.Post("/couples/refresh-key", pairHandler.RefreshKey)
			r.Post("/couples/pair", pairHandler.Pair)
			r.Get("/couples/check-pairing-status", pairHandler.CheckStatus)
			r.Get("/couples/me", pairHandler.GetCouple)

			r.Get("/questions/daily", questionHandler.Daily)
			r.Get("/questions/daily/history", questionHandler.History)
			r.Post("/questions/daily/{question_id}/answer", questionHandler.Answer)
			r.Delete("/questions/daily/{question_id}/answer", questionHandler.DeleteAnswer)
			r.Get("/questions/categories", questionHandler.Categories)

			r.Get("/messages", messageHandler.List)
			r.Post("/messages", messageHandler.Send)
			r.Post("/messages/read", messageHandler.MarkRead)
			r.Post("/messages/media/upload-url", messageHandler.UploadURL)

			r.Get("/features", featureHandler.List)
		})
	})

	r.Get("/ws", wsHandler.HandleWebSocket)

	return r
}
