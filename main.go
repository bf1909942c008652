package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/justinas/alice"
	"github.com/rs/zerolog/log"

	"zapdesk/config"
	"zapdesk/internal/adapters/ai"
	"zapdesk/internal/adapters/channel"
	"zapdesk/internal/adapters/push"
	"zapdesk/internal/adapters/transcribe"
	"zapdesk/internal/db"
	"zapdesk/internal/handlers"
	"zapdesk/internal/queue"
	"zapdesk/internal/services"
	"zapdesk/internal/storage"
	"zapdesk/internal/store"
	"zapdesk/pkg/logger"
)

func main() {
	logger.InitLogger()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	conn, err := db.Init(cfg.DBDriver, cfg.DBURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer conn.Close()

	st := store.New(conn)

	// Optional collaborators degrade to nil; the services treat a missing
	// collaborator as that capability being off.
	var uploader storage.Uploader
	if cfg.S3Enabled {
		s3up, err := storage.NewS3Uploader(storage.Config{
			Endpoint:  cfg.S3Endpoint,
			Region:    cfg.S3Region,
			Bucket:    cfg.S3Bucket,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			PublicURL: cfg.S3PublicURL,
			PathStyle: cfg.S3PathStyle,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize S3 uploader")
		}
		uploader = s3up
	} else {
		log.Warn().Msg("Object storage not configured, media and picture mirroring disabled")
	}

	var channelClient *channel.Client
	if cfg.ChannelAPIURL != "" {
		channelClient, err = channel.NewClient(cfg.ChannelAPIURL)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize channel client")
		}
	} else {
		log.Warn().Msg("CHANNEL_API_URL not set, media downloads disabled")
	}

	var completer services.Completer
	if cfg.OpenAIKey != "" {
		aiClient, err := ai.New(ai.Config{APIKey: cfg.OpenAIKey, BaseURL: cfg.OpenAIBaseURL, Model: cfg.OpenAIModel})
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize AI client")
		}
		completer = aiClient
	}

	var pushSender services.PushSender
	if cfg.PushGatewayURL != "" {
		pushClient, err := push.NewClient(cfg.PushGatewayURL, cfg.PushGatewayToken)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize push client")
		}
		pushSender = pushClient
	}

	var transcriber services.Transcriber
	if cfg.TranscriptionURL != "" {
		tc, err := transcribe.NewClient(cfg.TranscriptionURL)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize transcription client")
		}
		transcriber = tc
	}

	mirror, err := queue.NewPublisher(cfg.RabbitURL, cfg.RabbitQueue, cfg.RabbitQueuePrefix)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to RabbitMQ")
	}
	defer mirror.Close()

	var pictures services.PictureFetcher
	if channelClient != nil {
		pictures = channelClient
	}
	identity := services.NewIdentityService(st, pictures, uploader)
	conversations := services.NewConversationService(st)

	var media *services.MediaService
	if channelClient != nil && uploader != nil {
		media = services.NewMediaService(channelClient, uploader)
	}
	messages := services.NewMessageService(st, media)

	dispatcher := services.NewDispatcher(4, 15*time.Second)
	defer dispatcher.Close()

	var analyzer services.Analyzer
	if completer != nil {
		analyzer = services.NewConversationAnalyzer(st, completer)
	}
	sideEffects := services.NewSideEffects(
		st,
		dispatcher,
		services.NewNpsService(st, completer),
		services.NewNotifyService(st, pushSender),
		transcriber,
		analyzer,
		mirror,
	)
	forwarding := services.NewForwardingService(st)
	status := services.NewStatusService(st)

	eventsHandler := handlers.NewEventsHandler(st, identity, conversations, messages, sideEffects, forwarding)
	statusHandler := handlers.NewStatusHandler(status)
	healthHandler := handlers.NewHealthHandler(conn)

	mw := handlers.NewMiddleware(cfg.WebhookSecret)
	base := alice.New(mw.Recover, mw.ClientIP)

	router := mux.NewRouter()
	router.Handle("/webhooks/events",
		base.Append(mw.RateLimit("messages", cfg.MessageRateLimit, cfg.RateWindow), mw.CaptureBody, mw.VerifySignature).
			ThenFunc(eventsHandler.Handle)).Methods(http.MethodPost)
	router.Handle("/webhooks/status",
		base.Append(mw.RateLimit("status", cfg.StatusRateLimit, cfg.RateWindow), mw.CaptureBody, mw.VerifySignature).
			ThenFunc(statusHandler.Handle)).Methods(http.MethodPost)
	router.Handle("/health", base.ThenFunc(healthHandler.Handle)).Methods(http.MethodGet)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.Port).Msg("Webhook server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Info().Msg("Shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Graceful shutdown failed")
	}
	dispatcher.Drain()
}
