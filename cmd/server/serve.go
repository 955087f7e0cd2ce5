package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"triage-assistant/internal/agent"
	"triage-assistant/internal/audio"
	"triage-assistant/internal/config"
	"triage-assistant/internal/persistence"
	"triage-assistant/internal/platform/logger"
	"triage-assistant/internal/platform/telegram"
	"triage-assistant/internal/report"
	"triage-assistant/internal/triage"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	log, err := logger.New(cfg.LogMode)
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 1. Infrastructure
	backend, closeBackend, err := buildBackend(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeBackend()

	// 2. Clients
	api := agent.NewOpenAIAPI(cfg.OpenAI)
	chat := agent.NewClient(api, cfg.OpenAI.ChatModel)

	var transcriber triage.Transcriber = agent.NewOpenAIWhisper(api)
	if cfg.Speech.Provider == "whisper-local" {
		transcriber = agent.NewWhisperLocal(cfg.Speech.WhisperURL)
	}

	var synth triage.Synthesizer
	if cfg.Speech.ElevenLabsAPIKey != "" {
		synth = agent.NewElevenLabs(cfg.Speech.ElevenLabsAPIKey, cfg.Speech.ElevenLabsVoiceID)
	} else {
		log.Warn("ELEVENLABS_API_KEY is not set; speech synthesis disabled")
	}

	var tg report.TelegramClient
	if cfg.Telegram.BotToken != "" {
		tg = telegram.NewClient(cfg.Telegram.BotToken)
	}
	if tg == nil || cfg.Telegram.DoctorChatID == 0 {
		log.Info("clinician delivery disabled", "reason", "TELEGRAM_BOT_TOKEN or DOCTOR_CHAT_ID not set")
	}

	// 3. Services
	reportSvc := report.NewService(tg, cfg.Telegram.DoctorChatID, log)
	svc, err := triage.NewService(triage.Deps{
		NLU:         agent.NewNLU(chat),
		Checkers:    agent.NewCheckerFactory(chat),
		Responder:   agent.NewResponder(chat),
		Translator:  agent.NewTranslator(chat),
		Transcriber: transcriber,
		Decoder:     audio.WAVDecoder{},
		Cleaner:     audio.NewCleaner(),
		Synthesizer: synth,
		Backend:     backend,
		Sink:        reportSvc,
		Log:         log,
	}, triage.Options{
		MaxSymptoms:      cfg.Context.MaxSymptoms,
		MaxAnswers:       cfg.Context.MaxAnswers,
		MaxAdviceChars:   cfg.Context.MaxAdviceChars,
		MaxPastMessages:  cfg.Context.MaxPastMessages,
		TitlePrefixChars: cfg.Persist.TitlePrefixChars,
		MemorySymptomCap: cfg.Persist.MemorySymptomCap,
		CallTimeout:      cfg.Persist.CallTimeout,
	})
	if err != nil {
		return err
	}
	sessions := triage.NewRegistry()
	handler := triage.NewHandler(svc, sessions, reportSvc, cfg.DefaultLanguage)
	go evictIdle(ctx, sessions, cfg.SessionIdle, log)

	// 4. Router
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors)
	r.Route("/api", func(r chi.Router) {
		triage.RegisterRoutes(r, handler)
	})

	srv := &http.Server{Addr: ":" + cfg.Port, Handler: r}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Info("server starting", "port", cfg.Port, "backend", backend.Enabled(), "stt", cfg.Speech.Provider)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	log.Info("server stopped")
	return nil
}

// buildBackend returns the null backend when no database is configured.
func buildBackend(ctx context.Context, cfg *config.Config, log *logger.Logger) (triage.Backend, func(), error) {
	if !cfg.BackendConfigured() {
		log.Info("DATABASE_URL not set; running without accounts or saved conversations")
		return triage.NopBackend{}, func() {}, nil
	}

	if err := persistence.Migrate(cfg.Database.MigrationsPath, cfg.Database.URL, false); err != nil {
		log.Warn("migrations not applied", "error", err)
	}
	db, err := persistence.Open(ctx, cfg.Database.URL, log)
	if err != nil {
		return nil, nil, err
	}
	closers := []func(){func() { db.Close() }}
	log.Info("connected to database")

	tokens := persistence.NewTokens(cfg.Auth.JWTSecret, cfg.Auth.AccessTTL, cfg.Auth.RefreshTTL)
	var backend triage.Backend = persistence.NewPostgres(db, tokens)

	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Warn("redis unavailable; memory stays in postgres", "error", err)
			rdb.Close()
		} else {
			backend = persistence.WithMemory(backend, persistence.NewRedisMemory(rdb, cfg.Redis.MemoryTTL), log)
			closers = append(closers, func() { rdb.Close() })
		}
	}
	return backend, closeAll(closers), nil
}

func closeAll(fns []func()) func() {
	return func() {
		for i := len(fns) - 1; i >= 0; i-- {
			fns[i]()
		}
	}
}

func evictIdle(ctx context.Context, sessions *triage.Registry, maxIdle time.Duration, log *logger.Logger) {
	if maxIdle <= 0 {
		return
	}
	t := time.NewTicker(maxIdle / 4)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := sessions.Evict(maxIdle); n > 0 {
				log.Info("evicted idle sessions", "count", n, "remaining", sessions.Len())
			}
		}
	}
}

func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization")
		if r.Method == http.MethodOptions {
			return
		}
		next.ServeHTTP(w, r)
	})
}
