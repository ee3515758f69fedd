// cmd/server/main.go
package main

import (
	"context"
	"log"
	"net/http"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"

	"github.com/mfigueroa/quizparty/internal/auth"
	"github.com/mfigueroa/quizparty/internal/config"
	"github.com/mfigueroa/quizparty/internal/database"
	"github.com/mfigueroa/quizparty/internal/handlers"
	"github.com/mfigueroa/quizparty/internal/journal"
	"github.com/mfigueroa/quizparty/internal/match"
	"github.com/mfigueroa/quizparty/internal/middleware"
	"github.com/mfigueroa/quizparty/internal/registry"
	"github.com/mfigueroa/quizparty/internal/router"
)

func main() {
	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel)

	cfgPath := os.Getenv("CONFIG_FILE")
	if cfgPath == "" {
		cfgPath = "config.yaml"
	}
	cfg, err := config.LoadAndValidate(cfgPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	auth.Init()

	ctx := context.Background()

	pool, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer pool.Close()
	participants := &database.ParticipantDB{Pool: pool}
	if err := participants.EnsureSchema(ctx); err != nil {
		log.Fatalf("database: %v", err)
	}

	source := match.NewStaticSource(match.DefaultQuestions())
	if cfg.Match.QuestionFile != "" {
		source, err = match.LoadQuestionFile(cfg.Match.QuestionFile)
		if err != nil {
			log.Fatalf("questions: %v", err)
		}
	}

	reg := registry.New(logger)

	mcfg := match.ManagerConfig{
		Registry:     reg,
		Source:       source,
		Participants: participants,
		GraceDelay:   cfg.Match.GraceDelay.Std(),
		Retention:    cfg.Match.Retention.Std(),
		Logger:       logger,
	}
	if cfg.Redis.Enabled {
		pub, err := journal.Connect(ctx, cfg.Redis.Addr, cfg.Redis.Queue, logger)
		if err != nil {
			log.Fatalf("journal: %v", err)
		}
		defer pub.Close()
		mcfg.Journal = pub.Record
	}

	manager := match.NewManager(mcfg)
	manager.SetBroadcast(handlers.NewBroadcaster(reg, logger))
	rt := router.New(manager, logger)

	mux := http.NewServeMux()
	mux.Handle("/ws", middleware.LogMiddleware(logger)(http.HandlerFunc(
		handlers.WSHandler(logger, reg, rt),
	)))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	addr := cfg.Server.Addr
	if port := os.Getenv("PORT"); port != "" {
		addr = ":" + port
	}
	logger.Infof("Running on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Fatalf("server exited: %v", err)
	}
}
