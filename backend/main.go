package main

import (
	"log"
	"log/slog"
	"net/http"
	"os"

	"github.com/joho/godotenv"

	"jobjunction/m/internal/api"
	"jobjunction/m/internal/config"
	"jobjunction/m/internal/database"
	"jobjunction/m/internal/migrations"
	"jobjunction/m/internal/notify"
	"jobjunction/m/internal/seed"
	"jobjunction/m/internal/service"
	"jobjunction/m/internal/upload"
)

func main() {
	_ = godotenv.Load()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	cfg := config.Load()
	db := database.Connect(cfg.DatabaseDSN)
	defer db.Close()

	migrations.Run(db)
	seed.LoadJobs(db, cfg.SeedFile)

	var mailer notify.Mailer
	if cfg.SMTP.Enabled() {
		smtp, err := notify.NewSMTPMailer(cfg.SMTP)
		if err != nil {
			log.Fatalf("mailer setup failed: %v", err)
		}
		mailer = smtp
	} else {
		logger.Warn("SMTP not configured, application notifications disabled")
	}

	dispatcher := notify.NewDispatcher(mailer, logger)
	dispatcher.Start()
	defer dispatcher.Stop()

	uploads, err := upload.NewStore(cfg.UploadDir, cfg.MaxUploadBytes)
	if err != nil {
		log.Fatalf("upload store setup failed: %v", err)
	}

	svc := service.New(db, dispatcher)
	handler := api.New(svc, uploads, cfg.Secret, cfg.PublicDir)

	logger.Info("Job Junction server starting", "port", cfg.HTTPPort)
	if err := http.ListenAndServe(":"+cfg.HTTPPort, handler.Router()); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
