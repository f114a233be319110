package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/crypto/bcrypt"

	"github.com/petrachuk/avp-authcore/config"
	"github.com/petrachuk/avp-authcore/db"
	"github.com/petrachuk/avp-authcore/internal/auth/handler"
	"github.com/petrachuk/avp-authcore/internal/auth/password"
	repo "github.com/petrachuk/avp-authcore/internal/auth/repository/postgres"
	"github.com/petrachuk/avp-authcore/internal/auth/service"
	"github.com/petrachuk/avp-authcore/internal/i18n"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	if err := db.RunMigrations(ctx, cfg.DBURL); err != nil {
		return err
	}

	pool, err := db.NewPostgresPool(ctx, cfg.DBURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	store := repo.NewRepository(pool)

	tokenService, err := service.NewTokenService(service.TokenConfig{
		Issuer:      cfg.Issuer,
		Audience:    cfg.Audience,
		ActiveKeyID: cfg.ActiveKeyID,
		Keys:        cfg.SigningKeys,
		Leeway:      cfg.ClockSkew,
	})
	if err != nil {
		return err
	}

	hasher := password.NewHasher(bcrypt.DefaultCost)
	policy := password.NewPolicy(cfg.PasswordMinLength, cfg.PasswordMinClasses)
	authService := service.NewAuthService(store, hasher, policy, tokenService, cfg, logger)

	localizer, err := i18n.NewLocalizer()
	if err != nil {
		return err
	}

	authHandler := handler.NewAuthHandler(authService, tokenService, localizer)

	app := fiber.New()
	handler.RegisterRoutes(app, authHandler)

	logger.Info("listening", "port", cfg.Port, "env", cfg.Env)
	return app.Listen(":" + cfg.Port)
}
