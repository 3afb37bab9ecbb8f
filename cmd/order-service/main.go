package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/vfoody/internal/app"
	"github.com/vladislavdragonenkov/vfoody/internal/version"
)

// readConfig читает VFOODY_* и логирует отброшенные значения.
func readConfig(lookup app.EnvLookup) app.Config {
	cfg, warnings := app.ReadConfig(lookup)
	app.ConfigureLogger(cfg)
	for _, w := range warnings {
		log.WithError(w).Warn("некорректное значение переменной окружения, используется значение по умолчанию")
	}
	return cfg
}

func main() {
	cfg := readConfig(os.LookupEnv)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.WithFields(log.Fields{
		"version":       version.String(),
		"http_addr":     cfg.HTTPAddr,
		"metrics_addr":  cfg.MetricsAddr,
		"storage":       cfg.StorageDriver,
		"payments":      cfg.PaymentProvider,
		"notifications": cfg.NotificationProvider,
	}).Info("запускаем order-service")

	if err := app.Run(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Fatal("приложение завершилось с ошибкой")
	}

	log.Info("order-service остановлен")
}
