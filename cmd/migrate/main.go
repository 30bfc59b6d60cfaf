package main

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/bidwin/auction-core/internal/shared/config"
	"github.com/bidwin/auction-core/internal/shared/db"
	"github.com/bidwin/auction-core/internal/shared/logger"
	"github.com/bidwin/auction-core/migrations"
)

func main() {
	cfg := config.Load()
	if cfg.ServiceName == "" {
		cfg.ServiceName = "migrate"
	}
	log, err := logger.New(cfg.ServiceName, cfg.Env, cfg.LogLevel)
	if err != nil {
		panic(fmt.Errorf("logger init: %w", err))
	}
	defer log.Sync()

	pg, err := db.ConnectPostgres(cfg.PostgresDSN)
	if err != nil {
		log.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	// diretório em disco tem precedência; sem ele, usa os arquivos embutidos no binário
	var src fs.FS = migrations.FS
	if st, err := os.Stat(cfg.MigrationsPath); err == nil && st.IsDir() {
		src = os.DirFS(cfg.MigrationsPath)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	n, err := db.NewMigrator(pg, src, log).Up(ctx)
	if err != nil {
		log.Fatal("migration failed", zap.Error(err))
	}
	log.Info("migrations applied", zap.Int("count", n))
}
