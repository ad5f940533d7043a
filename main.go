package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"converse-backend/internal/config"
	"converse-backend/internal/database"
	"converse-backend/internal/server"
	"converse-backend/internal/snowflake"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func setupLogger(cfg *config.Config) (*zap.SugaredLogger, error) {
	level, err := zap.ParseAtomicLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	zapConfig := zap.NewProductionConfig()
	zapConfig.Level = level
	if cfg.LogToFile {
		zapConfig.OutputPaths = []string{"app.log", "stdout"}
	}

	logger, err := zapConfig.Build()
	if err != nil {
		return nil, err
	}
	return logger.Sugar(), nil
}

func setupRedis(ctx context.Context, cfg *config.Config) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddress,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, err
	}
	return rdb, nil
}

// reconcile audits the duplicated references once and exits.
func reconcile(ctx context.Context, sugar *zap.SugaredLogger, store *database.Store, repair bool) error {
	report, err := store.Reconcile(ctx, repair)
	if err != nil {
		return err
	}

	if report.Clean() {
		sugar.Info("References are consistent")
		return nil
	}

	sugar.Warnw("Inconsistent references found",
		"staleListEntries", len(report.StaleListEntries),
		"unlistedMessages", len(report.UnlistedMessages),
		"danglingMemberships", len(report.DanglingMemberships),
		"ownersNotMembers", len(report.OwnersNotMembers),
		"repaired", repair,
	)
	return nil
}

func main() {
	configPath := flag.String("config", "config.json", "path of the JSON config file")
	runReconcile := flag.Bool("reconcile", false, "check the stored references and exit")
	repair := flag.Bool("repair", false, "with -reconcile, fix what was found")
	flag.Parse()

	fmt.Println("Reading config file...")
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}

	fmt.Println("Setting up logger...")
	sugar, err := setupLogger(&cfg)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	defer sugar.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := snowflake.Setup(cfg.SnowflakeWorkerID); err != nil {
		sugar.Fatal(err)
	}

	store, err := database.Setup(ctx, sugar, &cfg)
	if err != nil {
		sugar.Fatal(err)
	}
	defer store.Close()

	if *runReconcile {
		if err := reconcile(ctx, sugar, store, *repair); err != nil {
			sugar.Fatal(err)
		}
		return
	}

	var redisClient *redis.Client
	if !cfg.SelfContained {
		sugar.Info("Connecting to redis...")
		redisClient, err = setupRedis(ctx, &cfg)
		if err != nil {
			sugar.Fatal(err)
		}
		defer redisClient.Close()
	}

	httpProtocol := "http"
	if cfg.IsHttps() {
		httpProtocol = "https"
	}
	fullAddress := fmt.Sprintf("%s://%s:%s", httpProtocol, cfg.Address, cfg.Port)

	s, err := server.New(sugar, &cfg, store, redisClient, server.Options{
		MeetingLinkBase: fullAddress + "/meet",
	})
	if err != nil {
		sugar.Fatal(err)
	}
	defer s.Close()

	go s.Run(ctx)

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%s", cfg.Address, cfg.Port),
		Handler:           s.Handler,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		sugar.Infof("Server is running on %s", fullAddress)

		var err error
		if cfg.IsHttps() {
			err = srv.ListenAndServeTLS(cfg.TlsCert, cfg.TlsKey)
		} else {
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			sugar.Fatal(err)
		}
	}()

	<-ctx.Done()
	sugar.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		sugar.Errorf("Server forced to shut down: %v", err)
	}
	sugar.Info("Server stopped")
}
