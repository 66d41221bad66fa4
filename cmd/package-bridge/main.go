package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/wp-composer/package-bridge/internal/archiver"
	"github.com/wp-composer/package-bridge/internal/authn"
	"github.com/wp-composer/package-bridge/internal/config"
	"github.com/wp-composer/package-bridge/internal/metrics"
	"github.com/wp-composer/package-bridge/internal/packages"
	"github.com/wp-composer/package-bridge/internal/server"
	"github.com/wp-composer/package-bridge/internal/storage"
	"github.com/wp-composer/package-bridge/internal/transform"
)

var version = "dev"

func setupLogger() *logrus.Logger {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
	return log
}

func setupStorage(log *logrus.Logger, cfg *config.ServerConfig) (storage.Storage, error) {
	if cfg.UseS3() {
		s3Client, err := cfg.CreateS3Client()
		if err != nil {
			return nil, err
		}
		log.Printf("storing artifacts in s3 bucket %s", cfg.S3Bucket)
		return storage.NewS3(log, s3Client, cfg.S3Bucket, cfg.S3Prefix), nil
	}
	log.Printf("storing artifacts in %s", cfg.StorageDir)
	return storage.NewLocal(log, cfg.StorageDir)
}

func loadPackages(ctx context.Context, log *logrus.Logger, cfg *config.ServerConfig) (packages.Packages, error) {
	pkgs, err := packages.LoadManifest(cfg.ManifestPath)
	if err != nil {
		return nil, err
	}
	pkgs = pkgs.Whitelisted(cfg.PackageWhitelist)
	log.Printf("loaded %d packages from %s", len(pkgs), cfg.ManifestPath)

	if cfg.GitHubToken != "" {
		log.Println("resolving github releases...")
		if err := packages.ResolveAll(ctx, cfg.CreateGitHubClient(), pkgs, 4); err != nil {
			return nil, err
		}
	}
	return pkgs, nil
}

func run(log *logrus.Logger) error {
	cfg, err := config.NewServerConfigFromEnv()
	if err != nil {
		return err
	}
	cfg.Version = version

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pkgs, err := loadPackages(ctx, log, cfg)
	if err != nil {
		return err
	}

	st, err := setupStorage(log, cfg)
	if err != nil {
		return err
	}

	keys, err := authn.NewFileRepository(cfg.APIKeyPath)
	if err != nil {
		return err
	}

	workDir := cfg.WorkDir
	if workDir == "" {
		workDir, err = os.MkdirTemp("", "package-bridge-*")
		if err != nil {
			return err
		}
		defer os.RemoveAll(workDir)
	}

	builder := archiver.NewBuilder(log, archiver.New(log, workDir), st, nil)
	transformer, err := transform.New(log, st, builder, transform.Options{
		Vendor:  cfg.Vendor,
		BaseURL: cfg.PublicURL,
		Strict:  cfg.StrictIndex,
	})
	if err != nil {
		return err
	}

	if !cfg.DisableMetrics {
		log.Println("starting metrics exporter...")
		exporter, err := metrics.NewExporter(metrics.ExporterOptions{ProjectID: cfg.MetricsProjectID, Stage: cfg.Stage})
		if err != nil {
			return err
		}
		defer exporter.Flush()
	}

	log.Println("starting server...")
	srv := &http.Server{
		Addr:    cfg.GetServerAddr(),
		Handler: server.New(log, pkgs, st, builder, transformer, keys, cfg),
	}
	go func() {
		log.Printf("listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			log.Error(err)
		}
	}()

	<-ctx.Done()
	stop()

	log.Println("stopping server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); errors.Is(err, context.DeadlineExceeded) {
		log.Println("closing server...")
		if closeErr := srv.Close(); closeErr != nil {
			return closeErr
		}
	} else if err != nil {
		return err
	}
	log.Println("server stopped!")
	return nil
}

func main() {
	log := setupLogger()
	log.Infof("starting package-bridge (version=%s)", version)
	if err := run(log); err != nil {
		log.Fatal(err)
	}
}
