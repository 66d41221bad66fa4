package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/wp-composer/package-bridge/internal/archiver"
	"github.com/wp-composer/package-bridge/internal/authn"
	"github.com/wp-composer/package-bridge/internal/config"
	"github.com/wp-composer/package-bridge/internal/packages"
	"github.com/wp-composer/package-bridge/internal/storage"
	"github.com/wp-composer/package-bridge/internal/transform"
	"golang.org/x/sync/errgroup"
)

var version = "dev"

type env struct {
	log         *logrus.Logger
	cfg         *config.ServerConfig
	packages    packages.Packages
	storage     storage.Storage
	builder     *archiver.Builder
	transformer *transform.Transformer
}

func setupEnv(ctx context.Context, log *logrus.Logger) (*env, error) {
	cfg, err := config.NewServerConfigFromEnv()
	if err != nil {
		return nil, err
	}
	cfg.Version = version

	pkgs, err := packages.LoadManifest(cfg.ManifestPath)
	if err != nil {
		return nil, err
	}
	pkgs = pkgs.Whitelisted(cfg.PackageWhitelist)
	if cfg.GitHubToken != "" {
		if err := packages.ResolveAll(ctx, cfg.CreateGitHubClient(), pkgs, 4); err != nil {
			return nil, err
		}
	}

	var st storage.Storage
	if cfg.UseS3() {
		s3Client, err := cfg.CreateS3Client()
		if err != nil {
			return nil, err
		}
		st = storage.NewS3(log, s3Client, cfg.S3Bucket, cfg.S3Prefix)
	} else {
		st, err = storage.NewLocal(log, cfg.StorageDir)
		if err != nil {
			return nil, err
		}
	}

	workDir := cfg.WorkDir
	if workDir == "" {
		workDir, err = os.MkdirTemp("", "package-bridge-*")
		if err != nil {
			return nil, err
		}
	}
	builder := archiver.NewBuilder(log, archiver.New(log, workDir), st, nil)
	transformer, err := transform.New(log, st, builder, transform.Options{
		Vendor:  cfg.Vendor,
		BaseURL: cfg.PublicURL,
		Strict:  cfg.StrictIndex,
	})
	if err != nil {
		return nil, err
	}
	return &env{
		log:         log,
		cfg:         cfg,
		packages:    pkgs,
		storage:     st,
		builder:     builder,
		transformer: transformer,
	}, nil
}

func newPrebuildCmd(log *logrus.Logger) *cobra.Command {
	var concurrency int
	cmd := &cobra.Command{
		Use:   "prebuild",
		Short: "Build every release artifact ahead of the first request",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := setupEnv(cmd.Context(), log)
			if err != nil {
				return err
			}
			g, ctx := errgroup.WithContext(cmd.Context())
			g.SetLimit(concurrency)
			for _, p := range e.packages {
				for _, release := range p.Releases {
					release := release
					g.Go(func() error {
						log.Infof("building %s", release.File())
						return e.builder.Ensure(ctx, release)
					})
				}
			}
			return g.Wait()
		},
	}
	cmd.Flags().IntVarP(&concurrency, "concurrency", "c", 4, "number of parallel builds")
	return cmd
}

func newIndexCmd(log *logrus.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "index",
		Short: "Print the repository index document",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := setupEnv(cmd.Context(), log)
			if err != nil {
				return err
			}
			repo, err := e.transformer.BuildIndex(cmd.Context(), e.packages)
			if err != nil {
				return err
			}
			out, err := repo.MarshalJSONIndent()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}
}

func newKeysCmd(log *logrus.Logger) *cobra.Command {
	keysCmd := &cobra.Command{
		Use:   "keys",
		Short: "Manage API keys",
	}

	openRepo := func() (*authn.FileRepository, error) {
		cfg, err := config.NewServerConfigFromEnv()
		if err != nil {
			return nil, err
		}
		return authn.NewFileRepository(cfg.APIKeyPath)
	}

	var user, name string
	addCmd := &cobra.Command{
		Use:   "add",
		Short: "Create a new API key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			repo, err := openRepo()
			if err != nil {
				return err
			}
			key, err := repo.Add(user, name)
			if err != nil {
				return err
			}
			log.Infof("created API key for %s", key.User)
			fmt.Fprintln(cmd.OutOrStdout(), key.Token)
			return nil
		},
	}
	addCmd.Flags().StringVarP(&user, "user", "u", "", "owning user")
	addCmd.Flags().StringVarP(&name, "name", "n", "", "key description")
	_ = addCmd.MarkFlagRequired("user")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List API keys",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			repo, err := openRepo()
			if err != nil {
				return err
			}
			for _, key := range repo.List() {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\t%s\n", key.Token, key.User, key.Name, key.CreatedAt.Format("2006-01-02"))
			}
			return nil
		},
	}

	revokeCmd := &cobra.Command{
		Use:   "revoke <token>",
		Short: "Revoke an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, err := openRepo()
			if err != nil {
				return err
			}
			removed, err := repo.Revoke(args[0])
			if err != nil {
				return err
			}
			if !removed {
				return fmt.Errorf("no key with that token")
			}
			log.Info("key revoked")
			return nil
		},
	}

	keysCmd.AddCommand(addCmd, listCmd, revokeCmd)
	return keysCmd
}

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	rootCmd := &cobra.Command{
		Use:     "package-bridge-ctl",
		Short:   "Administer the package-bridge composer repository",
		Version: version,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
	}
	rootCmd.AddCommand(newPrebuildCmd(log), newIndexCmd(log), newKeysCmd(log))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		log.Errorf("ERROR: %v", err)
		os.Exit(1)
	}
}
