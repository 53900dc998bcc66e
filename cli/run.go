package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ocfetch/fetcher/common"
	"github.com/ocfetch/fetcher/config"
	"github.com/ocfetch/fetcher/credentials"
	"github.com/ocfetch/fetcher/credentials/envprovider"
	"github.com/ocfetch/fetcher/credentials/infisical"
	"github.com/ocfetch/fetcher/fetcher"
	"github.com/ocfetch/fetcher/kv"
	"github.com/ocfetch/fetcher/kv/memstore"
	"github.com/ocfetch/fetcher/kv/rediskv"
	"github.com/ocfetch/fetcher/recipes"
	"github.com/ocfetch/fetcher/storage"
	"github.com/ocfetch/fetcher/storage/filesink"
	"github.com/ocfetch/fetcher/storage/s3sink"
	"github.com/ocfetch/fetcher/version"
)

func init() {
	RootCmd.AddCommand(runCmd)

	runCmd.Flags().String("credentials-provider", "", "credential provider: infisical|env (overrides FETCHER_CREDENTIALS_PROVIDER)")
	runCmd.Flags().String("storage", "", "storage backend: s3|file (overrides FETCHER_STORAGE_TYPE)")
	runCmd.Flags().String("kvstore", "", "kv backend: memory|redis (overrides FETCHER_KV_TYPE)")

	viper.BindPFlag("credentials_provider", runCmd.Flags().Lookup("credentials-provider"))
	viper.BindPFlag("storage", runCmd.Flags().Lookup("storage"))
	viper.BindPFlag("kvstore", runCmd.Flags().Lookup("kvstore"))
}

// runCmd is "fetcher run <config_name>": resolve config_name against the
// recipes registry, wire its shared infrastructure from FetcherConfig, and
// run the fetch to completion.
var runCmd = &cobra.Command{
	Use:   "run <config_name>",
	Short: "run one resumable fetch job to completion",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		configName := args[0]
		start := time.Now()

		cfg, err := config.LoadFetcherConfig("FETCHER")
		if err != nil {
			return fmt.Errorf("loading configuration: %w", err)
		}
		applyFlagOverrides(cfg)

		log := common.ServiceLogger("fetcher", version.GetModuleVersion())
		log.WithFields(map[string]interface{}{
			"config_name": configName,
			"kv_password": common.MaskSecret(cfg.KVPassword),
		}).Info("starting run")

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		go func() {
			<-sigCh
			log.Warn("shutdown signal received, canceling run")
			cancel()
		}()

		credProvider, err := buildCredentialsProvider(cfg)
		if err != nil {
			return fmt.Errorf("building credentials provider: %w", err)
		}

		store, err := buildKVStore(ctx, cfg)
		if err != nil {
			return fmt.Errorf("building kv store: %w", err)
		}
		defer store.Close()

		sink, err := buildStorageSink(ctx, cfg, credProvider)
		if err != nil {
			return fmt.Errorf("building storage sink: %w", err)
		}

		recipe, plan, err := recipes.Build(ctx, configName, recipes.Deps{
			Config:      cfg,
			Credentials: credProvider,
			KV:          store,
			Storage:     sink,
		})
		if err != nil {
			return fmt.Errorf("building recipe %q: %w", configName, err)
		}

		f := fetcher.New(recipe)
		f.Logger = common.Logger
		result, err := f.Run(ctx, plan)
		if err != nil {
			return fmt.Errorf("run failed: %w", err)
		}

		log.WithFields(map[string]interface{}{
			"processed_count": result.ProcessedCount,
			"error_count":     len(result.Errors),
			"duration":        time.Since(start).String(),
		}).Info("run completed")

		if len(result.Errors) > 0 {
			for _, e := range result.Errors {
				log.WithField("detail", e).Error("request failed")
			}
		}
		return nil
	},
}

func applyFlagOverrides(cfg *config.FetcherConfig) {
	if v := viper.GetString("credentials_provider"); v != "" {
		cfg.CredentialsProviderType = v
	}
	if v := viper.GetString("storage"); v != "" {
		cfg.StorageType = v
	}
	if v := viper.GetString("kvstore"); v != "" {
		cfg.KVType = v
	}
}

func buildCredentialsProvider(cfg *config.FetcherConfig) (credentials.Provider, error) {
	switch cfg.CredentialsProviderType {
	case "infisical":
		return infisical.New(infisical.Config{
			Host:         cfg.CredentialsEndpoint,
			ClientID:     cfg.CredentialsClientID,
			ClientSecret: cfg.CredentialsClientSecret,
			ProjectID:    cfg.CredentialsProjectID,
			Environment:  cfg.CredentialsRegion,
		}), nil
	case "env", "":
		return envprovider.New(cfg.CredentialsEnvPrefix), nil
	default:
		return nil, fmt.Errorf("unknown credentials provider %q", cfg.CredentialsProviderType)
	}
}

func buildKVStore(ctx context.Context, cfg *config.FetcherConfig) (kv.Store, error) {
	var serializer kv.Serializer = kv.JSONSerializer{}
	if cfg.KVSerializer == "gob" {
		serializer = kv.GobSerializer{}
	}

	switch cfg.KVType {
	case "redis":
		url := fmt.Sprintf("redis://:%s@%s:%d/%d", cfg.KVPassword, cfg.KVHost, cfg.KVPort, cfg.KVDB)
		return rediskv.New(ctx, rediskv.Config{
			URL:        url,
			KeyPrefix:  cfg.KVPrefix,
			Serializer: serializer,
		})
	case "memory", "":
		return memstore.New(memstore.Config{
			Prefix:     cfg.KVPrefix,
			Serializer: serializer,
		}), nil
	default:
		return nil, fmt.Errorf("unknown kv type %q", cfg.KVType)
	}
}

func buildStorageSink(ctx context.Context, cfg *config.FetcherConfig, creds credentials.Provider) (storage.Sink, error) {
	switch cfg.StorageType {
	case "s3":
		accessKey, err := creds.GetCredential(ctx, cfg.CredentialsEnvPrefix, "s3_access_key")
		if err != nil {
			return nil, err
		}
		secretKey, err := creds.GetCredential(ctx, cfg.CredentialsEnvPrefix, "s3_secret_key")
		if err != nil {
			return nil, err
		}
		return s3sink.New(ctx, s3sink.Config{
			Endpoint:  cfg.StorageEndpoint,
			Region:    cfg.StorageRegion,
			Bucket:    cfg.StorageBucket,
			Prefix:    cfg.StoragePrefix,
			AccessKey: accessKey,
			SecretKey: secretKey,
		})
	case "file", "":
		return filesink.New(filesink.Config{RootDir: cfg.StorageRootDir})
	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.StorageType)
	}
}

