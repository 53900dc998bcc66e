// Package recipes is the CLI's mapping from a config_name ("fetcher run
// <config_name>") to a concrete FetcherRecipe + FetchPlan: the
// locator set, loader, and storage wiring a deployment actually wants. A
// locator's QueryBuilder/NarrowingStrategy are Go closures, not serializable
// config values, so recipes live in code rather than in the environment;
// the CLI only selects among registered recipes by name and supplies the
// infra (credentials, KV, storage) every recipe shares.
package recipes

import (
	"context"
	"fmt"

	"github.com/ocfetch/fetcher/config"
	"github.com/ocfetch/fetcher/credentials"
	"github.com/ocfetch/fetcher/fetcher"
	"github.com/ocfetch/fetcher/httpmgr"
	"github.com/ocfetch/fetcher/kv"
	"github.com/ocfetch/fetcher/loader"
	"github.com/ocfetch/fetcher/locator"
	"github.com/ocfetch/fetcher/model"
	"github.com/ocfetch/fetcher/sftpmgr"
	"github.com/ocfetch/fetcher/storage"
)

// Deps bundles the infrastructure every recipe builder shares, wired once by
// the CLI from FetcherConfig before a recipe is resolved by name.
type Deps struct {
	Config      *config.FetcherConfig
	Credentials credentials.Provider
	KV          kv.Store
	Storage     storage.Sink
}

// Builder constructs the recipe and seed plan for one config_name.
type Builder func(ctx context.Context, deps Deps) (fetcher.Recipe, *model.FetchPlan, error)

var registry = map[string]Builder{}

// Register adds a named recipe builder. Intended to be called from package
// init() by callers that define their own recipes alongside the ones this
// package ships.
func Register(name string, b Builder) {
	registry[name] = b
}

// Build resolves name against the registry and constructs its recipe/plan.
func Build(ctx context.Context, name string, deps Deps) (fetcher.Recipe, *model.FetchPlan, error) {
	b, ok := registry[name]
	if !ok {
		return fetcher.Recipe{}, nil, fmt.Errorf("recipes: no recipe registered for %q", name)
	}
	return b(ctx, deps)
}

func init() {
	Register("sftp-directory-sync", buildSFTPDirectorySync)
}

// buildSFTPDirectorySync is a Directory Bundle Locator example: list a
// remote SFTP directory once, drain it minus whatever processed_urls
// already records, and stream each matching file into storage via
// SFTPLoader.
func buildSFTPDirectorySync(ctx context.Context, deps Deps) (fetcher.Recipe, *model.FetchPlan, error) {
	cfg := deps.Config
	env := config.NewEnvConfig("FETCHER")
	remoteDir := env.GetString("SFTP_REMOTE_DIR", "/upload")

	sftpMgr := sftpmgr.New(sftpmgr.Config{
		CredentialsProvider: deps.Credentials,
		ConfigName:          "sftp",
	})

	loc := locator.NewDirectoryBundleLocator(deps.KV, "sftp-directory-sync", remoteDir, sftpMgr)
	loc.FilenamePattern = env.GetString("SFTP_FILENAME_PATTERN", "*")

	ld := &loader.SFTPLoader{
		SFTP:    sftpMgr,
		Storage: deps.Storage,
	}

	recipe := fetcher.Recipe{
		Loader:   ld,
		Locators: []locator.Locator{loc},
	}
	plan := &model.FetchPlan{
		Context:     &model.FetchRunContext{RunID: cfg.RunID},
		Concurrency: cfg.Concurrency,
	}
	return recipe, plan, nil
}

// NewHTTPManager is a small convenience shared by recipes that need a plain,
// unauthenticated httpmgr.Manager; recipes requiring OAuth2 or basic auth
// build their own authn.Mechanism and call httpmgr.New directly.
func NewHTTPManager() *httpmgr.Manager {
	return httpmgr.New(httpmgr.Config{})
}
