package cli

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/crs4/moodle.omero-repository/internal/api"
	"github.com/crs4/moodle.omero-repository/internal/browse"
	"github.com/crs4/moodle.omero-repository/internal/cache"
	"github.com/crs4/moodle.omero-repository/internal/config"
	"github.com/crs4/moodle.omero-repository/internal/constants"
	"github.com/crs4/moodle.omero-repository/internal/refs"
	"github.com/crs4/moodle.omero-repository/internal/router"
	"github.com/crs4/moodle.omero-repository/internal/server"
	"github.com/crs4/moodle.omero-repository/internal/syncer"
)

// app bundles the wired components shared by serve and sync.
type app struct {
	cfg      *config.Config
	client   *api.Client
	resolver *browse.Resolver
	cache    *cache.ReferenceCache
	refs     *refs.Store
	syncer   *syncer.Syncer
}

func buildApp() (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	log := GetLogger()

	client, err := api.NewClient(cfg, log)
	if err != nil {
		return nil, err
	}

	store, err := refs.Open(cfg.Server.ReferencesDB)
	if err != nil {
		return nil, err
	}

	rtr := router.New(router.ForName(cfg.APIDialect))
	sessions := browse.NewMemorySessionStore()
	resolver := browse.NewResolver(client, rtr, sessions, cfg.Blacklist, log)
	rc := cache.New(cache.NewMemoryStore(constants.ThumbnailTTL), cfg, log)

	return &app{
		cfg:      cfg,
		client:   client,
		resolver: resolver,
		cache:    rc,
		refs:     store,
		syncer:   syncer.New(store, client, log),
	}, nil
}

func (a *app) close() {
	if err := a.refs.Close(); err != nil {
		GetLogger().Warn().Err(err).Msg("closing reference store")
	}
}

// newServeCmd creates the 'serve' command: HTTP server plus the background
// sync loop.
func newServeCmd() *cobra.Command {
	var listen string
	var noSync bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the repository HTTP server",
		Long: `Run the repository HTTP server.

Serves the listing, thumbnail and file endpoints, and keeps the daily
reference sync loop running in the background unless --no-sync is given.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp()
			if err != nil {
				return err
			}
			defer a.close()

			if listen != "" {
				a.cfg.Server.Listen = listen
			}

			ctx := cmd.Context()
			if !noSync {
				interval := time.Duration(a.cfg.Sync.IntervalMinutes) * time.Minute
				go a.syncer.RunLoop(ctx, interval)
			}

			srv := server.New(a.cfg, a.resolver, a.cache, a.client, a.refs, GetLogger())
			return srv.ListenAndServe(ctx)
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "listen address (overrides config)")
	cmd.Flags().BoolVar(&noSync, "no-sync", false, "disable the background reference sync loop")
	return cmd
}
