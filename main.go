package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/deemkeen/fedcore/activitypub"
	"github.com/deemkeen/fedcore/db"
	"github.com/deemkeen/fedcore/logging"
	"github.com/deemkeen/fedcore/util"
	"github.com/deemkeen/fedcore/web"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// delivery queue poll interval
const deliveryInterval = 10 * time.Second

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// app carries what every subcommand needs once the config is loaded
type app struct {
	configPath string
	conf       *util.AppConfig
}

func newRootCmd() *cobra.Command {
	a := &app{}
	cmd := &cobra.Command{
		Use:           util.Name,
		Short:         "ActivityPub federation core",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	cmd.Version = util.GetVersion()
	cmd.SetOut(os.Stdout)
	cmd.SetErr(os.Stderr)

	cmd.PersistentFlags().StringVar(&a.configPath, "config", "", "path to the config file")

	cmd.AddCommand(
		newServeCmd(a),
		newTokensCmd(a),
		newOutboxCmd(a),
	)
	return cmd
}

func (a *app) load() error {
	var err error
	if a.configPath != "" {
		a.conf, err = util.ReadConfFile(a.configPath)
	} else {
		a.conf, err = util.ReadConf()
		a.configPath = util.ResolveFilePath(util.ConfigFileName)
	}
	if err != nil {
		return err
	}
	return logging.Init(a.conf.Conf.LogLevel, a.conf.Conf.LogFormat)
}

// open wires the federation core on the configured database
func (a *app) open(reg prometheus.Registerer) (*activitypub.Federation, *db.DB, error) {
	path := a.conf.Conf.DbPath
	if !filepath.IsAbs(path) {
		path = util.ResolveFilePath(path)
	}
	database, err := db.Open(path)
	if err != nil {
		return nil, nil, err
	}
	stores := activitypub.Stores{
		KV:         database,
		Follows:    database,
		Posts:      database,
		Activities: database,
		Queue:      database,
	}
	return activitypub.New(stores, activitypub.OptionsFromConfig(a.conf, reg)), database, nil
}

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server, delivery worker and token rotation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.serve(ctx)
		},
	}
}

func (a *app) serve(ctx context.Context) error {
	log := logging.Component("main")
	defer logging.Sync()

	log.Infof("Starting %s", util.GetNameAndVersion())
	log.Debugf("Configuration: %s", util.PrettyPrint(a.conf))

	fed, database, err := a.open(prometheus.DefaultRegisterer)
	if err != nil {
		return err
	}
	defer database.Close()

	if _, err := fed.Tokens.EnsureTokens(a.conf.Conf.SharedItemsDomains); err != nil {
		return fmt.Errorf("ensure federation tokens: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)

	if a.conf.Conf.WithAp {
		worker := fed.DeliveryWorker(activitypub.NewHTTPTransport(), deliveryInterval)
		g.Go(func() error {
			worker.Run(ctx)
			return nil
		})
	}

	rotator := fed.TokenRotator(time.Duration(a.conf.Conf.TokenCheckSeconds) * time.Second)
	g.Go(func() error {
		rotator.Run(ctx)
		return nil
	})

	if _, err := os.Stat(a.configPath); err == nil {
		err := util.WatchConfig(ctx, a.configPath, func(conf *util.AppConfig) {
			if err := fed.ApplyConfig(conf); err != nil {
				log.Warnf("Failed to apply reloaded config: %v", err)
				return
			}
			log.Infof("Reloaded domain lists from %s", a.configPath)
		})
		if err != nil {
			log.Warnf("Config reload disabled: %v", err)
		}
	}

	server := web.NewServer(a.conf, fed, database, prometheus.DefaultGatherer)
	g.Go(func() error {
		return server.Run(ctx)
	})

	err = g.Wait()
	log.Info("Shut down")
	return err
}
