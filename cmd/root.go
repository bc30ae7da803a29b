package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/Shivanand-hulikatti/event-feed/internal/config"
	"github.com/Shivanand-hulikatti/event-feed/internal/logger"
)

var version = "dev"

// app carries what every subcommand needs once flags are parsed.
type app struct {
	cfgFile string
	cfg     config.Config
	log     *zap.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "eventsd",
		Short:         "Event publishing and attendee registration service",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.log != nil {
				_ = a.log.Sync()
			}
		},
	}
	root.PersistentFlags().StringVarP(&a.cfgFile, "config", "c", "",
		"config file (YAML); EVENTS_* environment variables override it")

	root.AddCommand(newServeCmd(a), newMigrateCmd(a))
	return root
}

func (a *app) init() error {
	cfg, err := config.Load(viper.New(), a.cfgFile)
	if err != nil {
		return err
	}
	log, err := logger.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		return err
	}
	a.cfg, a.log = cfg, log
	return nil
}
