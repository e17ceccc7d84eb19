package cmd

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"firestige.xyz/strix/internal/aps"
	"firestige.xyz/strix/internal/config"
	"firestige.xyz/strix/internal/log"
	"firestige.xyz/strix/internal/transport"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the AVDECC proxy server",
	Long: `Start the proxy server daemon.

Examples:
  strix start                   # use /etc/strix/config.yml
  strix start -c strix.yml      # use a local config file`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configFile)
		if err != nil {
			return err
		}
		if err := log.Init(cfg.Log); err != nil {
			return err
		}
		logger := log.GetLogger()

		sock, err := transport.Open(cfg.Transport, nil)
		if err != nil {
			return err
		}
		defer sock.Close()

		srv := aps.New(aps.Options{
			Listen:            cfg.Listen,
			KeepaliveInterval: cfg.KeepaliveInterval,
		}, sock)

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		logger.Infof("starting strix on %s (%s backend)", cfg.Listen, cfg.Transport.Backend)
		return srv.Run(ctx)
	},
}

func init() {
	rootCmd.AddCommand(startCmd)
}
