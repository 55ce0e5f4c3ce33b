package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/blutspende/go-imagelink/internal/config"
	"github.com/blutspende/go-imagelink/internal/logging"
	"github.com/spf13/cobra"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

type rootOptions struct {
	configPath string
	cfg        *config.Config
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:   "imagelink",
		Short: "Transfer images between producers and a viewer over TCP",
		Long: `imagelink moves images from producers (scanners, file drops, FTP
servers) to a consuming viewer. Images are announced first, their data is
sent right away or when the viewer asks for it.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return err
			}
			if err := logging.Setup(cfg.Logger); err != nil {
				return err
			}
			opts.cfg = cfg
			return nil
		},
	}
	rootCmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "imagelink.yaml", "config file, missing is fine")

	rootCmd.AddCommand(
		serveCmd(opts),
		sendCmd(opts),
		watchCmd(opts),
		ftpCmd(opts),
		versionCmd(),
	)
	return rootCmd
}
