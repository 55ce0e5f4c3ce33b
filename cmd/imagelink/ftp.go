package main

import (
	imagelink "github.com/blutspende/go-imagelink"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func ftpCmd(opts *rootOptions) *cobra.Command {
	var host, dir string

	cmd := &cobra.Command{
		Use:   "ftp",
		Short: "Publish the image files of an FTP directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := opts.cfg
			if cmd.Flags().Changed("host") {
				cfg.FTP.Host = host
			}
			if cmd.Flags().Changed("dir") {
				cfg.FTP.Dir = dir
			}

			client, ctx, err := connectProducer(cmd.Context(), cfg, "ftp")
			if err != nil {
				return err
			}
			defer client.WaitUntilDisconnected()
			defer client.Close()

			ftpConfig := imagelink.DefaultFTPConfig().
				UserPass(cfg.FTP.User, cfg.FTP.Password).
				PollInterval(cfg.FTP.PollInterval).
				DialTimeout(cfg.FTP.DialTimeout).
				ProcessStrategy(imagelink.ProcessStrategy(cfg.FTP.Strategy)).
				Viewer(cfg.Client.Viewer).
				Logger(log.Logger.With().Str("component", "imagelink-ftp").Logger())

			source := imagelink.CreateNewFTPImageSource(cfg.FTP.Host, cfg.FTP.Port, cfg.FTP.Dir, cfg.FTP.Pattern, client, ftpConfig)
			return source.Run(ctx)
		},
	}
	cmd.Flags().StringVar(&host, "host", "", "FTP server")
	cmd.Flags().StringVar(&dir, "dir", "", "directory to poll")
	return cmd
}
