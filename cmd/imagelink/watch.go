package main

import (
	"errors"

	imagelink "github.com/blutspende/go-imagelink"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"
)

func watchCmd(opts *rootOptions) *cobra.Command {
	var pattern string

	cmd := &cobra.Command{
		Use:   "watch [DIR]",
		Short: "Publish every image file that shows up in a directory",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := opts.cfg
			dir := cfg.Watch.Dir
			if len(args) == 1 {
				dir = args[0]
			}
			if dir == "" {
				return errors.New("no directory to watch")
			}
			if cmd.Flags().Changed("pattern") {
				cfg.Watch.Pattern = pattern
			}

			client, ctx, err := connectProducer(cmd.Context(), cfg, "watch")
			if err != nil {
				return err
			}
			defer client.WaitUntilDisconnected()
			defer client.Close()

			options := []imagelink.DirectoryWatcherOption{
				imagelink.WithWatchViewer(cfg.Client.Viewer),
				imagelink.WithWatchLogger(log.Logger.With().Str("component", "imagelink-dirwatch").Str("dir", dir).Logger()),
			}
			if cfg.Watch.RepublishOnWrite {
				options = append(options, imagelink.WithRepublishOnWrite())
			}
			if cfg.Watch.Rate > 0 {
				options = append(options, imagelink.WithPublishRate(rate.Limit(cfg.Watch.Rate), cfg.Watch.Burst))
			}

			return imagelink.NewDirectoryWatcher(dir, cfg.Watch.Pattern, client, options...).Run(ctx)
		},
	}
	cmd.Flags().StringVar(&pattern, "pattern", "*", "glob the file names have to match")
	return cmd
}
