package main

import (
	"path/filepath"

	imagelink "github.com/blutspende/go-imagelink"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func sendCmd(opts *rootOptions) *cobra.Command {
	var eager, replace bool
	var viewerName string

	cmd := &cobra.Command{
		Use:   "send FILE...",
		Short: "Publish image files, lazily by default",
		Long: `Publish image files to a running viewer. Lazy files are only read when
the viewer asks for them, send keeps running until every file was asked for.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := opts.cfg
			if !cmd.Flags().Changed("viewer") {
				viewerName = cfg.Client.Viewer
			}

			client, ctx, err := connectProducer(cmd.Context(), cfg, "send")
			if err != nil {
				return err
			}
			defer client.WaitUntilDisconnected()
			defer client.Close()

			for _, path := range args {
				var imageID uint64
				if eager {
					buffer, err := imagelink.LoadImageFile(path)
					if err != nil {
						return err
					}
					imageID = client.NextImageID()
					err = client.PublishEager(imageID, filepath.Base(path), viewerName, buffer, replace)
					if err != nil {
						return err
					}
				} else {
					imageID, err = client.PublishFile(path, viewerName, replace)
					if err != nil {
						return err
					}
				}
				log.Info().Str("path", path).Uint64("imageId", imageID).Bool("eager", eager).Msg("published")
			}

			waitServed(ctx, client)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&eager, "eager", "e", false, "send the data with the announcement")
	cmd.Flags().BoolVarP(&replace, "replace", "r", false, "replace an image of the same name in the viewer")
	cmd.Flags().StringVar(&viewerName, "viewer", "", "viewer the images are meant for")
	return cmd
}
