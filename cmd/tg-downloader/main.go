package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ytget/tg-downloader/internal/app"
	"github.com/ytget/tg-downloader/internal/config"
)

// Version is set during build via -ldflags "-X main.version=X.Y.Z"
var version = "dev"

func main() {
	var configPath string

	root := &cobra.Command{
		Use:     "tg-downloader",
		Short:   "Telegram media download bot",
		Long:    "A Telegram bot that downloads media from links with playlist and quality selection.",
		Version: version,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			return app.Run(cmd.Context(), cfg)
		},
	}
	root.Flags().StringVarP(&configPath, "config", "c", "", "path to the yaml config file")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
