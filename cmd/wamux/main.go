package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"wamux/internal/app"
	"wamux/internal/config"
)

func main() {
	root := &cobra.Command{
		Use:          "wamux",
		Short:        "Multi-session WhatsApp gateway",
		SilenceUsage: true,
	}

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the gateway server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			application, err := app.New(cfg)
			if err != nil {
				return fmt.Errorf("failed to initialize: %w", err)
			}
			return application.Run()
		},
	}
	root.AddCommand(serve)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
