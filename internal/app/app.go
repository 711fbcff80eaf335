// Package app wires the sdpanel commands.
package app

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cheahjs/sdwebui-panel/internal/config"
	"github.com/cheahjs/sdwebui-panel/internal/logging"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "sdpanel",
	Short: "Stable Diffusion WebUI control panel",
	Long:  `A control panel backend for Stable Diffusion WebUI, with command line tools for generating images and painting inpainting masks.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load()
		if err != nil {
			return err
		}
		logging.Setup(cfg.AppEnv, cfg.LogLevel)
		return nil
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.AddCommand(newServeCmd(), newGenerateCmd(), newMaskCmd())
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
