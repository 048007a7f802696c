package main

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/miosa/osa-chat/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the resolved settings for a profile",
	Long: "Print the settings the client would run with: the profile's osa-chat.json\n" +
		"merged over the defaults, with environment overrides applied.\n" +
		"With --write the result is stored in the profile.",
	RunE: runConfig,
}

var flagWriteConfig bool

func init() {
	configCmd.Flags().BoolVar(&flagWriteConfig, "write", false, "save the resolved settings to the profile")
	configCmd.Flags().StringVar(&flagProfile, "profile", "", "named profile")
}

func runConfig(cmd *cobra.Command, args []string) error {
	dir := profileDir(flagProfile)
	cfg := config.LoadEnv(dir)
	if flagWriteConfig {
		if err := config.Save(dir, cfg); err != nil {
			return fmt.Errorf("save config: %w", err)
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "wrote %s\n", filepath.Join(dir, config.Filename))
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(cfg)
}
