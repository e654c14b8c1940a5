package main

import (
	"fmt"

	"github.com/fgeck/homelab-remote/internal/services/wol"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var wakeCmd = &cobra.Command{
	Use:   "wake",
	Short: "Send Wake-on-LAN to a configured target and wait for SSH",
	RunE:  runWake,
}

func init() {
	wakeCmd.Flags().StringVarP(&targetName, "target", "t", "", "target name from the config file")
}

func runWake(cmd *cobra.Command, args []string) error {
	if configFile == "" {
		log.Error().Msg("config file is required")
		return cmd.Help()
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	target, err := resolveTarget(cfg)
	if err != nil {
		return err
	}
	if target.WOL == nil {
		return fmt.Errorf("target %q: %w", target.Name, wol.ErrNotConfigured)
	}

	ctx, cancel := signalContext()
	defer cancel()

	result, err := wol.New(log.Logger).Wake(ctx, *target.WOL)
	if err != nil {
		return err
	}
	if result.Error != nil {
		return result.Error
	}

	log.Info().
		Str("target", target.Name).
		Bool("target_ready", result.TargetReady).
		Int("attempts", result.Attempts).
		Dur("wait_duration", result.WaitDuration).
		Msg("target is awake")
	return nil
}
