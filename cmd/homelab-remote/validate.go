package main

import (
	"fmt"
	"os"
	"sort"

	"github.com/fgeck/homelab-remote/internal/config"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	Long:  `Validate the configuration file without connecting to any target.`,
	RunE:  validateConfig,
}

func validateConfig(cmd *cobra.Command, args []string) error {
	if configFile == "" {
		log.Error().Msg("config file is required")
		return cmd.Help()
	}

	// Check if file exists
	if _, err := os.Stat(configFile); os.IsNotExist(err) {
		log.Error().Str("file", configFile).Msg("config file not found")
		return fmt.Errorf("config file not found: %s", configFile)
	}

	// Load configuration
	parser := config.NewParser()
	cfg, err := parser.LoadFile(configFile)
	if err != nil {
		log.Error().Err(err).Str("file", configFile).Msg("failed to parse config")
		return err
	}

	// Validate configuration
	if err := config.Validate(cfg); err != nil {
		log.Error().Err(err).Msg("configuration validation failed")
		return err
	}

	// Print configuration summary
	fmt.Println("Configuration is valid!")
	fmt.Println()
	fmt.Println("Defaults:")
	fmt.Printf("  Connect timeout: %s\n", cfg.Defaults.ConnectTimeout)
	fmt.Printf("  Command timeout: %s\n", cfg.Defaults.CommandTimeout)
	fmt.Printf("  Host key policy: %s\n", cfg.Defaults.HostKeyPolicy)
	if cfg.Defaults.KnownHostsPath != "" {
		fmt.Printf("  Known hosts: %s\n", cfg.Defaults.KnownHostsPath)
	}
	fmt.Printf("  Classification: %s\n", cfg.Defaults.Classification)
	fmt.Printf("  Service: %s\n", cfg.Service.Name)

	names := make([]string, 0, len(cfg.Targets))
	for name := range cfg.Targets {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Println()
	fmt.Println("Targets:")
	for _, name := range names {
		t := cfg.Targets[name]
		auth := "password"
		if t.KeyPath != "" || len(t.PrivateKey) > 0 {
			auth = "key"
		}
		fmt.Printf("  %s: %s@%s:%d (%s)\n", name, t.Username, t.Host, t.Port, auth)
		if t.WOL != nil {
			fmt.Printf("    Wake-on-LAN: %s via %s, poll %s\n", t.WOL.MACAddress, t.WOL.BroadcastIP, t.WOL.PollAddr)
		}
	}

	fmt.Println()
	fmt.Println("Optional Features:")
	fmt.Printf("  Telegram: %v\n", cfg.Telegram != nil)
	fmt.Printf("  HTTP listen: %s\n", cfg.Server.Listen)

	if cfg.Telegram != nil {
		fmt.Println()
		fmt.Println("Telegram Configuration:")
		fmt.Printf("  Chat ID: %s\n", cfg.Telegram.ChatID)
		fmt.Printf("  Bot Token: (configured)\n")
	}

	return nil
}
