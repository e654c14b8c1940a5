package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fgeck/homelab-remote/internal/config"
	"github.com/fgeck/homelab-remote/internal/models"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

const passwordEnv = "HOMELAB_REMOTE_PASSWORD"

// Target selection flags shared by every command that talks to a host.
var (
	targetName  string
	targetHost  string
	targetPort  int
	targetUser  string
	keyPath     string
	askPassword bool
	serviceName string
	wake        bool
)

func addTargetFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&targetName, "target", "t", "", "target name from the config file")
	cmd.Flags().StringVar(&targetHost, "host", "", "host to connect to (instead of --target)")
	cmd.Flags().IntVarP(&targetPort, "port", "p", models.DefaultSSHPort, "SSH port (with --host)")
	cmd.Flags().StringVarP(&targetUser, "user", "u", "", "SSH username (with --host)")
	cmd.Flags().StringVarP(&keyPath, "identity", "i", "", "private key file (with --host)")
	cmd.Flags().BoolVar(&askPassword, "ask-password", false, "prompt for the SSH password (with --host)")
	cmd.Flags().StringVar(&serviceName, "service", "", "service to manage (overrides service.name)")
	cmd.Flags().BoolVar(&wake, "wake", false, "send Wake-on-LAN first if the target has it configured")
}

// loadConfig reads --config, or falls back to defaults when none is given.
func loadConfig() (*models.AppConfig, error) {
	var cfg *models.AppConfig
	if configFile == "" {
		cfg = config.Default()
	} else {
		parser := config.NewParser()
		loaded, err := parser.LoadFile(configFile)
		if err != nil {
			log.Error().Err(err).Str("file", configFile).Msg("failed to load config")
			return nil, err
		}
		cfg = loaded
	}

	if serviceName != "" {
		if !config.ValidServiceName(serviceName) {
			return nil, fmt.Errorf("service name %q contains invalid characters", serviceName)
		}
		cfg.Service.Name = serviceName
	}

	return cfg, nil
}

func resolveTarget(cfg *models.AppConfig) (models.ConnectionTarget, error) {
	switch {
	case targetName != "" && targetHost != "":
		return models.ConnectionTarget{}, errors.New("use either --target or --host, not both")
	case targetName != "":
		// viper lowercases map keys
		t, ok := cfg.Target(strings.ToLower(targetName))
		if !ok {
			return models.ConnectionTarget{}, fmt.Errorf("unknown target %q", targetName)
		}
		return t, nil
	case targetHost != "":
		return adHocTarget()
	default:
		return models.ConnectionTarget{}, errors.New("either --target or --host is required")
	}
}

func adHocTarget() (models.ConnectionTarget, error) {
	if targetUser == "" {
		return models.ConnectionTarget{}, errors.New("--user is required with --host")
	}
	if targetPort < 1 || targetPort > 65535 {
		return models.ConnectionTarget{}, fmt.Errorf("port must be between 1 and 65535, got %d", targetPort)
	}

	t := models.ConnectionTarget{
		Name:     targetHost,
		Host:     targetHost,
		Port:     targetPort,
		Username: targetUser,
		KeyPath:  keyPath,
		Password: os.Getenv(passwordEnv),
	}

	if askPassword {
		pw, err := promptPassword(fmt.Sprintf("%s@%s's password: ", targetUser, targetHost))
		if err != nil {
			return models.ConnectionTarget{}, err
		}
		t.Password = pw
	}

	return t, nil
}

func promptPassword(prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", fmt.Errorf("--ask-password needs a terminal, set %s instead", passwordEnv)
	}

	fmt.Fprint(os.Stderr, prompt)
	pw, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}
	return string(pw), nil
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigChan:
			log.Warn().Str("signal", sig.String()).Msg("received signal, shutting down")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigChan)
	}()

	return ctx, cancel
}
