// Package config provides configuration file parsing.
package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/fgeck/homelab-remote/internal/models"
	"github.com/spf13/viper"
)

const defaultKnownHosts = "~/.config/homelab-remote/known_hosts"

// writeMargin covers the notification and response encoding after a job.
const writeMargin = 30 * time.Second

// serviceNamePattern restricts unit names to characters that are safe to splice
// into a shell command.
var serviceNamePattern = regexp.MustCompile(`^[A-Za-z0-9@._-]+$`)

// Parser handles configuration file parsing.
type Parser struct {
	v *viper.Viper
}

// NewParser creates a new configuration parser.
func NewParser() *Parser {
	v := viper.New()
	v.SetConfigType("yaml")
	return &Parser{v: v}
}

// LoadFile loads configuration from a file path.
func (p *Parser) LoadFile(path string) (*models.AppConfig, error) {
	p.v.SetConfigFile(path)

	if err := p.v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	return p.parse()
}

// LoadReader loads configuration from a reader (useful for testing).
func (p *Parser) LoadReader(content string) (*models.AppConfig, error) {
	if err := p.v.ReadConfig(strings.NewReader(content)); err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	return p.parse()
}

// Default returns the configuration used when no config file is given.
func Default() *models.AppConfig {
	opts := models.DefaultExecOptions()
	opts.KnownHostsPath = expandPath(defaultKnownHosts)
	cfg := &models.AppConfig{
		Defaults: opts,
		Service:  models.ServiceSettings{Name: "apache2"},
		Targets:  map[string]models.ConnectionTarget{},
		Server: models.ServerSettings{
			Listen:      "127.0.0.1:8080",
			ReadTimeout: 15 * time.Second,
		},
	}
	cfg.Server.WriteTimeout = JobWriteTimeout(cfg)
	return cfg
}

// JobWriteTimeout is the shortest HTTP write timeout that lets the slowest job
// finish: waking the target, connecting, and the three commands of ensure.
// Zero means jobs are unbounded and so must be the write timeout.
func JobWriteTimeout(cfg *models.AppConfig) time.Duration {
	if cfg.Defaults.CommandTimeout == 0 {
		return 0
	}

	var wake time.Duration
	for _, t := range cfg.Targets {
		if t.WOL == nil {
			continue
		}
		if w := t.WOL.Timeout + t.WOL.StabilizeWait; w > wake {
			wake = w
		}
	}

	return wake + cfg.Defaults.ConnectTimeout + 3*cfg.Defaults.CommandTimeout + writeMargin
}

func checkWriteTimeout(cfg *models.AppConfig) error {
	got := cfg.Server.WriteTimeout
	if got == 0 {
		return nil
	}

	need := JobWriteTimeout(cfg)
	if need == 0 {
		return fmt.Errorf("server.write_timeout must be 0 when defaults.command_timeout is 0")
	}
	if got < need {
		return fmt.Errorf("server.write_timeout %s is shorter than the longest job (%s)", got, need)
	}
	return nil
}

//nolint:gocognit,gocyclo // parsing config requires checking many fields
func (p *Parser) parse() (*models.AppConfig, error) {
	cfg := Default()

	// Parse session defaults.
	if p.v.IsSet("defaults.connect_timeout") {
		cfg.Defaults.ConnectTimeout = p.v.GetDuration("defaults.connect_timeout")
	}
	if p.v.IsSet("defaults.command_timeout") {
		cfg.Defaults.CommandTimeout = p.v.GetDuration("defaults.command_timeout")
	}
	if cfg.Defaults.ConnectTimeout <= 0 {
		return nil, fmt.Errorf("defaults.connect_timeout must be positive")
	}
	if cfg.Defaults.CommandTimeout < 0 {
		return nil, fmt.Errorf("defaults.command_timeout must not be negative")
	}

	if policy := p.v.GetString("defaults.host_key_policy"); policy != "" {
		cfg.Defaults.HostKeyPolicy = models.HostKeyPolicy(policy)
	}
	if p.v.IsSet("defaults.known_hosts") {
		cfg.Defaults.KnownHostsPath = expandPath(p.expandEnv(p.v.GetString("defaults.known_hosts")))
	}
	if mode := p.v.GetString("defaults.classification"); mode != "" {
		cfg.Defaults.Classification = models.Classification(mode)
	}

	validPolicies := map[models.HostKeyPolicy]bool{
		models.HostKeyTOFU: true, models.HostKeyInsecure: true, models.HostKeyStrict: true,
	}
	if !validPolicies[cfg.Defaults.HostKeyPolicy] {
		return nil, fmt.Errorf("defaults.host_key_policy must be one of: tofu, insecure, strict")
	}
	if cfg.Defaults.HostKeyPolicy == models.HostKeyStrict && cfg.Defaults.KnownHostsPath == "" {
		return nil, fmt.Errorf("defaults.known_hosts is required when host_key_policy is strict")
	}
	validModes := map[models.Classification]bool{
		models.ClassifyStderr: true, models.ClassifyExitStatus: true,
	}
	if !validModes[cfg.Defaults.Classification] {
		return nil, fmt.Errorf("defaults.classification must be one of: stderr, exit_status")
	}

	// Parse managed service.
	if name := p.v.GetString("service.name"); name != "" {
		cfg.Service.Name = name
	}
	if !serviceNamePattern.MatchString(cfg.Service.Name) {
		return nil, fmt.Errorf("service.name %q contains invalid characters", cfg.Service.Name)
	}

	// Parse targets (required).
	names := make([]string, 0)
	for name := range p.v.GetStringMap("targets") {
		names = append(names, name)
	}
	sort.Strings(names)

	if len(names) == 0 {
		return nil, fmt.Errorf("targets is required")
	}

	for _, name := range names {
		target, err := p.parseTarget(name)
		if err != nil {
			return nil, err
		}
		cfg.Targets[name] = target
	}

	// Parse HTTP server settings.
	if listen := p.v.GetString("server.listen"); listen != "" {
		cfg.Server.Listen = listen
	}
	if p.v.IsSet("server.read_timeout") {
		cfg.Server.ReadTimeout = p.v.GetDuration("server.read_timeout")
	}
	if p.v.IsSet("server.write_timeout") {
		cfg.Server.WriteTimeout = p.v.GetDuration("server.write_timeout")
	} else {
		cfg.Server.WriteTimeout = JobWriteTimeout(cfg)
	}
	if err := checkWriteTimeout(cfg); err != nil {
		return nil, err
	}

	// Parse optional Telegram config.
	if p.v.IsSet("telegram") {
		cfg.Telegram = &models.TelegramConfig{
			BotToken: p.expandEnv(p.v.GetString("telegram.bot_token")),
			ChatID:   p.expandEnv(p.v.GetString("telegram.chat_id")),
		}

		if cfg.Telegram.BotToken == "" {
			return nil, fmt.Errorf("telegram.bot_token is required when telegram is configured")
		}
		if cfg.Telegram.ChatID == "" {
			return nil, fmt.Errorf("telegram.chat_id is required when telegram is configured")
		}
	}

	return cfg, nil
}

func (p *Parser) parseTarget(name string) (models.ConnectionTarget, error) {
	prefix := "targets." + name

	target := models.ConnectionTarget{
		Name:     name,
		Host:     p.v.GetString(prefix + ".host"),
		Port:     p.v.GetInt(prefix + ".port"),
		Username: p.expandEnv(p.v.GetString(prefix + ".username")),
		Password: p.expandEnv(p.v.GetString(prefix + ".password")),
		KeyPath:  expandPath(p.expandEnv(p.v.GetString(prefix + ".key_path"))),
	}

	if target.Host == "" {
		return target, fmt.Errorf("%s.host is required", prefix)
	}
	if target.Username == "" {
		return target, fmt.Errorf("%s.username is required", prefix)
	}
	if target.Port == 0 {
		target.Port = models.DefaultSSHPort
	}
	if target.Port < 1 || target.Port > 65535 {
		return target, fmt.Errorf("%s.port must be between 1 and 65535", prefix)
	}

	if p.v.IsSet(prefix + ".wol") { //nolint:nestif // config parsing with defaults
		target.WOL = &models.WOLConfig{
			MACAddress:    p.v.GetString(prefix + ".wol.mac_address"),
			BroadcastIP:   p.v.GetString(prefix + ".wol.broadcast_ip"),
			Timeout:       p.v.GetDuration(prefix + ".wol.timeout"),
			PollInterval:  p.v.GetDuration(prefix + ".wol.poll_interval"),
			StabilizeWait: p.v.GetDuration(prefix + ".wol.stabilize_wait"),
			PollAddr:      net.JoinHostPort(target.Host, strconv.Itoa(target.Port)),
		}

		if target.WOL.MACAddress == "" {
			return target, fmt.Errorf("%s.wol.mac_address is required when wol is configured", prefix)
		}

		// Set defaults.
		if target.WOL.BroadcastIP == "" {
			target.WOL.BroadcastIP = "255.255.255.255"
		}
		if target.WOL.Timeout == 0 {
			target.WOL.Timeout = 5 * time.Minute
		}
		if target.WOL.PollInterval == 0 {
			target.WOL.PollInterval = 10 * time.Second
		}
		if target.WOL.StabilizeWait == 0 {
			target.WOL.StabilizeWait = 10 * time.Second
		}
	}

	return target, nil
}

// expandEnv expands environment variables in the format ${VAR} or $VAR.
func (p *Parser) expandEnv(s string) string {
	return os.ExpandEnv(s)
}

// expandPath expands a leading ~/ to the user's home directory.
func expandPath(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, path[2:])
}

// Validate performs validation on the loaded configuration.
func Validate(cfg *models.AppConfig) error {
	if cfg == nil {
		return fmt.Errorf("configuration is nil")
	}

	if len(cfg.Targets) == 0 {
		return fmt.Errorf("targets is required")
	}

	for name, t := range cfg.Targets {
		if t.Host == "" {
			return fmt.Errorf("targets.%s.host is required", name)
		}
		if t.Username == "" {
			return fmt.Errorf("targets.%s.username is required", name)
		}
	}

	if !serviceNamePattern.MatchString(cfg.Service.Name) {
		return fmt.Errorf("service.name %q contains invalid characters", cfg.Service.Name)
	}

	return checkWriteTimeout(cfg)
}

// ValidServiceName reports whether name can be used as a managed service.
func ValidServiceName(name string) bool {
	return serviceNamePattern.MatchString(name)
}
