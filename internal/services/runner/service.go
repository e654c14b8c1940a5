// Package runner orchestrates a remote job: wake, act, notify.
package runner

import (
	"context"
	"fmt"
	"time"

	"github.com/fgeck/homelab-remote/internal/models"
	"github.com/fgeck/homelab-remote/internal/services/remote"
	"github.com/fgeck/homelab-remote/internal/services/telegram"
	"github.com/fgeck/homelab-remote/internal/services/wol"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Service defines the interface for the job runner.
type Service interface {
	Run(ctx context.Context, job models.Job) *models.JobReport
}

// Impl implements the runner Service interface.
type Impl struct {
	remoteSvc   remote.Service
	wolSvc      wol.Service
	telegramSvc telegram.Service
	telegramCfg *models.TelegramConfig
	logger      zerolog.Logger
	newRunID    func() string
}

// New creates a new runner service from the loaded configuration.
func New(logger zerolog.Logger, cfg *models.AppConfig) *Impl {
	return &Impl{
		remoteSvc:   remote.New(logger, cfg.Defaults, cfg.Service.Name),
		wolSvc:      wol.New(logger),
		telegramSvc: telegram.New(logger),
		telegramCfg: cfg.Telegram,
		logger:      logger,
		newRunID:    uuid.NewString,
	}
}

// NewWithServices creates a new runner service with custom services (for testing).
func NewWithServices(
	logger zerolog.Logger,
	remoteSvc remote.Service,
	wolSvc wol.Service,
	telegramSvc telegram.Service,
	telegramCfg *models.TelegramConfig,
	newRunID func() string,
) *Impl {
	return &Impl{
		remoteSvc:   remoteSvc,
		wolSvc:      wolSvc,
		telegramSvc: telegramSvc,
		telegramCfg: telegramCfg,
		logger:      logger,
		newRunID:    newRunID,
	}
}

func targetName(t models.ConnectionTarget) string {
	if t.Name != "" {
		return t.Name
	}
	return t.Host
}

// Run executes a job and always returns a report.
func (s *Impl) Run(ctx context.Context, job models.Job) *models.JobReport {
	report := &models.JobReport{
		RunID:     s.newRunID(),
		Action:    job.Action,
		Target:    targetName(job.Target),
		StartTime: time.Now(),
	}
	logger := s.logger.With().Str("run_id", report.RunID).Logger()

	logger.Info().
		Str("action", string(job.Action)).
		Str("target", report.Target).
		Msg("starting job")

	defer func() {
		report.Duration = time.Since(report.StartTime)
		if report.Succeeded {
			report.FailedStep = ""
		}

		logger.Info().
			Bool("succeeded", report.Succeeded).
			Str("failed_step", report.FailedStep).
			Dur("duration", report.Duration).
			Msg("job finished")

		if s.telegramCfg != nil {
			s.sendNotification(ctx, logger, job, report)
		}
	}()

	// Step 1: Wake-on-LAN (if requested and configured)
	if job.Wake && job.Target.WOL != nil {
		report.FailedStep = "wol"
		if err := s.runWOL(ctx, logger, job.Target.WOL); err != nil {
			report.Output = err.Error()
			return report
		}
	}

	// Step 2: the action itself
	report.FailedStep = string(job.Action)

	switch job.Action {
	case models.ActionExec:
		if job.Command == "" {
			report.Output = "no command given"
			return report
		}
		s.fromCommand(report, s.remoteSvc.RunCommand(ctx, job.Target, job.Command))
	case models.ActionEnsure:
		result := s.remoteSvc.EnsureServiceRunning(ctx, job.Target)
		report.Succeeded = result.Succeeded
		report.Output = result.Message
	case models.ActionStatus:
		s.fromCommand(report, s.remoteSvc.ServiceStatus(ctx, job.Target))
	case models.ActionStop:
		s.fromCommand(report, s.remoteSvc.StopService(ctx, job.Target))
	case models.ActionTest:
		s.fromCommand(report, s.remoteSvc.TestConnection(ctx, job.Target))
	default:
		report.Output = fmt.Sprintf("unknown action %q", job.Action)
	}

	return report
}

func (s *Impl) fromCommand(report *models.JobReport, result *models.CommandResult) {
	report.Succeeded = result.Succeeded
	report.Output = result.Output
}

func (s *Impl) runWOL(ctx context.Context, logger zerolog.Logger, cfg *models.WOLConfig) error {
	logger.Info().
		Str("mac", cfg.MACAddress).
		Str("target", cfg.PollAddr).
		Msg("sending Wake-on-LAN packet")

	result, err := s.wolSvc.Wake(ctx, *cfg)
	if err != nil {
		return fmt.Errorf("WOL failed: %w", err)
	}
	if result.Error != nil {
		return fmt.Errorf("WOL failed: %w", result.Error)
	}

	if !result.TargetReady && cfg.PollAddr != "" {
		return fmt.Errorf("target did not become ready after WOL")
	}

	logger.Info().
		Bool("packet_sent", result.PacketSent).
		Bool("target_ready", result.TargetReady).
		Int("attempts", result.Attempts).
		Dur("wait_duration", result.WaitDuration).
		Msg("WOL completed")

	return nil
}

func (s *Impl) sendNotification(
	ctx context.Context,
	logger zerolog.Logger,
	job models.Job,
	report *models.JobReport,
) {
	msg := models.TelegramMessage{
		Success:   report.Succeeded,
		RunID:     report.RunID,
		Action:    string(report.Action),
		Target:    report.Target,
		Host:      job.Target.Host,
		StartTime: report.StartTime,
		Duration:  report.Duration,
	}

	if report.Succeeded {
		msg.Output = report.Output
	} else {
		msg.FailedStep = report.FailedStep
		msg.ErrorMessage = report.Output
	}

	result, err := s.telegramSvc.SendNotification(ctx, *s.telegramCfg, msg)
	if err != nil {
		logger.Error().Err(err).Msg("failed to send Telegram notification")
		return
	}
	if result.Error != nil {
		logger.Error().Err(result.Error).Msg("failed to send Telegram notification")
		return
	}

	logger.Info().Msg("Telegram notification sent")
}
