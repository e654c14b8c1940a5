package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/fgeck/homelab-remote/internal/catalog"
	"github.com/fgeck/homelab-remote/internal/models"
	"github.com/fgeck/homelab-remote/internal/services/runner"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var errJobFailed = errors.New("job did not succeed")

var presetID string

var execCmd = &cobra.Command{
	Use:   "exec [flags] [command...]",
	Short: "Run a shell command on a target",
	Long: `Run a shell command on a target and print its output.

A single argument is passed to the remote shell as is, so pipes and
redirections inside it work. Several arguments are quoted one by one and
joined, keeping their boundaries. Any output on stderr marks the run as
failed unless defaults.classification is exit_status. Use --preset to run
a command from the built-in catalog.`,
	Example: `  homelab-remote exec -t web01 -- df -h
  homelab-remote exec -t web01 -- ls "my dir"
  homelab-remote exec -t web01 'journalctl -u apache2 | tail -n 20'
  homelab-remote exec --host 192.168.1.100 -u ubuntu --ask-password uptime
  homelab-remote exec -t web01 --preset docker-ps`,
	RunE: runExec,
}

var ensureCmd = &cobra.Command{
	Use:   "ensure",
	Short: "Make sure the web server is running",
	Long: `Start the web server service and confirm it is active:
1. Wake-on-LAN (if --wake and configured)
2. sudo systemctl start <service>
3. sudo service <service> start (only if step 2 failed)
4. systemctl is-active <service> must report "active"
5. Send Telegram notification (if configured)`,
	RunE: actionRunner(models.ActionEnsure),
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the web server service status",
	RunE:  actionRunner(models.ActionStatus),
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the web server service",
	RunE:  actionRunner(models.ActionStop),
}

var testCmd = &cobra.Command{
	Use:   "test",
	Short: "Check that a target accepts SSH sessions",
	RunE:  actionRunner(models.ActionTest),
}

func init() {
	for _, cmd := range []*cobra.Command{execCmd, ensureCmd, statusCmd, stopCmd, testCmd} {
		addTargetFlags(cmd)
	}
	execCmd.Flags().StringVar(&presetID, "preset", "", "run a catalog preset instead of a command")
}

func runExec(cmd *cobra.Command, args []string) error {
	command := shellJoin(args)

	switch {
	case presetID != "" && command != "":
		return errors.New("use either --preset or a command, not both")
	case presetID != "":
		cat, err := catalog.Load()
		if err != nil {
			return err
		}
		preset, err := cat.Lookup(presetID)
		if err != nil {
			return err
		}
		command = preset.Command
	case command == "":
		return errors.New("a command or --preset is required")
	}

	return runJob(models.Job{Action: models.ActionExec, Command: command})
}

// shellJoin builds a remote command line from args. One argument is taken
// verbatim; with more, each is quoted for a POSIX shell.
func shellJoin(args []string) string {
	if len(args) == 1 {
		return args[0]
	}

	quoted := make([]string, len(args))
	for i, a := range args {
		quoted[i] = shellQuote(a)
	}
	return strings.Join(quoted, " ")
}

func shellQuote(s string) string {
	if s == "" {
		return "''"
	}
	if strings.IndexFunc(s, func(r rune) bool { return !isShellSafe(r) }) < 0 {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func isShellSafe(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	}
	return strings.ContainsRune("-_./=:,+@%", r)
}

func actionRunner(action models.Action) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		return runJob(models.Job{Action: action})
	}
}

func runJob(job models.Job) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	target, err := resolveTarget(cfg)
	if err != nil {
		return err
	}
	job.Target = target
	job.Wake = wake

	if wake && target.WOL == nil {
		log.Warn().Str("target", target.Name).Msg("--wake given but target has no wol configured")
	}

	ctx, cancel := signalContext()
	defer cancel()

	runnerSvc := runner.New(log.Logger, cfg)
	report := runnerSvc.Run(ctx, job)

	if report.Output != "" {
		fmt.Print(report.Output)
		if !strings.HasSuffix(report.Output, "\n") {
			fmt.Println()
		}
	}

	if !report.Succeeded {
		log.Error().
			Str("run_id", report.RunID).
			Str("failed_step", report.FailedStep).
			Msg("job failed")
		return errJobFailed
	}

	return nil
}
