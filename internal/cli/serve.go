package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wicaksono/opsagent/internal/config"
	"github.com/wicaksono/opsagent/internal/daemon"
	"github.com/wicaksono/opsagent/internal/logger"
	"github.com/wicaksono/opsagent/pkg/coreactions"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the opsagent daemon",
	Long: `Run the opsagent daemon in the foreground. The daemon serves the
chat endpoint, the confirmation API, and the WebSocket alert feed until
it receives SIGINT or SIGTERM.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

// collaborators is overridable so deployments embedding opsagent can
// wire their real infrastructure integrations behind the built-in
// actions.
var collaborators = coreactions.Collaborators{}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	log, err := logger.New(logger.Config{
		Level:     cfg.Logging.Level,
		File:      cfg.Logging.File,
		Console:   cfg.Logging.Console,
		Pretty:    cfg.Logging.Pretty,
		Redaction: cfg.Logging.Redaction,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer log.Close()

	d, err := daemon.New(cfg, log, collaborators)
	if err != nil {
		return err
	}

	return d.Run()
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.NewLoader(cfgFile).Load()
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	return cfg, nil
}
