package cli

import (
	"fmt"
	"os"

	"github.com/Brownie44l1/asl-api/internal/config"
	"github.com/Brownie44l1/asl-api/internal/history"
	"github.com/Brownie44l1/asl-api/internal/model"
	"github.com/cyclopcam/logs"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// app is the state shared by every command, filled in before a command runs.
type app struct {
	configPath string
	cfg        *config.Config
	log        logs.Log

	// open replaces model.Open when set
	open func() (*model.Classifier, error)
}

func NewRootCmd() *cobra.Command {
	return newRootCmd(&app{})
}

func newRootCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "asl-api",
		Short: "American Sign Language hand gesture classifier",
		Long: `asl-api classifies ASL hand gesture images with an exported
MobileNetV2 model, and keeps a history of predictions made from uploads,
the live camera feed, the word maker and the quiz.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Load .env file if present (ignore errors)
			_ = godotenv.Load()
			return a.setup()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.log != nil {
				a.log.Close()
			}
		},
	}
	cmd.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "Config file (default: asl.yaml in the working directory)")

	cmd.AddCommand(newServeCmd(a))
	cmd.AddCommand(newPredictCmd(a))
	cmd.AddCommand(newHistoryCmd(a))

	return cmd
}

func (a *app) setup() error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	wd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to get working directory: %w", err)
	}
	cfg.ResolvePaths(wd)
	a.cfg = cfg

	if a.log == nil {
		a.log, err = logs.NewLog()
		if err != nil {
			return err
		}
	}
	return nil
}

func (a *app) loader() *model.Loader {
	if a.open != nil {
		return model.NewLoader(a.open)
	}
	return model.NewLoader(func() (*model.Classifier, error) {
		return model.Open(a.cfg.Model, a.log)
	})
}

func (a *app) historyStore() *history.Store {
	return history.New(a.log, history.Options{
		File:        a.cfg.History.File,
		CaptureRoot: a.cfg.History.CaptureRoot,
	})
}
