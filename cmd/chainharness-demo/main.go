// Command chainharness-demo assembles a scenario from a YAML description and
// runs it, following cmd/synnergy's rootCmd/subcommand shape. It has no
// concrete deployment backend of its own: --fake drives the run against
// runner/fakedeploy, the in-memory reference deployer.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"chainharness/chainlog"
	"chainharness/harnessconfig"
	"chainharness/runner"
	"chainharness/runner/fakedeploy"
)

func main() {
	_ = godotenv.Load()

	rootCmd := &cobra.Command{Use: "chainharness-demo"}
	rootCmd.AddCommand(runCmd())
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runCmd() *cobra.Command {
	var (
		scenarioPath string
		fake         bool
		tickInterval time.Duration
		drainWindow  time.Duration
		env          string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "run a scenario description against a deployer",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !fake {
				return fmt.Errorf("chainharness-demo: no concrete deployment backend is wired in; pass --fake")
			}

			hc, err := harnessconfig.Load(env)
			if err != nil {
				return err
			}
			log, err := chainlog.New(chainlog.Config{Level: hc.Logging.Level, JSON: hc.Logging.JSON, File: hc.Logging.File})
			if err != nil {
				return err
			}

			desc, err := harnessconfig.LoadScenarioDescription(scenarioPath)
			if err != nil {
				return err
			}

			effectiveDrain := drainWindow
			if effectiveDrain <= 0 {
				effectiveDrain = hc.Runner.DrainWindow
			}

			fc := fakedeploy.Config{
				TickInterval:     tickInterval,
				ReadinessTimeout: hc.EffectiveReadinessTimeout(),
				Logger:           log,
			}
			result, err := runScenario(cmd, desc, log, fc, effectiveDrain)
			if err != nil {
				return err
			}

			if result.Success {
				log.Info("chainharness-demo: run succeeded")
				return nil
			}
			log.WithField("failures", result.Failures.Error()).Error("chainharness-demo: run failed")
			return fmt.Errorf("run failed: %w", result.Failures)
		},
	}

	cmd.Flags().StringVar(&scenarioPath, "scenario", "", "path to a scenario description YAML file")
	cmd.Flags().BoolVar(&fake, "fake", false, "drive the run against the in-memory fake deployer")
	cmd.Flags().DurationVar(&tickInterval, "tick-interval", 200*time.Millisecond, "fake deployer block-minting interval")
	cmd.Flags().DurationVar(&drainWindow, "drain-window", 0, "override the runner's drain window (0 uses config)")
	cmd.Flags().StringVar(&env, "env", "", "harness config environment overlay name")
	cmd.MarkFlagRequired("scenario")

	return cmd
}

func runScenario(cmd *cobra.Command, desc *harnessconfig.ScenarioDescription, log *logrus.Logger, fc fakedeploy.Config, drainWindow time.Duration) (*runner.Result, error) {
	ctx := cmd.Context()
	if desc.HasChaos() {
		sc, err := harnessconfig.BuildControlScenario(desc)
		if err != nil {
			return nil, err
		}
		dep := fakedeploy.NewControlDeployer(fc)
		return runner.Run(ctx, sc, dep, runner.Options{DrainWindow: drainWindow, HasChaos: true, Logger: log})
	}

	sc, err := harnessconfig.BuildScenario(desc)
	if err != nil {
		return nil, err
	}
	dep := fakedeploy.NewDeployer(fc)
	return runner.Run(ctx, sc, dep, runner.Options{DrainWindow: drainWindow, Logger: log})
}
