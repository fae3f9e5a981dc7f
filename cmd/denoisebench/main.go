package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"imrestore/pkg/config"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "denoisebench",
		Short:        "Benchmark image denoisers on a synthetic phantom",
		SilenceUsage: true,
	}
	root.AddCommand(newRunCmd(), newInitConfigCmd())
	return root
}

type runFlags struct {
	configPath string
	denoiser   string
	cycleSpin  bool
	verbose    bool
	workers    int
	saveDir    string
}

func newRunCmd() *cobra.Command {
	var f runFlags
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Add noise to a phantom, denoise it and report the quality of every result",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadConfig(f.configPath)
			if err != nil {
				return err
			}
			if err := applyFlags(cmd, cfg, f); err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			if cfg.Output.Verbose {
				logrus.SetLevel(logrus.DebugLevel)
			}

			report, err := runBench(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			printResults(cmd.OutOrStdout(), cfg, report)
			return nil
		},
	}

	cmd.Flags().StringVarP(&f.configPath, "config", "c", "denoisebench.yaml", "Configuration file (defaults apply when it does not exist)")
	cmd.Flags().StringVarP(&f.denoiser, "denoiser", "d", "", "Denoiser to run: wavelet, tv, bregman, bilateral, nlmeans or all")
	cmd.Flags().BoolVar(&f.cycleSpin, "cycle-spin", false, "Wrap every denoiser in cycle spinning")
	cmd.Flags().IntVar(&f.workers, "workers", 0, "Concurrent cycle spinning shifts (0: all cores)")
	cmd.Flags().StringVar(&f.saveDir, "save-dir", "", "Directory to save JPEG renderings of every image")
	cmd.Flags().BoolVarP(&f.verbose, "verbose", "v", false, "Enable debug logging")
	return cmd
}

// applyFlags lets explicitly set flags override the configuration file.
func applyFlags(cmd *cobra.Command, cfg *config.Config, f runFlags) error {
	flags := cmd.Flags()
	if flags.Changed("denoiser") {
		switch f.denoiser {
		case "all":
			cfg.Bench.Denoisers = append([]string(nil), config.Denoisers...)
		case "":
			return fmt.Errorf("empty --denoiser")
		default:
			cfg.Bench.Denoisers = []string{f.denoiser}
		}
	}
	if flags.Changed("cycle-spin") {
		cfg.CycleSpin.Enabled = f.cycleSpin
	}
	if flags.Changed("workers") {
		cfg.CycleSpin.NumWorkers = f.workers
	}
	if flags.Changed("save-dir") {
		cfg.Output.SaveDir = f.saveDir
	}
	if flags.Changed("verbose") {
		cfg.Output.Verbose = f.verbose
	}
	return nil
}

func newInitConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init-config <path>",
		Short: "Write a configuration file holding the default values",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.CreateDefaultConfigFile(args[0]); err != nil {
				return err
			}
			logrus.WithField("path", args[0]).Info("Default configuration written")
			return nil
		},
	}
}
