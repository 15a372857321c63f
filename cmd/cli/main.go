package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/cochaviz/ebpfstage/arch"
	"github.com/cochaviz/ebpfstage/config"
	"github.com/cochaviz/ebpfstage/internal/artifacts"
	"github.com/cochaviz/ebpfstage/internal/build"
	"github.com/cochaviz/ebpfstage/internal/logging"
)

const defaultLogLevel = "info"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cli := newApp(os.Stdout, os.Stderr)
	slog.SetDefault(cli.logger)

	root := newRootCommand(cli)
	if err := root.ExecuteContext(ctx); err != nil {
		if errors.Is(err, context.Canceled) || ctx.Err() != nil {
			cli.logger.Warn("command interrupted", "error", err)
			os.Exit(130)
		}
		cli.logger.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

// app carries the state shared by every command.
type app struct {
	stdout io.Writer
	stderr io.Writer

	levelVar slog.LevelVar
	logger   *slog.Logger

	logLevel   string
	logFormat  string
	configPath string
}

func newApp(stdout, stderr io.Writer) *app {
	a := &app{stdout: stdout, stderr: stderr}
	a.levelVar.Set(slog.LevelInfo)
	a.logger = logging.NewCLI(stderr, &a.levelVar)
	return a
}

// configureLogging applies --log-level and --log-format. Cargo-formatted logs
// go to stdout, the only stream the enclosing build reads directives from.
func (a *app) configureLogging() error {
	level, err := logging.ParseLevel(a.logLevel)
	if err != nil {
		return err
	}
	mode, err := logging.ParseMode(a.logFormat)
	if err != nil {
		return err
	}
	a.levelVar.Set(level)

	out := a.stderr
	if mode == logging.ModeCargo {
		out = a.stdout
	}
	a.logger = logging.New(mode, out, &a.levelVar)
	return nil
}

func newRootCommand(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "ebpfstage",
		Short:         "Stage the eBPF artifacts required by the integration tests",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	root.SetOut(a.stdout)
	root.SetErr(a.stderr)

	root.PersistentFlags().StringVar(&a.logLevel, "log-level", defaultLogLevel, "Set log verbosity (debug, info, warning, error)")
	root.PersistentFlags().StringVar(&a.logFormat, "log-format", "cli", "Log format (cli, json, cargo)")
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "Pipeline config file (.yaml, .yml, .json or .jsonc)")
	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		return a.configureLogging()
	}

	root.AddCommand(
		newBuildCommand(a),
		newTargetCommand(a),
		newPlanCommand(a),
		newVerifyCommand(a),
		newConfigCommand(),
	)
	return root
}

// pipelineOptions override the environment the enclosing build provides.
type pipelineOptions struct {
	mode        string
	outDir      string
	manifestDir string
	endian      string
	arch        string
}

func (o *pipelineOptions) register(flags *pflag.FlagSet) {
	flags.StringVar(&o.mode, "mode", "", fmt.Sprintf("Build mode (%s or %s); defaults to $%s", build.ModeStub, build.ModeFull, config.ModeVar))
	flags.StringVar(&o.outDir, "out-dir", "", "Output directory; defaults to $"+config.OutDirVar)
	flags.StringVar(&o.manifestDir, "manifest-dir", "", "Directory of the consuming package; defaults to $"+config.ManifestDirVar)
	flags.StringVar(&o.endian, "endian", "", "Target endianness (big or little); defaults to $"+config.EndianVar)
	flags.StringVar(&o.arch, "arch", "", "Target architecture; defaults to $"+config.ArchVar)
}

// overrides maps the flags that were set to the variables they replace.
func (o *pipelineOptions) overrides(flags *pflag.FlagSet) (map[string]string, error) {
	values := make(map[string]string)
	if flags.Changed("mode") {
		mode, err := build.ParseMode(strings.TrimSpace(o.mode))
		if err != nil {
			return nil, err
		}
		values[config.ModeVar] = fmt.Sprint(mode == build.ModeFull)
	}
	for name, key := range map[string]string{
		"out-dir":      config.OutDirVar,
		"manifest-dir": config.ManifestDirVar,
		"endian":       config.EndianVar,
		"arch":         config.ArchVar,
	} {
		if flags.Changed(name) {
			value, err := flags.GetString(name)
			if err != nil {
				return nil, err
			}
			values[key] = value
		}
	}
	return values, nil
}

func (a *app) loadPipeline(cmd *cobra.Command, opts *pipelineOptions) (config.Pipeline, error) {
	file, err := config.LoadFile(a.configPath)
	if err != nil {
		return config.Pipeline{}, err
	}
	overrides, err := opts.overrides(cmd.Flags())
	if err != nil {
		return config.Pipeline{}, err
	}
	env, err := config.LoadEnvironment(config.Overlay(overrides, os.LookupEnv))
	if err != nil {
		return config.Pipeline{}, err
	}
	return config.Pipeline{
		Environment: env,
		File:        file,
		Logger:      a.logger,
		Directives:  a.stdout,
		ToolOutput:  a.stderr,
	}, nil
}

func newBuildCommand(a *app) *cobra.Command {
	var opts pipelineOptions

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build or stub every artifact into the output directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			pipeline, err := a.loadPipeline(cmd, &opts)
			if err != nil {
				return err
			}
			cmdLogger := a.logger.With("command", "build", "mode", pipeline.Environment.Mode)

			result, err := pipeline.Build(cmd.Context())
			if err != nil {
				cmdLogger.Error("build failed", "error", err)
				return err
			}
			cmdLogger.Info("build completed", "out_dir", result.Plan.OutDir, "artifacts", len(result.Artifacts))
			return nil
		},
	}
	opts.register(cmd.Flags())
	return cmd
}

func newTargetCommand(a *app) *cobra.Command {
	var endian, architecture string

	cmd := &cobra.Command{
		Use:   "target",
		Short: "Print the BPF target triple and architecture define",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if endian == "" {
				endian = os.Getenv(config.EndianVar)
			}
			if endian == "" {
				endian = string(arch.HostEndianness())
			}
			if architecture == "" {
				architecture = os.Getenv(config.ArchVar)
			}
			if architecture == "" {
				architecture = arch.HostArchitecture()
			}

			target, err := arch.ResolveTarget(endian)
			if err != nil {
				return err
			}
			a.logger.Debug("resolved target", "endian", endian, "arch", architecture)
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", target.Triple(), arch.ArchMacro(architecture))
			return nil
		},
	}
	cmd.Flags().StringVar(&endian, "endian", "", "Target endianness; defaults to $"+config.EndianVar+" or the host")
	cmd.Flags().StringVar(&architecture, "arch", "", "Target architecture; defaults to $"+config.ArchVar+" or the host")
	return cmd
}

func newPlanCommand(a *app) *cobra.Command {
	var opts pipelineOptions

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "List every file the pipeline would populate",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			pipeline, err := a.loadPipeline(cmd, &opts)
			if err != nil {
				return err
			}
			pipeline.Directives = io.Discard

			plan, err := pipeline.Plan(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "# %s build for %s\n", plan.Mode, plan.Triple())
			for _, path := range plan.Destinations() {
				fmt.Fprintln(out, path)
			}
			return nil
		},
	}
	opts.register(cmd.Flags())
	return cmd
}

func newVerifyCommand(a *app) *cobra.Command {
	var opts pipelineOptions

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Check the output directory against the size the mode promises",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			pipeline, err := a.loadPipeline(cmd, &opts)
			if err != nil {
				return err
			}
			pipeline.Directives = io.Discard

			plan, err := pipeline.Plan(cmd.Context())
			if err != nil {
				return err
			}
			if err := artifacts.Verify(plan.Destinations(), plan.Mode == build.ModeStub); err != nil {
				return err
			}
			a.logger.Info("output directory verified", "mode", plan.Mode, "files", len(plan.Destinations()))
			return nil
		},
	}
	opts.register(cmd.Flags())
	return cmd
}

func newConfigCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the default pipeline config file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := cmd.OutOrStdout().Write(config.DefaultFileContents())
			return err
		},
	}
}
