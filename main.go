package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const defaultConfigPath = "config.yaml"

// deps is everything the commands share, built once after config and env
// load successfully.
type deps struct {
	config *Config
	env    *Env
	log    *zap.SugaredLogger
	store  *ProjectStore
	blob   *BlobStore
	diag   *Diagnostics
}

func main() {
	if err := rootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCommand() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "voicepilot",
		Short:         "Voice123 invitation pipeline: discover, synthesize, review, submit",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", defaultConfigPath, "config file path")

	build := func() (*deps, error) { return buildDeps(configPath) }

	root.AddCommand(
		runCommand(build),
		approveCommand(build),
		pickCommand(build),
		uploadCommand(build),
	)
	return root
}

func buildDeps(configPath string) (*deps, error) {
	env, err := LoadEnv()
	if err != nil {
		return nil, err
	}

	config, err := LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	config.ApplySelectorOverrides(env)
	if err := config.Validate(); err != nil {
		return nil, err
	}

	log, err := newLogger(config.DebugMode)
	if err != nil {
		return nil, err
	}

	store, err := NewProjectStore(env.SheetPath)
	if err != nil {
		return nil, err
	}

	blob, err := NewBlobStore(env, log)
	if err != nil {
		return nil, err
	}

	return &deps{
		config: config,
		env:    env,
		log:    log,
		store:  store,
		blob:   blob,
		diag:   NewDiagnostics(config.ErrorDir, log),
	}, nil
}

// signalContext cancels on SIGINT/SIGTERM so a mid-batch interrupt still
// runs the deferred cleanup.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func runCommand(build func() (*deps, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Discover invitations, extract scripts, and generate audio",
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := build()
			if err != nil {
				return err
			}
			defer d.log.Sync()

			ctx, cancel := signalContext()
			defer cancel()

			synth := NewSynthesizer(d.env, d.config.TempDir, d.log)
			pipeline := NewPipeline(d.config, d.env, d.log, d.store, d.blob, synth, d.diag)

			session := NewSession(d.config, d.env, d.log)
			if err := session.Connect(); err != nil {
				return err
			}
			defer session.Close()

			return pipeline.Run(ctx, session)
		},
	}
}

func approveCommand(build func() (*deps, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "approve",
		Short: "Review generated audio and approve or reject each project",
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := build()
			if err != nil {
				return err
			}
			defer d.log.Sync()

			return NewReviewer(d.store, d.log).Review()
		},
	}
}

func pickCommand(build func() (*deps, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "pick",
		Short: "List approved projects waiting for upload",
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := build()
			if err != nil {
				return err
			}
			defer d.log.Sync()

			return NewReviewer(d.store, d.log).ListApproved()
		},
	}
}

func uploadCommand(build func() (*deps, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "upload [project-id]",
		Short: "Submit approved projects' audio to the portal",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := build()
			if err != nil {
				return err
			}
			defer d.log.Sync()

			ctx, cancel := signalContext()
			defer cancel()

			auth := NewAuthenticator(d.config, d.env, d.log)
			transcoder := NewTranscoder(d.log)
			uploader := NewUploader(d.config, d.env, d.log, auth, d.diag, transcoder)

			onlyID := ""
			if len(args) == 1 {
				onlyID = args[0]
			}
			return UploadBatch(ctx, d.config, d.env, d.log, d.store, d.blob, uploader, onlyID)
		},
	}
}
