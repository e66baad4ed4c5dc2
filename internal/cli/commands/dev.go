package commands

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/conduit-lang/metagraph/internal/devserver"
	"github.com/conduit-lang/metagraph/pkg/metamodel"
)

type devOptions struct {
	addr      string
	noBundler bool
}

func newDevCommand(app *App, root *rootOptions) *cobra.Command {
	opts := &devOptions{}

	cmd := &cobra.Command{
		Use:   "dev",
		Short: "Start the development server",
		Long: `Start the development server.

The server loads the metadata, starts the front-end bundler and serves:
  /metadata             snapshot of the current session (?format=yaml)
  /metadata/classes/ID  one class
  /healthz              server and bundler state
  /__reload             websocket with live reload notifications

Changes to metagraph.yaml reload the metadata. A failed reload keeps the previous
session and is reported to connected browsers.

Examples:
  metagraph dev
  metagraph dev --addr localhost:9000 --no-bundler`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDev(cmd, app, root, opts)
		},
	}

	cmd.Flags().StringVar(&opts.addr, "addr", "", "Listen address (overrides devserver.addr)")
	cmd.Flags().BoolVar(&opts.noBundler, "no-bundler", false, "Do not start the bundler")

	return cmd
}

func runDev(cmd *cobra.Command, app *App, root *rootOptions, opts *devOptions) error {
	env, err := newEnvironment(app, root)
	if err != nil {
		return err
	}
	defer env.close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	server, cleanup, err := newDevServer(env, opts)
	if err != nil {
		return err
	}
	defer cleanup()

	infoColor := color.New(color.FgCyan)
	if root.noColor {
		infoColor.DisableColor()
	}
	infoColor.Fprintf(cmd.OutOrStdout(), "Starting dev server on %s (Ctrl+C to stop)\n", devAddr(env, opts))

	return server.Run(ctx)
}

func devAddr(env *environment, opts *devOptions) string {
	if opts.addr != "" {
		return opts.addr
	}
	return env.cfg.DevServer.Addr
}

// newDevServer wires the dev server from the environment. cleanup releases the
// redis client when snapshots are published.
func newDevServer(env *environment, opts *devOptions) (*devserver.Server, func(), error) {
	cfg := env.cfg.DevServer

	serverOpts := devserver.Options{
		Addr:     devAddr(env, opts),
		Holder:   metamodel.NewHolder(env.newLoader()),
		Classes:  env.reloadClasses,
		Debounce: cfg.Debounce,
		Logger:   env.logger,
	}
	if env.cfg.Path != "" {
		serverOpts.WatchFiles = []string{env.cfg.Path}
	}
	if !opts.noBundler {
		serverOpts.Bundler = &devserver.SupervisorConfig{
			Dir:            cfg.Dir,
			Command:        cfg.Command,
			BundlerConfig:  cfg.BundlerConfig,
			Port:           cfg.BundlerPort,
			Options:        cfg.Options,
			Env:            cfg.Env,
			SuccessPattern: cfg.SuccessPattern,
			FailurePattern: cfg.FailurePattern,
			StartTimeout:   cfg.StartTimeout,
		}
	}

	cleanup := func() {}
	if env.cfg.Redis.Addr != "" {
		publisher, client, err := newPublisher(env)
		if err != nil {
			return nil, nil, err
		}
		serverOpts.Publisher = publisher
		cleanup = func() {
			if err := client.Close(); err != nil {
				env.logger.Warn("failed to close redis client", zap.Error(err))
			}
		}
	}

	server, err := devserver.New(serverOpts)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("failed to create dev server: %w", err)
	}
	return server, cleanup, nil
}
