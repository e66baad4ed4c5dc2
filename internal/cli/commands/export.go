package commands

import (
	"fmt"
	"os"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/conduit-lang/metagraph/internal/cli/ui"
	"github.com/conduit-lang/metagraph/internal/export"
)

type exportOptions struct {
	format  string
	output  string
	publish bool
}

func newExportCommand(app *App, root *rootOptions) *cobra.Command {
	opts := &exportOptions{}

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write a snapshot of the loaded metadata",
		Long: `Load the metadata and write it as a JSON or YAML snapshot.

With --publish the snapshot is also stored in redis (redis.key) and announced on
redis.channel.

Examples:
  metagraph export
  metagraph export --format yaml --output metadata.yaml
  metagraph export --publish`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(cmd, app, root, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.format, "format", "f", "json", "Output format (json, yaml)")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "Write to a file instead of stdout")
	cmd.Flags().BoolVar(&opts.publish, "publish", false, "Publish the snapshot to redis")

	return cmd
}

func runExport(cmd *cobra.Command, app *App, root *rootOptions, opts *exportOptions) error {
	format, err := export.ParseFormat(opts.format)
	if err != nil {
		return err
	}

	env, err := newEnvironment(app, root)
	if err != nil {
		return err
	}
	defer env.close()

	session, err := env.load(cmd.Context())
	if err != nil {
		return err
	}
	doc, err := export.Build(session)
	if err != nil {
		return err
	}

	if opts.output == "" {
		if err := export.Write(cmd.OutOrStdout(), doc, format); err != nil {
			return err
		}
	} else {
		f, err := os.Create(opts.output)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", opts.output, err)
		}
		if err := export.Write(f, doc, format); err != nil {
			f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return fmt.Errorf("failed to write %s: %w", opts.output, err)
		}
		ui.WriteSuccess(cmd.OutOrStdout(), fmt.Sprintf("Wrote %d classes to %s", len(doc.Classes), opts.output), root.noColor)
	}

	if !opts.publish {
		return nil
	}
	publisher, client, err := newPublisher(env)
	if err != nil {
		return err
	}
	defer client.Close()

	receivers, err := publisher.Publish(cmd.Context(), doc)
	if err != nil {
		return err
	}
	// Keep stdout clean for the snapshot itself
	w := cmd.OutOrStdout()
	if opts.output == "" {
		w = cmd.ErrOrStderr()
	}
	ui.WriteSuccess(w, fmt.Sprintf("Published snapshot %s to %s (%d subscribers)", doc.ID, env.cfg.Redis.Key, receivers), root.noColor)
	return nil
}

// newPublisher connects to redis.addr. The caller closes the client.
func newPublisher(env *environment) (*export.Publisher, *redis.Client, error) {
	if env.cfg.Redis.Addr == "" {
		return nil, nil, &configError{err: fmt.Errorf("redis.addr is not set")}
	}
	client := redis.NewClient(&redis.Options{Addr: env.cfg.Redis.Addr})
	publisher, err := export.NewPublisher(export.PublisherConfig{
		Client:  client,
		Key:     env.cfg.Redis.Key,
		Channel: env.cfg.Redis.Channel,
	})
	if err != nil {
		client.Close()
		return nil, nil, &configError{err: err}
	}
	return publisher, client, nil
}
