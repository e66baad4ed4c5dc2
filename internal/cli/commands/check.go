package commands

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"

	"github.com/conduit-lang/metagraph/internal/cli/ui"
	"github.com/conduit-lang/metagraph/internal/datastore"
	"github.com/conduit-lang/metagraph/pkg/metamodel"
)

type checkOptions struct {
	timings bool
	noPing  bool
}

func newCheckCommand(app *App, root *rootOptions) *cobra.Command {
	opts := &checkOptions{}

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Load the metadata and report configuration errors",
		Long: `Load every configured class and report the first fatal configuration error,
such as an association to a class that is not loaded or an inverse link that
does not point back. Then ping the SQL datasources of the declared stores and
look up the table of every entity kept in them.

Examples:
  metagraph check
  metagraph check --timings
  metagraph check --no-ping`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(cmd, app, root, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.timings, "timings", false, "Show the duration of each load phase")
	cmd.Flags().BoolVar(&opts.noPing, "no-ping", false, "Skip pinging the SQL datasources")

	return cmd
}

func runCheck(cmd *cobra.Command, app *App, root *rootOptions, opts *checkOptions) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	env, err := newEnvironment(app, root)
	if err != nil {
		return err
	}
	defer env.close()

	var recorder *tracetest.SpanRecorder
	var loaderOpts []metamodel.Option
	if opts.timings {
		recorder = tracetest.NewSpanRecorder()
		tp := newTracerProvider(ctx, recorder)
		defer tp.Shutdown(context.Background())
		loaderOpts = append(loaderOpts, metamodel.WithTracer(tp.Tracer("github.com/conduit-lang/metagraph")))
	}

	session, loadErr := env.load(ctx, loaderOpts...)
	if recorder != nil {
		renderTimings(out, recorder.Ended(), root.noColor)
	}
	if loadErr != nil {
		return loadErr
	}
	ui.WriteSuccess(out, fmt.Sprintf("Loaded %d classes (session %s)", session.Count(), session.ID()), root.noColor)

	if opts.noPing {
		return nil
	}

	var failures []string
	unreachable := make(map[string]bool)
	for _, store := range env.stores.SQLStores() {
		err := ui.WithSpinner(out, fmt.Sprintf("Ping store %s (%s)", store.Name(), store.Driver()), root.noColor, func() error {
			pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			return store.Ping(pingCtx)
		})
		if err != nil {
			unreachable[store.Name()] = true
			failures = append(failures, fmt.Sprintf("store %s is unreachable", store.Name()))
			fmt.Fprint(out, ui.Warning(err.Error(), root.noColor))
			continue
		}
		if version, err := store.ServerVersion(ctx); err == nil {
			fmt.Fprintf(out, "  %s %s\n", store.Driver(), version)
		}
	}

	for _, c := range session.Classes() {
		store, ok := c.Store().(*datastore.SQLStore)
		if !ok || !c.Markers().Entity || unreachable[store.Name()] {
			continue
		}
		table := datastore.TableName(c.Name())
		exists, err := store.TableExists(ctx, table)
		switch {
		case err != nil:
			failures = append(failures, err.Error())
		case !exists:
			failures = append(failures, fmt.Sprintf("table %s of %s is missing in store %s", table, c.Name(), store.Name()))
		}
	}

	if len(failures) > 0 {
		return fmt.Errorf("check failed: %s", strings.Join(failures, "; "))
	}
	return nil
}

func newTracerProvider(ctx context.Context, processor sdktrace.SpanProcessor) *sdktrace.TracerProvider {
	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceNameKey.String("metagraph")))
	if err != nil {
		res = resource.Default()
	}
	return sdktrace.NewTracerProvider(
		sdktrace.WithSpanProcessor(processor),
		sdktrace.WithResource(res),
	)
}

func renderTimings(w io.Writer, spans []sdktrace.ReadOnlySpan, noColor bool) {
	ui.Header(w, "Load phases", noColor)

	table := ui.NewTable(w, []string{"SPAN", "DURATION", "STATUS"}, noColor)
	for _, s := range spans {
		status := "ok"
		if s.Status().Code == codes.Error {
			status = "error"
		}
		table.AddRow(s.Name(), s.EndTime().Sub(s.StartTime()).Round(time.Microsecond).String(), status)
	}
	table.Render()
	fmt.Fprintln(w)
}
