package commands

import (
	"errors"
	"fmt"
	"io"
	"reflect"
	"runtime"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/conduit-lang/metagraph/internal/cli/ui"
	"github.com/conduit-lang/metagraph/pkg/metamodel"
)

var (
	// Version information - set at build time
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
	GoVersion = "unknown"
)

// App is the domain the CLI is built for: the classes it can load and the
// interfaces that mark system properties
type App struct {
	Catalog *metamodel.TypeCatalog

	// SystemInterfaces maps the names accepted in metadata.system_interfaces to
	// interface types
	SystemInterfaces map[string]reflect.Type

	// DefaultClasses are loaded when metadata.classes is empty
	DefaultClasses []string
}

type rootOptions struct {
	configPath string
	noColor    bool
	logLevel   string
}

// NewRootCommand creates the root command
func NewRootCommand(app *App) *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:   "metagraph",
		Short: "Metadata graph builder and development server",
		Long: color.CyanString(`Metagraph - metadata graphs for Go domain models

Metagraph reads the struct tags and marker fields of your domain types and builds
an in-memory graph of classes, properties, associations and validation rules.

Features:
  • Two-pass loading with forward references and inverse links
  • Storage tiers backed by SQL datasources
  • JSON and YAML snapshots, published over redis
  • Development server with live reload`),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "Config file (default ./metagraph.yaml)")
	flags.BoolVar(&opts.noColor, "no-color", false, "Disable colored output")
	flags.StringVar(&opts.logLevel, "log-level", "", "Override log.level (debug, info, warn, error)")

	rootCmd.AddCommand(NewVersionCommand())
	rootCmd.AddCommand(newInitCommand(app, opts))
	rootCmd.AddCommand(newInspectCommand(app, opts))
	rootCmd.AddCommand(newCheckCommand(app, opts))
	rootCmd.AddCommand(newExportCommand(app, opts))
	rootCmd.AddCommand(newDevCommand(app, opts))

	return rootCmd
}

// NewVersionCommand creates the version command
func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long:  "Display the metagraph version, Git commit, build date, and Go version",
		Run: func(cmd *cobra.Command, args []string) {
			goVer := GoVersion
			if goVer == "unknown" {
				goVer = runtime.Version()
			}

			out := cmd.OutOrStdout()
			titleColor := color.New(color.FgCyan, color.Bold)
			valueColor := color.New(color.FgWhite)

			titleColor.Fprint(out, "Metagraph version: ")
			valueColor.Fprintln(out, Version)

			titleColor.Fprint(out, "Git commit: ")
			valueColor.Fprintln(out, GitCommit)

			titleColor.Fprint(out, "Build date: ")
			valueColor.Fprintln(out, BuildDate)

			titleColor.Fprint(out, "Go version: ")
			valueColor.Fprintln(out, goVer)
		},
	}
}

// Execute runs the root command
func Execute(app *App) error {
	rootCmd := NewRootCommand(app)
	if err := rootCmd.Execute(); err != nil {
		noColor, _ := rootCmd.PersistentFlags().GetBool("no-color")
		renderError(rootCmd.ErrOrStderr(), err, noColor)
		return err
	}
	return nil
}

// configError marks a configuration that could not be read or applied
type configError struct {
	err error
}

func (e *configError) Error() string { return e.err.Error() }
func (e *configError) Unwrap() error { return e.err }

// classNotFoundError is returned by inspect for an unknown class name
type classNotFoundError struct {
	name        string
	suggestions []string
}

func (e *classNotFoundError) Error() string {
	return fmt.Sprintf("class %s is not loaded", e.name)
}

func renderError(w io.Writer, err error, noColor bool) {
	var (
		loadErr     *metamodel.LoadError
		cfgErr      *configError
		notFoundErr *classNotFoundError
	)
	switch {
	case errors.As(err, &loadErr):
		fmt.Fprintln(w, ui.LoadError(err, noColor))
	case errors.As(err, &cfgErr):
		fmt.Fprintln(w, ui.ConfigError(cfgErr.Error(), noColor))
	case errors.As(err, &notFoundErr):
		fmt.Fprintln(w, ui.ClassNotFoundError(notFoundErr.name, notFoundErr.suggestions, noColor))
	default:
		errorColor := color.New(color.FgRed, color.Bold)
		if noColor {
			errorColor.DisableColor()
		}
		errorColor.Fprintf(w, "Error: %v\n", err)
	}
}
