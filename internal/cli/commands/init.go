package commands

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/AlecAivazis/survey/v2"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/conduit-lang/metagraph/internal/cli/config"
	"github.com/conduit-lang/metagraph/internal/cli/ui"
)

// scaffold is the layout written by init. Durations stay strings so the file reads
// the way a person would write it.
type scaffold struct {
	Metadata  config.MetadataConfig `yaml:"metadata"`
	Log       config.LogConfig      `yaml:"log"`
	DevServer scaffoldDevServer     `yaml:"devserver"`
	Redis     config.RedisConfig    `yaml:"redis"`
}

type scaffoldDevServer struct {
	Addr          string `yaml:"addr"`
	Dir           string `yaml:"dir"`
	BundlerConfig string `yaml:"bundler_config"`
	BundlerPort   int    `yaml:"bundler_port"`
	StartTimeout  string `yaml:"start_timeout"`
	Debounce      string `yaml:"debounce"`
}

type initOptions struct {
	yes   bool
	force bool
}

func newInitCommand(app *App, root *rootOptions) *cobra.Command {
	opts := &initOptions{}

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a metagraph.yaml",
		Long: `Create a metagraph.yaml in the current directory.

You will be asked which classes to load, the log format and the port of the
bundler. Use --yes to accept the defaults without prompting.

Examples:
  metagraph init
  metagraph init --yes
  metagraph init --config build/metagraph.yaml --force`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(cmd, app, root, opts)
		},
	}

	cmd.Flags().BoolVarP(&opts.yes, "yes", "y", false, "Accept the defaults without prompting")
	cmd.Flags().BoolVar(&opts.force, "force", false, "Overwrite an existing config file")

	return cmd
}

func defaultScaffold(app *App) scaffold {
	return scaffold{
		Metadata: config.MetadataConfig{Classes: append([]string(nil), app.DefaultClasses...)},
		Log:      config.LogConfig{Level: "info", Format: "console"},
		DevServer: scaffoldDevServer{
			Addr:          "localhost:8090",
			Dir:           ".",
			BundlerConfig: "webpack.config.js",
			BundlerPort:   8080,
			StartTimeout:  "2m",
			Debounce:      "200ms",
		},
		Redis: config.RedisConfig{Channel: "metagraph:reload", Key: "metagraph:snapshot"},
	}
}

func runInit(cmd *cobra.Command, app *App, root *rootOptions, opts *initOptions) error {
	path := root.configPath
	if path == "" {
		path = config.FileName
	}

	if _, err := os.Stat(path); err == nil && !opts.force {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	} else if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to check %s: %w", path, err)
	}

	sc := defaultScaffold(app)
	if !opts.yes {
		if err := askScaffold(app, &sc); err != nil {
			return err
		}
	}

	data, err := yaml.Marshal(sc)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}

	out := cmd.OutOrStdout()
	ui.WriteSuccess(out, fmt.Sprintf("Created %s with %d classes", path, len(sc.Metadata.Classes)), root.noColor)

	infoColor := color.New(color.FgCyan)
	if root.noColor {
		infoColor.DisableColor()
	}
	infoColor.Fprintln(out, "\nNext steps:")
	fmt.Fprintln(out, "  metagraph check")
	fmt.Fprintln(out, "  metagraph dev")
	return nil
}

func askScaffold(app *App, sc *scaffold) error {
	questions := []*survey.Question{
		{
			Name: "classes",
			Prompt: &survey.MultiSelect{
				Message: "Classes to load:",
				Options: app.Catalog.Names(),
				Default: sc.Metadata.Classes,
			},
			Validate: survey.MinItems(1),
		},
		{
			Name: "format",
			Prompt: &survey.Select{
				Message: "Log format:",
				Options: []string{"console", "json"},
				Default: sc.Log.Format,
			},
		},
		{
			Name: "port",
			Prompt: &survey.Input{
				Message: "Bundler port:",
				Default: strconv.Itoa(sc.DevServer.BundlerPort),
			},
			Validate: validatePort,
		},
	}

	answers := struct {
		Classes []string
		Format  string
		Port    string
	}{}
	if err := survey.Ask(questions, &answers); err != nil {
		return err
	}

	sc.Metadata.Classes = answers.Classes
	sc.Log.Format = answers.Format
	sc.DevServer.BundlerPort, _ = strconv.Atoi(answers.Port)
	return nil
}

func validatePort(ans interface{}) error {
	s, _ := ans.(string)
	port, err := strconv.Atoi(s)
	if err != nil || port <= 0 || port > 65535 {
		return fmt.Errorf("port must be a number between 1 and 65535")
	}
	return nil
}
