package commands

import (
	"context"
	"fmt"
	"reflect"
	"sort"

	"go.uber.org/zap"

	"github.com/conduit-lang/metagraph/internal/cli/config"
	"github.com/conduit-lang/metagraph/internal/datastore"
	"github.com/conduit-lang/metagraph/internal/logging"
	"github.com/conduit-lang/metagraph/pkg/metamodel"
)

// environment is what every command that loads metadata needs: the config, a
// logger and the store registry
type environment struct {
	app     *App
	opts    *rootOptions
	cfg     *config.Config
	logger  *zap.Logger
	stores  *datastore.Registry
	ifaces  []reflect.Type
	noColor bool
}

func newEnvironment(app *App, opts *rootOptions) (*environment, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, &configError{err: err}
	}

	level := cfg.Log.Level
	if opts.logLevel != "" {
		level = opts.logLevel
	}
	logger, err := logging.New(level, cfg.Log.Format)
	if err != nil {
		return nil, &configError{err: err}
	}

	ifaces, err := systemInterfaces(app, cfg.Metadata.SystemInterfaces)
	if err != nil {
		return nil, &configError{err: err}
	}

	stores, err := datastore.NewRegistry(storeSpecs(cfg))
	if err != nil {
		return nil, &configError{err: err}
	}

	return &environment{
		app:     app,
		opts:    opts,
		cfg:     cfg,
		logger:  logger,
		stores:  stores,
		ifaces:  ifaces,
		noColor: opts.noColor,
	}, nil
}

// systemInterfaces resolves configured interface names. An empty list selects
// every interface the application knows.
func systemInterfaces(app *App, names []string) ([]reflect.Type, error) {
	if len(names) == 0 {
		names = make([]string, 0, len(app.SystemInterfaces))
		for name := range app.SystemInterfaces {
			names = append(names, name)
		}
		sort.Strings(names)
	}

	ifaces := make([]reflect.Type, 0, len(names))
	for _, name := range names {
		iface, ok := app.SystemInterfaces[name]
		if !ok {
			return nil, fmt.Errorf("metadata.system_interfaces: unknown interface %q", name)
		}
		ifaces = append(ifaces, iface)
	}
	return ifaces, nil
}

func storeSpecs(cfg *config.Config) []datastore.Spec {
	specs := make([]datastore.Spec, 0, len(cfg.Stores))
	for _, s := range cfg.Stores {
		specs = append(specs, datastore.Spec{Name: s.Name, Driver: s.Driver, DSN: s.DSN})
	}
	return specs
}

// classes returns the configured class list, or the application defaults
func (e *environment) classes() []string {
	return classList(e.app, e.cfg)
}

func classList(app *App, cfg *config.Config) []string {
	if len(cfg.Metadata.Classes) > 0 {
		return cfg.Metadata.Classes
	}
	return app.DefaultClasses
}

// reloadClasses re-reads the config file for the dev server. Only the class list
// is taken from the new file; stores and logging keep their startup values.
func (e *environment) reloadClasses() ([]string, error) {
	if e.cfg.Path == "" {
		return e.classes(), nil
	}
	cfg, err := config.Load(e.cfg.Path)
	if err != nil {
		return nil, err
	}
	return classList(e.app, cfg), nil
}

func (e *environment) newLoader(extra ...metamodel.Option) *metamodel.Loader {
	opts := []metamodel.Option{
		metamodel.WithLogger(e.logger),
		metamodel.WithStores(e.stores),
		metamodel.WithSystemInterfaces(e.ifaces...),
	}
	return metamodel.NewLoader(e.app.Catalog, append(opts, extra...)...)
}

// load builds a session from the configured class list
func (e *environment) load(ctx context.Context, extra ...metamodel.Option) (*metamodel.Session, error) {
	session := metamodel.NewSession()
	if err := e.newLoader(extra...).Load(ctx, session, e.classes()); err != nil {
		return nil, err
	}
	return session, nil
}

func (e *environment) close() {
	if err := e.stores.Close(); err != nil {
		e.logger.Warn("failed to close datastores", zap.Error(err))
	}
	_ = e.logger.Sync()
}
