// Package provision installs the PostgreSQL driver and an application
// datasource into WildFly during a build.
//
// The datasource identifiers come from the deployment's persistence.xml when
// one is found; otherwise the configured defaults are used.
package provision

import (
	"context"
	"errors"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/agentic-research/wildfly-postgresql/api"
	"github.com/agentic-research/wildfly-postgresql/internal/archive"
	"github.com/agentic-research/wildfly-postgresql/internal/config"
	"github.com/agentic-research/wildfly-postgresql/internal/dialect"
	"github.com/agentic-research/wildfly-postgresql/internal/logging"
	"github.com/agentic-research/wildfly-postgresql/internal/persistence"
	"github.com/agentic-research/wildfly-postgresql/internal/profile"
	"github.com/agentic-research/wildfly-postgresql/internal/wildfly"
)

// Outcome reported when patching is turned off.
const outcomeDisabled = "disabled"

// Fetcher provides a verified driver jar.
type Fetcher interface {
	Fetch(ctx context.Context, version string) (string, error)
}

// Provisioner runs one installation.
type Provisioner struct {
	cfg       *config.Config
	fetcher   Fetcher
	validator *dialect.Validator
	server    *wildfly.Controller
	log       *zap.Logger
}

// New wires a Provisioner.
func New(cfg *config.Config, fetcher Fetcher, validator *dialect.Validator, server *wildfly.Controller, log *zap.Logger) *Provisioner {
	if log == nil {
		log = zap.NewNop()
	}
	return &Provisioner{cfg: cfg, fetcher: fetcher, validator: validator, server: server, log: log}
}

// settings are the datasource parameters after discovery.
type settings struct {
	name          string
	jndiName      string
	driverName    string
	connectionURL string
	userName      string
	password      string
}

// Run performs the installation. The server is started in admin-only mode
// for the management commands and is always stopped again: gracefully on
// success, through the guard on failure.
func (p *Provisioner) Run(ctx context.Context) (ds *api.Datasource, err error) {
	cfg := p.cfg
	if err := cfg.RequireJBossHome(); err != nil {
		return nil, err
	}

	logging.Topic(p.log, "Installing PostgreSQL JDBC driver "+cfg.DriverVersion)
	jar, err := p.fetcher.Fetch(ctx, cfg.DriverVersion)
	if err != nil {
		return nil, fmt.Errorf("fetch driver: %w", err)
	}

	s := settings{
		name:          cfg.DatasourceName,
		jndiName:      cfg.JNDIName,
		driverName:    cfg.DriverName,
		connectionURL: cfg.ConnectionURL,
		userName:      cfg.UserName,
		password:      cfg.Password,
	}
	pu, err := p.discover(ctx, &s)
	if err != nil {
		return nil, err
	}

	ds = &api.Datasource{
		Name:          s.name,
		JNDIName:      s.jndiName,
		ConnectionURL: s.connectionURL,
		Driver: api.Driver{
			Name:    s.driverName,
			Version: cfg.DriverVersion,
			Module:  ModuleName,
			Jar:     jar,
		},
		Persistence: pu,
	}

	logging.Topic(p.log, "Configuring datasource "+s.name)
	guard, err := p.server.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("start server: %w", err)
	}
	defer guard.Release(&err)

	if err := p.install(ctx, s, jar, ds); err != nil {
		return nil, err
	}
	if err := guard.Close(ctx); err != nil {
		return nil, fmt.Errorf("stop server: %w", err)
	}

	path, err := profile.Append(cfg.BuildDir, map[string]string{
		profile.VarDriverName:     s.driverName,
		profile.VarDriverVersion:  cfg.DriverVersion,
		profile.VarDatasourceName: s.name,
		profile.VarJNDIName:       s.jndiName,
	})
	if err != nil {
		return nil, err
	}
	p.log.Debug("profile script updated", zap.String("path", path))
	return ds, nil
}

// discover finds the deployment's persistence unit, adopts its datasource
// identifiers and patches its dialect. A missing WAR or unit is a warning.
func (p *Provisioner) discover(ctx context.Context, s *settings) (*api.Persistence, error) {
	cfg := p.cfg
	war, err := archive.Locate(cfg.DeploymentRoot, cfg.PersistenceXML)
	if err != nil {
		return nil, err
	}
	if war == "" {
		p.log.Warn("no deployment with a persistence unit found, using defaults",
			zap.String("root", cfg.DeploymentRoot), zap.String("member", cfg.PersistenceXML))
		return nil, nil
	}
	p.log.Info("found persistence unit", zap.String("archive", war))

	unit, err := readUnit(war, cfg.PersistenceXML)
	switch {
	case errors.Is(err, persistence.ErrNoUnit):
		p.log.Warn("persistence.xml declares no persistence unit, using defaults", zap.String("archive", war))
	case err != nil:
		return nil, err
	}

	pu := &api.Persistence{Archive: war, Outcome: outcomeDisabled}
	if unit != nil {
		pu.Unit = unit.Name
		pu.Dialect, _ = unit.Property("hibernate.dialect")
		if jndi := unit.DataSource(); jndi != "" {
			s.jndiName = jndi
			s.name = persistence.DataSourceName(jndi)
		} else {
			p.log.Warn("persistence unit names no data source, using defaults", zap.String("unit", unit.Name))
		}
	}

	if !cfg.AutoPatch {
		p.log.Debug("dialect auto-patch disabled")
		return pu, nil
	}
	outcome, err := dialect.PatchArchive(ctx, war, cfg.PersistenceXML, cfg.Dialect, p.validator)
	if err != nil {
		return nil, err
	}
	pu.Outcome = outcome.String()
	switch outcome {
	case dialect.Rewritten:
		p.log.Info("patched hibernate.dialect", zap.String("from", pu.Dialect), zap.String("to", cfg.Dialect))
		pu.Dialect = cfg.Dialect
	case dialect.Unchanged:
		pu.Dialect = cfg.Dialect
	}
	return pu, nil
}

// readUnit returns the primary unit of the descriptor inside war.
func readUnit(war, member string) (*persistence.Unit, error) {
	scratch, err := archive.Extract(war, member)
	if err != nil {
		return nil, err
	}
	defer func() { _ = scratch.Close() }()

	d, err := persistence.Read(scratch.FS(), scratch.Member())
	if err != nil {
		return nil, err
	}
	return d.Primary()
}

// install issues the management commands, skipping what already exists.
func (p *Provisioner) install(ctx context.Context, s settings, jar string, ds *api.Datasource) error {
	if _, err := os.Stat(moduleDescriptor(p.cfg.JBossHome)); err == nil {
		p.log.Info("module " + ModuleName + " already installed")
		ds.Skipped = append(ds.Skipped, "module")
	} else if _, err := p.server.ExecuteCommand(ctx, moduleAddCommand(jar), "Installing module "+ModuleName); err != nil {
		return err
	}

	exists, err := p.exists(ctx, driverAddress(s.driverName))
	if err != nil {
		return err
	}
	if exists {
		p.log.Info("JDBC driver " + s.driverName + " already registered")
		ds.Skipped = append(ds.Skipped, "driver")
	} else if _, err := p.server.ExecuteCommand(ctx, driverAddCommand(s.driverName), "Registering JDBC driver "+s.driverName); err != nil {
		return err
	}

	exists, err = p.exists(ctx, datasourceAddress(s.name))
	if err != nil {
		return err
	}
	if exists {
		p.log.Info("datasource " + s.name + " already exists")
		ds.Skipped = append(ds.Skipped, "datasource")
		return nil
	}
	_, err = p.server.ExecuteCommand(ctx, datasourceAddCommand(s), "Adding datasource "+s.name)
	return err
}

// exists probes a management resource. A failed read means it is absent.
func (p *Provisioner) exists(ctx context.Context, address string) (bool, error) {
	_, err := p.server.ExecuteCommandPipable(ctx, readResource(address))
	var cerr *wildfly.CommandError
	switch {
	case err == nil:
		return true, nil
	case errors.As(err, &cerr):
		return false, nil
	default:
		return false, fmt.Errorf("probe %s: %w", address, err)
	}
}
