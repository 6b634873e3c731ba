package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/imgx/internal/models"
	"github.com/desertthunder/imgx/internal/repositories"
	"github.com/desertthunder/imgx/internal/services"
	"github.com/desertthunder/imgx/internal/session"
	"github.com/desertthunder/imgx/internal/shared"
	"github.com/urfave/cli/v3"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
//
// Storage and backend clients are opened on first use so that commands such as
// "setup config" work without a database or a reachable backend.
type Runner struct {
	config      *shared.Config
	configPath  string
	fixedConfig bool
	logger      *log.Logger
	output      io.Writer
	httpClient  *http.Client
	openBrowser func(string) error
	now         func() time.Time

	db       *sql.DB
	guard    session.Guard
	metrics  *services.Metrics
	svc      *services.Services
	sessions *session.Manager
	history  *repositories.HistoryRepository
	users    *repositories.UserRepository
	closers  []func() error
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config      *shared.Config
	ConfigPath  string
	Logger      *log.Logger
	Output      io.Writer
	HTTPClient  *http.Client
	DB          *sql.DB       // opened from config when nil
	Guard       session.Guard // chosen from [guard] backend when nil
	OpenBrowser func(string) error
	Now         func() time.Time
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	r := &Runner{
		config:      opts.Config,
		configPath:  opts.ConfigPath,
		fixedConfig: opts.Config != nil,
		logger:      opts.Logger,
		output:      opts.Output,
		httpClient:  opts.HTTPClient,
		openBrowser: opts.OpenBrowser,
		now:         opts.Now,
		db:          opts.DB,
		guard:       opts.Guard,
	}
	if r.config == nil {
		r.config = shared.DefaultConfig()
	}
	if r.logger == nil {
		r.logger = shared.NewLogger(nil)
	}
	if r.output == nil {
		r.output = os.Stdout
	}
	if r.httpClient == nil {
		r.httpClient = http.DefaultClient
	}
	if r.openBrowser == nil {
		r.openBrowser = shared.OpenBrowser
	}
	if r.now == nil {
		r.now = time.Now
	}
	return r
}

// SetLogger replaces the logger, e.g. while a TUI owns the terminal.
// Clients created afterwards log through it.
func (r *Runner) SetLogger(l *log.Logger) {
	r.logger = l
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, authCommand, imageCommand, historyCommand, healthCommand, statsCommand, apiCommand, tuiCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// before loads configuration for every command.
func (r *Runner) before(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	if cmd.Bool("debug") {
		shared.SetLogLevel(r.logger, log.DebugLevel)
	}
	if r.fixedConfig {
		return ctx, nil
	}

	path := cmd.String("config")
	config := shared.DefaultConfig()
	if _, err := os.Stat(path); err == nil {
		if config, err = shared.LoadConfig(path); err != nil {
			return ctx, err
		}
		r.logger.Debug("loaded config", "path", path)
	}
	if err := shared.ApplyEnv(config); err != nil {
		return ctx, err
	}

	r.config, r.configPath = config, path
	return ctx, nil
}

// after prints metrics when asked and releases whatever was opened.
func (r *Runner) after(ctx context.Context, cmd *cli.Command) error {
	var err error
	if cmd.Bool("metrics") && r.metrics != nil {
		r.writePlain("\n")
		err = r.metrics.WriteText(r.output)
	}
	return errors.Join(err, r.Close())
}

// init opens storage, the guard and the backend clients once.
func (r *Runner) init(ctx context.Context) error {
	if r.svc != nil {
		return nil
	}

	if r.db == nil {
		db, err := shared.OpenDatabase(r.config.Database)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		r.db = db
		r.closers = append(r.closers, db.Close)
	}

	if r.guard == nil {
		guard, err := r.openGuard(ctx)
		if err != nil {
			return err
		}
		r.guard = guard
	}

	r.sessions = session.NewManager(repositories.NewSessionRepository(r.db), session.NewBus(), r.logger)
	unsubscribe := r.sessions.Subscribe(r.onSession)
	r.closers = append(r.closers, func() error { unsubscribe(); return nil })

	r.metrics = services.NewMetrics()
	r.svc = services.New(r.config, r.httpClient,
		services.WithCredentials(r.sessions),
		services.WithObserver(r.metrics.Observe),
		services.WithLogger(r.logger),
	)
	r.history = repositories.NewHistoryRepository(r.db)
	r.users = repositories.NewUserRepository(r.db)
	return nil
}

func (r *Runner) openGuard(ctx context.Context) (session.Guard, error) {
	ttl := r.config.Guard.TTL.Duration

	if r.config.Guard.Backend == "redis" {
		g, err := repositories.OpenRedisGuard(ctx, r.config.Guard.RedisURL, ttl)
		if err != nil {
			return nil, fmt.Errorf("failed to open guard store: %w", err)
		}
		r.closers = append(r.closers, g.Close)
		r.logger.Debug("using redis guard store")
		return g, nil
	}

	g := repositories.NewGuardRepository(r.db)
	if ttl > 0 {
		if n, err := g.Prune(ctx, ttl); err != nil {
			r.logger.Warn("failed to prune stale guards", "err", err)
		} else if n > 0 {
			r.logger.Debug("pruned stale guards", "count", n)
		}
	}
	return g, nil
}

// Close releases resources opened by init, most recent first.
func (r *Runner) Close() error {
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		errs = append(errs, r.closers[i]())
	}
	r.closers = nil
	return errors.Join(errs...)
}

func (r *Runner) onSession(s session.Session) {
	r.logger.Info("session announced", "subject", s.SubjectID, "method", s.LoginMethod)
}

// bootstrapper builds the page-load pipeline for a provider. Exchanged sessions also
// store the user record with whatever membership the backend sent.
func (r *Runner) bootstrapper(ctx context.Context, method session.LoginMethod) *session.Bootstrapper {
	ex := r.svc.Auth.Exchanger(method, func(res *services.AuthResult) {
		r.saveUser(context.WithoutCancel(ctx), res.Session, res.Membership)
	})
	return session.NewBootstrapper(r.sessions, r.guard, ex,
		session.WithRevoker(r.svc.Auth),
		session.WithLogger(r.logger),
		session.WithClock(r.now),
	)
}

// currentSession returns the usable stored session, or nil for a guest.
func (r *Runner) currentSession(ctx context.Context) *session.Session {
	return r.bootstrapper(ctx, session.LoginAuth0).Hydrate(ctx)
}

func (r *Runner) saveUser(ctx context.Context, s *session.Session, membership *models.Membership) {
	u := services.NewUserRecord(s, membership, r.now())
	if err := r.users.Save(ctx, &u); err != nil {
		r.logger.Warn("failed to store user record", "err", err)
	}
}

// membershipFor returns the stored membership for s, or the free tier.
func (r *Runner) membershipFor(ctx context.Context, s *session.Session) models.Membership {
	if s != nil {
		if u, err := r.users.Get(ctx); err == nil && u != nil && u.ID == s.SubjectID {
			return u.Membership
		}
	}
	return models.DefaultMembership(r.now())
}

// recordUsage counts processed images against the stored membership until the next
// profile refresh replaces it with the server's figure.
func (r *Runner) recordUsage(ctx context.Context, s *session.Session, n int) {
	if n == 0 {
		return
	}
	u, err := r.users.Get(ctx)
	if err != nil || u == nil || u.ID != s.SubjectID {
		return
	}
	u.Membership.DailyUsage += n
	if err := r.users.Save(ctx, u); err != nil {
		r.logger.Warn("failed to update usage", "err", err)
	}
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	output, err := shared.MarshalJSON(data, pretty)
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainln(format string, args ...any) error {
	text := "\n" + fmt.Sprintf(format, args...) + "\n"
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

// writeBody prints a raw response, pretty-printing JSON.
func (r *Runner) writeBody(resp *services.APIResponse, pretty bool) error {
	if resp.IsJSON {
		var v any
		if err := json.Unmarshal(resp.Body, &v); err == nil {
			return r.writeJSON(v, pretty)
		}
	}
	return r.writePlain("%s\n", resp.Body)
}
