package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/fundwell/fundwell-web/config"
	"github.com/fundwell/fundwell-web/internal/bootstrap"
	"github.com/fundwell/fundwell-web/internal/clientstore"
	domainauth "github.com/fundwell/fundwell-web/internal/domain/auth"
	"github.com/fundwell/fundwell-web/internal/domain/routeguard"
	"github.com/fundwell/fundwell-web/internal/util"
)

type commandFn func(ctx *commandContext, args []string) error

type command struct {
	name        string
	description string
	// offline commands need no backend.
	offline bool
	run     commandFn
}

type commandContext struct {
	Ctx    context.Context
	Logger *slog.Logger
	Config config.AppConfig
	Store  *clientstore.Store
	Out    io.Writer
	Now    func() time.Time
}

const defaultCommandTimeout = 30 * time.Second

func main() {
	cfg, cfgErr := bootstrap.LoadConfig()
	logger := cliLogger(&cfg)

	if len(os.Args) < 2 {
		if err := printUsage(os.Stdout); err != nil {
			logger.Error("print usage failed", "error", err)
		}
		os.Exit(2) //nolint:forbidigo // CLI must exit with failure status when no command is provided
	}

	cmdName := os.Args[1]
	cmd, ok := commands()[cmdName]
	if !ok {
		if err := writef(os.Stderr, "unknown command %q\n\n", cmdName); err != nil {
			logger.Error("print unknown command message failed", "error", err)
		}
		if err := printUsage(os.Stderr); err != nil {
			logger.Error("print usage failed", "error", err)
		}
		os.Exit(2) //nolint:forbidigo // CLI must exit with failure status when command is unknown
	}

	if cfgErr != nil {
		logger.Error("load config", "error", cfgErr)
		os.Exit(1) //nolint:forbidigo // CLI must signal configuration load failure to shell scripts
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, defaultCommandTimeout)
	defer cancel()

	cmdCtx := &commandContext{
		Ctx:    ctx,
		Logger: logger,
		Config: cfg,
		Out:    os.Stdout,
		Now:    time.Now,
	}
	if !cmd.offline {
		store, err := newStore(ctx, &cfg, logger)
		if err != nil {
			logger.ErrorContext(ctx, "initialize client store", "error", err)
			os.Exit(1) //nolint:forbidigo // CLI must signal initialization failure to shell scripts
		}
		cmdCtx.Store = store
	}

	if runErr := cmd.run(cmdCtx, os.Args[2:]); runErr != nil {
		logger.ErrorContext(ctx, "command failed", "command", cmdName, "error", runErr)
		stop()
		cancel()
		os.Exit(1) //nolint:forbidigo // CLI must propagate command execution failure to callers
	}
}

// cliLogger writes to stderr so command output on stdout stays clean.
func cliLogger(cfg *config.AppConfig) *slog.Logger {
	level := slog.LevelWarn
	if cfg.LogLevel != "" {
		_ = level.UnmarshalText([]byte(cfg.LogLevel))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func commands() map[string]command {
	return map[string]command{
		"login": {
			name:        "login",
			description: "Sign in with email and password (--email, password from FUNDWELL_PASSWORD or stdin)",
			run:         runLogin,
		},
		"login-token": {
			name:        "login-token",
			description: "Sign in with an external identity token (--token)",
			run:         runLoginToken,
		},
		"whoami": {
			name:        "whoami",
			description: "Print the signed-in user from the stored session",
			run:         runWhoami,
		},
		"refresh": {
			name:        "refresh",
			description: "Re-fetch the signed-in user from the backend",
			run:         runRefresh,
		},
		"logout": {
			name:        "logout",
			description: "Revoke the session and clear stored credentials",
			run:         runLogout,
		},
		"route-check": {
			name:        "route-check",
			description: "Show the route guard decision for a path (--signed-in, --token)",
			offline:     true,
			run:         runRouteCheck,
		},
	}
}

func printUsage(w io.Writer) error {
	if err := writef(w, "Usage: fundwell-cli <command> [flags]\n\n"); err != nil {
		return err
	}
	if err := writef(w, "Available commands:\n"); err != nil {
		return err
	}
	names := make([]string, 0, len(commands()))
	for name := range commands() {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		c := commands()[name]
		if err := writef(w, "  %-14s %s\n", c.name, c.description); err != nil {
			return err
		}
	}
	return nil
}

// newStore builds a client store backed by the state file.
func newStore(ctx context.Context, cfg *config.AppConfig, logger *slog.Logger) (*clientstore.Store, error) {
	auth, err := bootstrap.BuildAuthService(bootstrap.AuthConfig{Config: cfg, Logger: logger})
	if err != nil {
		return nil, err
	}
	path := os.Getenv("FUNDWELL_STATE_FILE")
	if path == "" {
		if path, err = clientstore.DefaultStatePath(); err != nil {
			return nil, err
		}
	}
	return openStore(ctx, auth, path, logger)
}

// openStore hydrates a store from path before returning it.
func openStore(ctx context.Context, auth clientstore.Authenticator, path string, logger *slog.Logger) (*clientstore.Store, error) {
	store := clientstore.New(clientstore.Options{
		Auth:      auth,
		Persister: clientstore.NewFilePersister(path),
		Logger:    logger,
	})
	store.Hydrate(ctx)
	if err := store.WaitHydrated(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

type loginOptions struct {
	Email string
}

func parseLoginFlags(args []string) (loginOptions, error) {
	fs := flag.NewFlagSet("login", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var opts loginOptions
	fs.StringVar(&opts.Email, "email", "", "Account email address")

	if err := fs.Parse(args); err != nil {
		return loginOptions{}, err
	}
	opts.Email = strings.TrimSpace(opts.Email)
	if opts.Email == "" {
		return loginOptions{}, errors.New("--email is required")
	}
	return opts, nil
}

func runLogin(cmdCtx *commandContext, args []string) error {
	opts, err := parseLoginFlags(args)
	if err != nil {
		return err
	}
	password, err := readPassword(os.Stdin)
	if err != nil {
		return err
	}
	return login(cmdCtx, domainauth.PasswordCredentials(opts.Email, password))
}

// readPassword takes FUNDWELL_PASSWORD or the first line of r.
func readPassword(r io.Reader) (string, error) {
	if pw := os.Getenv("FUNDWELL_PASSWORD"); pw != "" {
		return pw, nil
	}
	data, err := io.ReadAll(io.LimitReader(r, 4096))
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	line, _, _ := strings.Cut(string(data), "\n")
	line = strings.TrimRight(line, "\r")
	if line == "" {
		return "", errors.New("password is required (set FUNDWELL_PASSWORD or pipe it on stdin)")
	}
	return line, nil
}

func runLoginToken(cmdCtx *commandContext, args []string) error {
	fs := flag.NewFlagSet("login-token", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	token := fs.String("token", "", "External identity token")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*token) == "" {
		return errors.New("--token is required")
	}
	return login(cmdCtx, domainauth.ExternalCredentials(*token))
}

func login(cmdCtx *commandContext, creds domainauth.Credentials) error {
	if err := cmdCtx.Store.Login(cmdCtx.Ctx, creds); err != nil {
		st := cmdCtx.Store.Snapshot()
		if st.ErrorKind == domainauth.FailureUnverified {
			return fmt.Errorf("%s (verify with the code sent to your inbox)", st.Error)
		}
		if st.Error != "" {
			return errors.New(st.Error)
		}
		return err
	}
	return printUser(cmdCtx.Out, cmdCtx.Store.Snapshot())
}

func runWhoami(cmdCtx *commandContext, _ []string) error {
	st := cmdCtx.Store.Snapshot()
	if !st.IsAuthenticated {
		return writef(cmdCtx.Out, "not signed in\n")
	}
	return printUser(cmdCtx.Out, st)
}

func runRefresh(cmdCtx *commandContext, _ []string) error {
	if err := cmdCtx.Store.RefreshUser(cmdCtx.Ctx); err != nil {
		return err
	}
	return runWhoami(cmdCtx, nil)
}

func runLogout(cmdCtx *commandContext, _ []string) error {
	if err := cmdCtx.Store.Logout(cmdCtx.Ctx); err != nil {
		return err
	}
	return writef(cmdCtx.Out, "signed out\n")
}

type routeCheckOptions struct {
	Path     string
	SignedIn bool
	Token    string
}

func parseRouteCheckFlags(args []string) (routeCheckOptions, error) {
	fs := flag.NewFlagSet("route-check", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var opts routeCheckOptions
	fs.BoolVar(&opts.SignedIn, "signed-in", false, "Evaluate as a visitor holding a session")
	fs.StringVar(&opts.Token, "token", "", "Evaluate with this access token (expired JWTs count as signed out)")

	if err := fs.Parse(args); err != nil {
		return routeCheckOptions{}, err
	}
	if fs.NArg() != 1 {
		return routeCheckOptions{}, errors.New("exactly one path argument is required")
	}
	opts.Path = fs.Arg(0)
	return opts, nil
}

func runRouteCheck(cmdCtx *commandContext, args []string) error {
	opts, err := parseRouteCheckFlags(args)
	if err != nil {
		return err
	}
	authenticated := opts.SignedIn
	if opts.Token != "" {
		authenticated = util.TokenLive(opts.Token, cmdCtx.Now())
	}

	d := routeguard.Decide(opts.Path, authenticated)
	if d.Action == routeguard.Allow {
		return writef(cmdCtx.Out, "%s: allow\n", opts.Path)
	}
	return writef(cmdCtx.Out, "%s: %s -> %s\n", opts.Path, d.Action, d.Location)
}

func printUser(w io.Writer, st clientstore.State) error {
	if st.User == nil {
		return writef(w, "signed in (user unknown)\n")
	}
	name := "-"
	if st.User.Name != nil {
		name = *st.User.Name
	}
	return writef(w, "id:    %s\nemail: %s\nname:  %s\nrole:  %s\n",
		st.User.ID, st.User.Email, name, st.User.Role)
}

func writef(w io.Writer, format string, args ...any) error {
	_, err := fmt.Fprintf(w, format, args...)
	return err
}
