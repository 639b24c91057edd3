package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/charmbracelet/x/term"
	"github.com/urfave/cli/v2"

	"github.com/taskdeck/internal/challenge"
	"github.com/taskdeck/internal/config"
	"github.com/taskdeck/internal/credentials"
	"github.com/taskdeck/internal/gateway"
	"github.com/taskdeck/internal/notify"
	"github.com/taskdeck/internal/session"
	"github.com/taskdeck/internal/tasks"
)

// Runtime is the client stack shared by every command.
type Runtime struct {
	Config    *config.Config
	Store     *credentials.FileStore
	Challenge *challenge.State
	Gateway   *gateway.Gateway
	Session   *session.Controller
	Tasks     *tasks.Coordinator

	out io.Writer
	in  *bufio.Reader
	// tty is set when input is the process's terminal.
	tty bool
}

func newRuntime(c *cli.Context) (*Runtime, error) {
	cfg, err := config.LoadConfig(c.String("config"))
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	store, err := credentials.OpenFileStore(cfg.Credentials.File)
	if err != nil {
		return nil, fmt.Errorf("failed to open credentials: %w", err)
	}

	errOut := c.App.ErrWriter
	if errOut == nil {
		errOut = os.Stderr
	}
	out := c.App.Writer
	if out == nil {
		out = os.Stdout
	}

	n := notify.NewWriter(errOut)
	ch := challenge.New()
	gw := gateway.New(cfg.API.BaseURL, store, ch,
		gateway.WithHTTPClient(&http.Client{Timeout: cfg.API.Timeout}),
		gateway.WithNotifier(n),
		gateway.WithRateLimit(cfg.API.RateLimit, cfg.API.RateBurst),
	)

	return &Runtime{
		Config:    cfg,
		Store:     store,
		Challenge: ch,
		Gateway:   gw,
		Session:   session.NewController(gw, store, ch, n),
		Tasks:     tasks.NewCoordinator(tasks.NewService(gw), tasks.NewCache(), n),
		out:       out,
		in:        bufio.NewReader(c.App.Reader),
		tty:       c.App.Reader == os.Stdin && term.IsTerminal(os.Stdin.Fd()),
	}, nil
}

// requireSession resolves the stored session and fails when nobody is
// signed in.
func (rt *Runtime) requireSession(ctx context.Context) (*session.User, error) {
	if err := rt.Session.Start(ctx); err != nil {
		return nil, err
	}
	user := rt.Session.User()
	if user == nil {
		return nil, fmt.Errorf("not logged in, run `taskdeck login` first")
	}
	return user, nil
}

// requireAction is requireSession plus an authorization check.
func (rt *Runtime) requireAction(ctx context.Context, action session.Action) (*session.User, error) {
	user, err := rt.requireSession(ctx)
	if err != nil {
		return nil, err
	}
	if !rt.Session.CanPerformAction(action) {
		return nil, fmt.Errorf("role %s is not allowed to %s", user.Role, strings.ReplaceAll(string(action), "_", " "))
	}
	return user, nil
}

func (rt *Runtime) print(s string) {
	io.WriteString(rt.out, s)
}

func (rt *Runtime) printf(format string, args ...interface{}) {
	fmt.Fprintf(rt.out, format, args...)
}

// prompt reads one line from the command's input.
func (rt *Runtime) prompt(label string) (string, error) {
	rt.printf("%s: ", label)
	line, err := rt.in.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", fmt.Errorf("failed to read %s: %w", strings.ToLower(label), err)
	}
	return strings.TrimSpace(line), nil
}

// promptSecret reads a line without echo when stdin is a terminal.
func (rt *Runtime) promptSecret(label string) (string, error) {
	if !rt.tty {
		return rt.prompt(label)
	}
	rt.printf("%s: ", label)
	secret, err := term.ReadPassword(os.Stdin.Fd())
	rt.printf("\n")
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", strings.ToLower(label), err)
	}
	return string(secret), nil
}
