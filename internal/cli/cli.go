package cli

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/congo-pay/druid/internal/auth"
	"github.com/congo-pay/druid/internal/config"
	"github.com/congo-pay/druid/internal/gateway"
	"github.com/congo-pay/druid/internal/onboarding"
)

const usage = `usage: druid [-config path] <command> [flags]

commands:
  signup   create an account, then set a PIN and passkey
  login    sign in with an email or phone and a passkey address
  onboard  finish PIN and passkey setup for the signed-in account
  status   show the signed-in account and its next step
  logout   forget the signed-in account`

var (
	// ErrUsage is returned for a missing or unknown command.
	ErrUsage = errors.New(usage)

	// ErrInputClosed is returned when stdin ends while a prompt is waiting.
	ErrInputClosed = errors.New("input closed")
)

// Config is the parsed command line.
type Config struct {
	ConfigPath string
	Command    string
	Args       []string
}

// ParseConfig parses the global flags and splits off the command.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	cfg := Config{ConfigPath: config.DefaultClientPath()}
	fs.StringVar(&cfg.ConfigPath, "config", cfg.ConfigPath, "path to the client config file")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	rest := fs.Args()
	if len(rest) == 0 {
		return Config{}, ErrUsage
	}
	cfg.Command, cfg.Args = rest[0], rest[1:]
	return cfg, nil
}

// Deps are the collaborators of an App.
type Deps struct {
	Manager  *auth.Manager
	PINs     onboarding.PINSetter
	Ceremony onboarding.Ceremony
	Binder   onboarding.Binder
	Logger   *slog.Logger
}

// App runs one druid command against a session.
type App struct {
	deps   Deps
	prompt *Prompter
	out    io.Writer
	gate   *gateway.Gateway
	cycle  uint64
}

// NewApp builds an App reading answers from in and writing to out.
func NewApp(deps Deps, prompt *Prompter, out io.Writer) *App {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &App{deps: deps, prompt: prompt, out: out, gate: gateway.New()}
}

// Run restores the session and dispatches command.
func (a *App) Run(ctx context.Context, command string, args []string) error {
	if err := a.deps.Manager.Init(ctx); err != nil {
		a.deps.Logger.Warn("restore session", slog.Any("error", err))
	}
	switch command {
	case "signup":
		return a.signup(ctx, args)
	case "login":
		return a.login(ctx, args)
	case "onboard":
		return a.onboard(ctx)
	case "status":
		return a.status(ctx)
	case "logout":
		return a.logout(ctx)
	default:
		return ErrUsage
	}
}

func (a *App) signup(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("signup", flag.ContinueOnError)
	fs.SetOutput(a.out)
	var reg auth.Registration
	fs.StringVar(&reg.FirstName, "first", "", "first name")
	fs.StringVar(&reg.LastName, "last", "", "last name")
	fs.StringVar(&reg.Email, "email", "", "email address")
	fs.StringVar(&reg.Phone, "phone", "", "phone number")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if decision := a.evaluate(gateway.SignInPath); decision.Redirect != "" {
		fmt.Fprintln(a.out, "You are already signed in. Run druid logout first.")
		return nil
	}

	if strings.TrimSpace(reg.Email) == "" && strings.TrimSpace(reg.Phone) == "" {
		answer, err := a.prompt.Ask("Email or phone: ")
		if err != nil {
			return err
		}
		if strings.Contains(answer, "@") {
			reg.Email = answer
		} else {
			reg.Phone = answer
		}
	}

	id, err := a.deps.Manager.Register(ctx, reg)
	if err != nil {
		return a.fail(err)
	}
	fmt.Fprintf(a.out, "Welcome, %s.\n", id.DisplayName())
	return a.onboard(ctx)
}

func (a *App) login(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("login", flag.ContinueOnError)
	fs.SetOutput(a.out)
	passkey := fs.String("passkey", "", "passkey address; prompted for when empty")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if decision := a.evaluate(gateway.SignInPath); decision.Redirect != "" {
		fmt.Fprintln(a.out, "You are already signed in. Run druid logout first.")
		return nil
	}

	identifier := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if identifier == "" {
		answer, err := a.prompt.Ask("Email or phone: ")
		if err != nil {
			return err
		}
		identifier = answer
	}
	address := strings.TrimSpace(*passkey)
	if address == "" {
		connected, err := a.deps.Ceremony.Connect(ctx)
		if err != nil {
			return a.fail(fmt.Errorf("%w: %v", onboarding.ErrCeremonyFailed, err))
		}
		address = connected
	}

	id, err := a.deps.Manager.Login(ctx, identifier, address)
	if err != nil {
		return a.fail(err)
	}
	fmt.Fprintf(a.out, "Signed in as %s.\n", id.DisplayName())
	if gateway.Required(&id) != gateway.StepGranted {
		return a.onboard(ctx)
	}
	return a.status(ctx)
}

func (a *App) onboard(ctx context.Context) error {
	cur := a.deps.Manager.Current()
	if cur == nil {
		return a.fail(auth.ErrNotSignedIn)
	}
	step := gateway.Required(cur)
	page := gateway.Path(step, cur.ID)
	if step == gateway.StepGranted {
		page = gateway.Path(gateway.StepPasskey, cur.ID)
	}
	if decision := a.evaluate(page); decision.Redirect == gateway.DashboardPath {
		fmt.Fprintln(a.out, "Your account is set up.")
		return a.status(ctx)
	}

	m := onboarding.New(*cur, onboarding.Deps{
		PINs:     a.deps.PINs,
		Ceremony: a.deps.Ceremony,
		Binder:   a.deps.Binder,
		Sessions: a.deps.Manager.Scoped(),
		Logger:   a.deps.Logger,
	})
	if err := a.collectPIN(ctx, m); err != nil {
		return err
	}
	if err := a.setupPasskey(ctx, m); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "All set. Continue to %s.\n", m.Destination())
	return a.status(ctx)
}

func (a *App) collectPIN(ctx context.Context, m *onboarding.Machine) error {
	for {
		snap := m.Snapshot()
		if snap.Step == onboarding.StepPasskey {
			return nil
		}
		label := fmt.Sprintf("Create a %d-digit PIN (or cancel): ", onboarding.PINLength)
		if snap.Step == onboarding.StepConfirmPIN {
			label = "Confirm your PIN (or cancel): "
		}
		line, err := a.prompt.Ask(label)
		if err != nil {
			return err
		}
		if line == "cancel" {
			m.Cancel(ctx)
			continue
		}
		if !validPIN(line) {
			fmt.Fprintf(a.out, "A PIN is exactly %d digits.\n", onboarding.PINLength)
			continue
		}
		for _, d := range line {
			snap = m.Press(ctx, d)
		}
		if snap.Err != nil {
			fmt.Fprintln(a.out, auth.Message(snap.Err))
		}
	}
}

func (a *App) setupPasskey(ctx context.Context, m *onboarding.Machine) error {
	for !m.Snapshot().Completed {
		answer, err := a.prompt.Ask("Set up a passkey now? [create/skip]: ")
		if err != nil {
			return err
		}
		var snap onboarding.Snapshot
		switch strings.ToLower(answer) {
		case "create", "c", "y", "yes":
			snap = m.CreatePasskey(ctx)
		case "skip", "s", "n", "no":
			snap = m.SkipPasskey(ctx)
		default:
			continue
		}
		if snap.Err != nil {
			fmt.Fprintln(a.out, auth.Message(snap.Err))
		}
	}
	return nil
}

func (a *App) status(ctx context.Context) error {
	if a.deps.Manager.Current() != nil {
		if _, err := a.deps.Manager.Refresh(ctx); err != nil {
			a.deps.Logger.Warn("refresh session", slog.Any("error", err))
		}
	}
	cur := a.deps.Manager.Current()
	step := gateway.Required(cur)
	if cur == nil {
		fmt.Fprintf(a.out, "Not signed in. Next: %s (%s)\n", step, gateway.SignInPath)
		return nil
	}
	fmt.Fprintf(a.out, "Signed in as %s (user %d)\n", cur.DisplayName(), cur.ID)
	fmt.Fprintf(a.out, "  PIN:     %s\n", yesNo(cur.HasPIN()))
	fmt.Fprintf(a.out, "  Passkey: %s\n", cur.PasskeyAddress.State())
	if cur.WalletAddress != "" {
		fmt.Fprintf(a.out, "  Wallet:  %s\n", cur.WalletAddress)
	}
	fmt.Fprintf(a.out, "Next: %s (%s)\n", step, gateway.Path(step, cur.ID))
	return nil
}

func (a *App) logout(ctx context.Context) error {
	if err := a.deps.Manager.Logout(ctx); err != nil {
		return a.fail(err)
	}
	fmt.Fprintln(a.out, "Signed out.")
	return nil
}

// evaluate asks the gateway about page in a fresh cycle.
func (a *App) evaluate(page string) gateway.Decision {
	a.cycle++
	return a.gate.Evaluate(a.cycle, a.deps.Manager.Current(), page, a.deps.Manager.Loading())
}

func (a *App) fail(err error) error {
	a.deps.Logger.Debug("command failed", slog.Any("error", err))
	return errors.New(auth.Message(err))
}

func validPIN(s string) bool {
	if len(s) != onboarding.PINLength {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func yesNo(b bool) string {
	if b {
		return "set"
	}
	return "not set"
}

// Prompter reads one answer per line.
type Prompter struct {
	in  *bufio.Reader
	out io.Writer
}

// NewPrompter builds a prompter over in, printing labels to out.
func NewPrompter(in io.Reader, out io.Writer) *Prompter {
	return &Prompter{in: bufio.NewReader(in), out: out}
}

// Ask prints label and returns the trimmed answer.
func (p *Prompter) Ask(label string) (string, error) {
	fmt.Fprint(p.out, label)
	line, err := p.in.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		if err == io.EOF {
			return "", ErrInputClosed
		}
		return "", err
	}
	return strings.TrimSpace(line), nil
}
