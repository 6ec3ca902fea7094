package main

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/iamdevroyal/blocpoint-client/config"
	"github.com/iamdevroyal/blocpoint-client/internal/bootstrap"
)

type commandFn func(ctx *commandContext, args []string) error

type command struct {
	name        string
	description string
	run         commandFn
}

type commandContext struct {
	Ctx    context.Context
	Logger *slog.Logger
	Config config.AppConfig
	In     io.Reader
	Out    io.Writer

	reader *bufio.Reader
	build  func(ctx context.Context, cfg config.AppConfig, logger *slog.Logger) (*bootstrap.App, error)
}

func main() {
	os.Exit(run(os.Args[1:])) //nolint:forbidigo // CLI must propagate its exit status to the shell
}

func run(args []string) int {
	if len(args) < 1 {
		_ = printUsage(os.Stderr)
		return 2
	}

	cmdName := args[0]
	cmd, ok := commands()[cmdName]
	if !ok {
		_ = writef(os.Stderr, "unknown command %q\n\n", cmdName)
		_ = printUsage(os.Stderr)
		return 2
	}

	cfg, err := bootstrap.LoadConfig()
	if err != nil {
		bootstrap.InitLogger(false).ErrorContext(context.Background(), "load config", "error", err)
		return 1
	}
	logger := bootstrap.InitLogger(cfg.IsDev)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmdCtx := &commandContext{
		Ctx:    ctx,
		Logger: logger,
		Config: cfg,
		In:     os.Stdin,
		Out:    os.Stdout,
		build:  bootstrap.Build,
	}
	if runErr := cmd.run(cmdCtx, args[1:]); runErr != nil {
		logger.ErrorContext(ctx, "command failed", "command", cmdName, "error", runErr)
		_ = writef(os.Stderr, "error: %s\n", describeError(runErr))
		return 1
	}
	return 0
}

func commands() map[string]command {
	return map[string]command{
		"request-otp": {
			name:        "request-otp",
			description: "Send a registration code to a phone number",
			run:         runRequestOTP,
		},
		"verify-otp": {
			name:        "verify-otp",
			description: "Check a one-time code for a purpose (register or reset_pin)",
			run:         runVerifyOTP,
		},
		"register": {
			name:        "register",
			description: "Create an agent account and sign in on this device",
			run:         runRegister,
		},
		"login": {
			name:        "login",
			description: "Sign in with phone and PIN and bind this device",
			run:         runLogin,
		},
		"quick-login": {
			name:        "quick-login",
			description: "Sign in with only the PIN on a bound device",
			run:         runQuickLogin,
		},
		"forgot-pin": {
			name:        "forgot-pin",
			description: "Send a PIN reset code to a phone number",
			run:         runForgotPin,
		},
		"verify-reset-otp": {
			name:        "verify-reset-otp",
			description: "Check a PIN reset code",
			run:         runVerifyResetOTP,
		},
		"reset-pin": {
			name:        "reset-pin",
			description: "Verify a PIN reset code and set a new PIN",
			run:         runResetPin,
		},
		"logout": {
			name:        "logout",
			description: "Sign out; the device stays bound",
			run:         runLogout,
		},
		"whoami": {
			name:        "whoami",
			description: "Show the current session",
			run:         runWhoami,
		},
		"forget-device": {
			name:        "forget-device",
			description: "Unbind this device so the next login registers a new one",
			run:         runForgetDevice,
		},
	}
}

func printUsage(w io.Writer) error {
	if err := writef(w, "Usage: blocpoint <command> [flags]\n\n"); err != nil {
		return err
	}
	if err := writef(w, "Available commands:\n"); err != nil {
		return err
	}
	cmds := commands()
	names := make([]string, 0, len(cmds))
	for name := range cmds {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := writef(w, "  %-18s %s\n", name, cmds[name].description); err != nil {
			return err
		}
	}
	return nil
}
