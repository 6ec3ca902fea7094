package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/iamdevroyal/blocpoint-client/internal/bootstrap"
	domainauth "github.com/iamdevroyal/blocpoint-client/internal/domain/auth"
	apperrors "github.com/iamdevroyal/blocpoint-client/internal/errors"
	"github.com/iamdevroyal/blocpoint-client/internal/service"
)

type phoneOptions struct {
	Phone string
}

type codeOptions struct {
	Phone   string
	Code    string
	Purpose string
}

type registerOptions struct {
	Phone           string
	Code            string
	FirstName       string
	LastName        string
	PIN             string
	PINConfirmation string
}

type loginOptions struct {
	Phone string
	PIN   string
}

type resetOptions struct {
	Phone string
	Code  string
	PIN   string
}

// withApp builds the client, restores the session and runs fn. OTP proofs live only as long
// as the App, so each staged flow is completed within a single invocation.
func (c *commandContext) withApp(fn func(ctx context.Context, app *bootstrap.App) error) error {
	app, err := c.build(c.Ctx, c.Config, c.Logger)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := app.Close(); closeErr != nil {
			c.Logger.WarnContext(c.Ctx, "close app failed", "error", closeErr)
		}
	}()

	app.Auth.RestoreSession(c.Ctx)
	runErr := fn(c.Ctx, app)

	if route := app.Navigator.Last(); route != "" {
		if err := writef(c.Out, "Session expired. Sign in again (%s).\n", route); err != nil {
			return errors.Join(runErr, err)
		}
	}
	return runErr
}

// prompt reads one line from the command's input. Used for PINs not given as flags.
func (c *commandContext) prompt(label string) (string, error) {
	if err := writef(c.Out, "%s: ", label); err != nil {
		return "", err
	}
	if c.reader == nil {
		c.reader = bufio.NewReader(c.In)
	}
	line, err := c.reader.ReadString('\n')
	if err != nil && (line == "" || !errors.Is(err, io.EOF)) {
		return "", fmt.Errorf("read %s: %w", strings.ToLower(label), err)
	}
	return strings.TrimSpace(line), nil
}

func (c *commandContext) pinOrPrompt(pin, label string) (string, error) {
	if pin != "" {
		return pin, nil
	}
	pin, err := c.prompt(label)
	if err != nil {
		return "", err
	}
	if pin == "" {
		return "", apperrors.ValidationField("pin", strings.ToLower(label)+" is required")
	}
	return pin, nil
}

func runRequestOTP(cmdCtx *commandContext, args []string) error {
	opts, err := parsePhoneFlags("request-otp", args)
	if err != nil {
		return err
	}
	return cmdCtx.withApp(func(ctx context.Context, app *bootstrap.App) error {
		data, err := app.Auth.RequestOTP(ctx, opts.Phone)
		if err != nil {
			return err
		}
		if err := writef(cmdCtx.Out, "Verification code sent to %s.\n", domainauth.NormalizePhone(opts.Phone)); err != nil {
			return err
		}
		return printData(cmdCtx.Out, data)
	})
}

func runVerifyOTP(cmdCtx *commandContext, args []string) error {
	opts, err := parseCodeFlags("verify-otp", args, true)
	if err != nil {
		return err
	}
	return cmdCtx.withApp(func(ctx context.Context, app *bootstrap.App) error {
		data, err := app.Auth.VerifyOTP(ctx, opts.Phone, opts.Code, domainauth.OTPPurpose(opts.Purpose))
		if err != nil {
			return err
		}
		if err := writef(cmdCtx.Out, "Code verified for %s.\n", opts.Purpose); err != nil {
			return err
		}
		return printData(cmdCtx.Out, data)
	})
}

func runRegister(cmdCtx *commandContext, args []string) error {
	opts, err := parseRegisterFlags(args)
	if err != nil {
		return err
	}
	if opts.PIN, err = cmdCtx.pinOrPrompt(opts.PIN, "PIN"); err != nil {
		return err
	}
	if opts.PINConfirmation, err = cmdCtx.pinOrPrompt(opts.PINConfirmation, "Confirm PIN"); err != nil {
		return err
	}

	return cmdCtx.withApp(func(ctx context.Context, app *bootstrap.App) error {
		sess, err := app.Auth.Register(ctx, service.RegisterInput{
			Phone:           opts.Phone,
			OTPCode:         opts.Code,
			FirstName:       opts.FirstName,
			LastName:        opts.LastName,
			PIN:             opts.PIN,
			PINConfirmation: opts.PINConfirmation,
		})
		if err != nil {
			return err
		}
		return printSession(cmdCtx.Out, sess)
	})
}

func runLogin(cmdCtx *commandContext, args []string) error {
	opts, err := parseLoginFlags(args)
	if err != nil {
		return err
	}
	if opts.PIN, err = cmdCtx.pinOrPrompt(opts.PIN, "PIN"); err != nil {
		return err
	}

	return cmdCtx.withApp(func(ctx context.Context, app *bootstrap.App) error {
		sess, err := app.Auth.Login(ctx, opts.Phone, opts.PIN)
		if err != nil {
			return err
		}
		return printSession(cmdCtx.Out, sess)
	})
}

func runQuickLogin(cmdCtx *commandContext, args []string) error {
	fs := flag.NewFlagSet("quick-login", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	pin := fs.String("pin", "", "PIN (prompted when omitted)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	p, err := cmdCtx.pinOrPrompt(*pin, "PIN")
	if err != nil {
		return err
	}

	return cmdCtx.withApp(func(ctx context.Context, app *bootstrap.App) error {
		sess, err := app.Auth.QuickLogin(ctx, p)
		switch {
		case err == nil:
			return printSession(cmdCtx.Out, sess)
		case apperrors.IsDeviceUnbound(err):
			_ = writef(cmdCtx.Out, "This device is not bound yet. Use `blocpoint login`.\n")
			return err
		case service.IsDeviceNotRecognized(err):
			if forgetErr := app.Auth.ForgetDevice(ctx); forgetErr != nil {
				return errors.Join(err, forgetErr)
			}
			_ = writef(cmdCtx.Out, "This device is no longer recognised. Use `blocpoint login` to bind it again.\n")
			return err
		default:
			return err
		}
	})
}

func runForgotPin(cmdCtx *commandContext, args []string) error {
	opts, err := parsePhoneFlags("forgot-pin", args)
	if err != nil {
		return err
	}
	return cmdCtx.withApp(func(ctx context.Context, app *bootstrap.App) error {
		data, err := app.Auth.RequestForgotPinOTP(ctx, opts.Phone)
		if err != nil {
			return err
		}
		if err := writef(cmdCtx.Out, "Reset code sent to %s.\n", domainauth.NormalizePhone(opts.Phone)); err != nil {
			return err
		}
		return printData(cmdCtx.Out, data)
	})
}

func runVerifyResetOTP(cmdCtx *commandContext, args []string) error {
	opts, err := parseCodeFlags("verify-reset-otp", args, false)
	if err != nil {
		return err
	}
	return cmdCtx.withApp(func(ctx context.Context, app *bootstrap.App) error {
		data, err := app.Auth.VerifyForgotPinOTP(ctx, opts.Phone, opts.Code)
		if err != nil {
			return err
		}
		if err := writef(cmdCtx.Out, "Reset code verified. Run `blocpoint reset-pin` with the same code to choose a new PIN.\n"); err != nil {
			return err
		}
		return printData(cmdCtx.Out, data)
	})
}

func runResetPin(cmdCtx *commandContext, args []string) error {
	opts, err := parseResetFlags(args)
	if err != nil {
		return err
	}
	if opts.PIN, err = cmdCtx.pinOrPrompt(opts.PIN, "New PIN"); err != nil {
		return err
	}

	return cmdCtx.withApp(func(ctx context.Context, app *bootstrap.App) error {
		if _, err := app.Auth.VerifyForgotPinOTP(ctx, opts.Phone, opts.Code); err != nil {
			return fmt.Errorf("verify reset code: %w", err)
		}
		data, err := app.Auth.ResetPin(ctx, opts.Phone, opts.PIN)
		if err != nil {
			return err
		}
		if err := writef(cmdCtx.Out, "PIN updated. Sign in with the new PIN.\n"); err != nil {
			return err
		}
		return printData(cmdCtx.Out, data)
	})
}

func runLogout(cmdCtx *commandContext, _ []string) error {
	return cmdCtx.withApp(func(ctx context.Context, app *bootstrap.App) error {
		if err := app.Auth.Logout(ctx); err != nil {
			return err
		}
		return writef(cmdCtx.Out, "Signed out.\n")
	})
}

func runWhoami(cmdCtx *commandContext, _ []string) error {
	return cmdCtx.withApp(func(ctx context.Context, app *bootstrap.App) error {
		sess, err := app.Auth.Session(ctx)
		if err != nil {
			return err
		}
		return printSession(cmdCtx.Out, sess)
	})
}

func runForgetDevice(cmdCtx *commandContext, _ []string) error {
	return cmdCtx.withApp(func(ctx context.Context, app *bootstrap.App) error {
		if err := app.Auth.ForgetDevice(ctx); err != nil {
			return err
		}
		return writef(cmdCtx.Out, "Device unbound.\n")
	})
}

func parsePhoneFlags(name string, args []string) (phoneOptions, error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var opts phoneOptions
	fs.StringVar(&opts.Phone, "phone", "", "Phone number (required)")

	if err := fs.Parse(args); err != nil {
		return phoneOptions{}, err
	}
	if strings.TrimSpace(opts.Phone) == "" {
		return phoneOptions{}, errors.New("--phone is required")
	}
	return opts, nil
}

func parseCodeFlags(name string, args []string, withPurpose bool) (codeOptions, error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	opts := codeOptions{Purpose: string(domainauth.OTPPurposeResetPIN)}
	fs.StringVar(&opts.Phone, "phone", "", "Phone number (required)")
	fs.StringVar(&opts.Code, "code", "", "One-time code (required)")
	if withPurpose {
		fs.StringVar(&opts.Purpose, "purpose", string(domainauth.OTPPurposeRegister), "Code purpose: register or reset_pin")
	}

	if err := fs.Parse(args); err != nil {
		return codeOptions{}, err
	}
	if strings.TrimSpace(opts.Phone) == "" {
		return codeOptions{}, errors.New("--phone is required")
	}
	if strings.TrimSpace(opts.Code) == "" {
		return codeOptions{}, errors.New("--code is required")
	}
	return opts, nil
}

func parseRegisterFlags(args []string) (registerOptions, error) {
	fs := flag.NewFlagSet("register", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var opts registerOptions
	fs.StringVar(&opts.Phone, "phone", "", "Phone number (required)")
	fs.StringVar(&opts.Code, "code", "", "Registration code from request-otp (required)")
	fs.StringVar(&opts.FirstName, "first-name", "", "First name (required)")
	fs.StringVar(&opts.LastName, "last-name", "", "Last name (required)")
	fs.StringVar(&opts.PIN, "pin", "", "PIN (prompted when omitted)")
	fs.StringVar(&opts.PINConfirmation, "pin-confirmation", "", "PIN again (prompted when omitted)")

	if err := fs.Parse(args); err != nil {
		return registerOptions{}, err
	}
	for flagName, v := range map[string]string{
		"phone":      opts.Phone,
		"code":       opts.Code,
		"first-name": opts.FirstName,
		"last-name":  opts.LastName,
	} {
		if strings.TrimSpace(v) == "" {
			return registerOptions{}, fmt.Errorf("--%s is required", flagName)
		}
	}
	return opts, nil
}

func parseLoginFlags(args []string) (loginOptions, error) {
	fs := flag.NewFlagSet("login", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var opts loginOptions
	fs.StringVar(&opts.Phone, "phone", "", "Phone number (required)")
	fs.StringVar(&opts.PIN, "pin", "", "PIN (prompted when omitted)")

	if err := fs.Parse(args); err != nil {
		return loginOptions{}, err
	}
	if strings.TrimSpace(opts.Phone) == "" {
		return loginOptions{}, errors.New("--phone is required")
	}
	return opts, nil
}

func parseResetFlags(args []string) (resetOptions, error) {
	fs := flag.NewFlagSet("reset-pin", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var opts resetOptions
	fs.StringVar(&opts.Phone, "phone", "", "Phone number (required)")
	fs.StringVar(&opts.Code, "code", "", "Reset code from forgot-pin (required)")
	fs.StringVar(&opts.PIN, "pin", "", "New PIN (prompted when omitted)")

	if err := fs.Parse(args); err != nil {
		return resetOptions{}, err
	}
	if strings.TrimSpace(opts.Phone) == "" {
		return resetOptions{}, errors.New("--phone is required")
	}
	if strings.TrimSpace(opts.Code) == "" {
		return resetOptions{}, errors.New("--code is required")
	}
	return opts, nil
}
