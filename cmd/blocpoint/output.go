package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/iamdevroyal/blocpoint-client/internal/apiclient"
	domainauth "github.com/iamdevroyal/blocpoint-client/internal/domain/auth"
	apperrors "github.com/iamdevroyal/blocpoint-client/internal/errors"
)

func printSession(w io.Writer, sess domainauth.Session) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)

	status := "signed out"
	if sess.IsAuthenticated() {
		status = "signed in"
	}
	if err := writef(tw, "Status\t%s\n", status); err != nil {
		return fmt.Errorf("write status: %w", err)
	}
	if name := sess.Identity.DisplayName(); name != "" {
		if err := writef(tw, "Agent\t%s\n", name); err != nil {
			return fmt.Errorf("write agent: %w", err)
		}
	}
	if id := sess.Identity.ID(); id != "" {
		if err := writef(tw, "Agent ID\t%s\n", id); err != nil {
			return fmt.Errorf("write agent id: %w", err)
		}
	}
	if !sess.ExpiresAt.IsZero() {
		if err := writef(tw, "Expires\t%s\n", sess.ExpiresAt.Format(time.RFC3339)); err != nil {
			return fmt.Errorf("write expiry: %w", err)
		}
	}
	device := sess.DeviceID
	if device == "" {
		device = "(not bound)"
	}
	if err := writef(tw, "Device\t%s\n", device); err != nil {
		return fmt.Errorf("write device: %w", err)
	}
	return tw.Flush()
}

// printData lists a response's data envelope in key order. Nested values are shown as JSON.
func printData(w io.Writer, data map[string]any) error {
	if len(data) == 0 {
		return nil
	}
	keys := make([]string, 0, len(data))
	for k := range data {
		// Proofs are credentials.
		if k == "otp_token" || k == "token" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, k := range keys {
		if err := writef(tw, "%s\t%s\n", k, formatValue(data[k])); err != nil {
			return fmt.Errorf("write %s: %w", k, err)
		}
	}
	return tw.Flush()
}

func formatValue(v any) string {
	switch t := v.(type) {
	case nil:
		return "-"
	case string:
		return t
	case float64:
		return fmt.Sprintf("%g", t)
	case bool:
		return fmt.Sprint(t)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	}
}

// describeError renders err for a person: backend validation messages and field errors
// rather than the wrapped chain.
func describeError(err error) string {
	var apiErr *apiclient.APIError
	if errors.As(err, &apiErr) {
		msg := apiErr.Message
		if msg == "" {
			msg = http.StatusText(apiErr.StatusCode)
		}
		if len(apiErr.Errors) == 0 {
			return msg
		}
		fields := make([]string, 0, len(apiErr.Errors))
		for f := range apiErr.Errors {
			fields = append(fields, f)
		}
		sort.Strings(fields)
		var b strings.Builder
		b.WriteString(msg)
		for _, f := range fields {
			fmt.Fprintf(&b, "\n  %s: %s", f, strings.Join(apiErr.Errors[f], "; "))
		}
		return b.String()
	}

	var appErr *apperrors.AppError
	if errors.As(err, &appErr) && appErr.Message != "" {
		return appErr.Message
	}
	return err.Error()
}

func writef(w io.Writer, format string, args ...any) error {
	_, err := fmt.Fprintf(w, format, args...)
	return err
}
