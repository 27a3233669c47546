package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jrsteele09/as2-portal-session/internal/errors"
	"github.com/jrsteele09/as2-portal-session/session"
	"github.com/jrsteele09/as2-portal-session/users"
	"github.com/spf13/pflag"
)

type command struct {
	name    string
	usage   string
	summary string
	flags   func(fs *pflag.FlagSet, c *cli)
	run     func(ctx context.Context, c *cli, args []string) error
}

var commands = []command{
	{
		name:    "login",
		usage:   "login <email>",
		summary: "Log in and store the session",
		run:     runLogin,
	},
	{
		name:    "register",
		usage:   "register <email> --name <name> [--organization <org>]",
		summary: "Create an account (does not log in)",
		flags: func(fs *pflag.FlagSet, c *cli) {
			fs.StringVar(&c.register.name, "name", "", "display name")
			fs.StringVar(&c.register.organization, "organization", "", "sponsor, CRO or partner organisation")
		},
		run: runRegister,
	},
	{
		name:    "logout",
		usage:   "logout",
		summary: "End the stored session",
		run:     runLogout,
	},
	{
		name:    "whoami",
		usage:   "whoami",
		summary: "Show the logged in user",
		run:     runWhoAmI,
	},
	{
		name:    "refresh",
		usage:   "refresh",
		summary: "Rotate the stored token pair now",
		run:     runRefresh,
	},
	{
		name:    "watch",
		usage:   "watch",
		summary: "Keep the session fresh until interrupted",
		run:     runWatch,
	},
	{
		name:    "get",
		usage:   "get <path>",
		summary: "GET a portal API path with the session's bearer token",
		run:     runGet,
	},
}

func findCommand(name string) (command, bool) {
	for _, cmd := range commands {
		if cmd.name == name {
			return cmd, true
		}
	}
	return command{}, false
}

func runLogin(ctx context.Context, c *cli, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: portalctl login <email>")
	}
	password, err := c.readPassword("Password: ")
	if err != nil {
		return err
	}

	m, err := c.open(ctx)
	if err != nil {
		return err
	}
	current, err := m.Login(ctx, session.Credentials{Email: args[0], Password: password})
	if err != nil {
		return err
	}
	fmt.Fprintf(c.stdout, "Logged in as %s\n", describeUser(current.User))
	return nil
}

func runRegister(ctx context.Context, c *cli, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: portalctl register <email> --name <name>")
	}
	password, err := c.readPassword("New password: ")
	if err != nil {
		return err
	}

	m, err := c.open(ctx)
	if err != nil {
		return err
	}
	profile, err := m.Register(ctx, session.Registration{
		Email:        args[0],
		Password:     password,
		Name:         c.register.name,
		Organization: c.register.organization,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(c.stdout, "Registered %s, log in to start a session\n", describeUser(&profile))
	return nil
}

func runLogout(ctx context.Context, c *cli, _ []string) error {
	m, err := c.open(ctx)
	if err != nil {
		return err
	}
	if !m.RestoreSession(ctx) {
		fmt.Fprintln(c.stdout, "Not logged in")
		return nil
	}
	m.Logout(ctx, session.ReasonUserInitiated)
	return nil
}

func runWhoAmI(ctx context.Context, c *cli, _ []string) error {
	m, err := c.restore(ctx)
	if err != nil {
		return err
	}
	profile, err := m.CurrentUser(ctx)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(c.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(profile)
}

func runRefresh(ctx context.Context, c *cli, _ []string) error {
	m, err := c.restore(ctx)
	if err != nil {
		return err
	}
	current, err := m.Refresh(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.stdout, "Refreshed, access token %s\n", describeExpiry(current.ExpiresAt))
	return nil
}

func runWatch(ctx context.Context, c *cli, _ []string) error {
	m, err := c.restore(ctx)
	if err != nil {
		return err
	}
	if err := m.WatchStorage(ctx); err != nil && !errors.Is(err, errors.ErrUnsupported) {
		return err
	}
	m.StartAutoRefresh()

	current := m.Current()
	fmt.Fprintf(c.stdout, "Watching session of %s, access token %s\n", describeUser(current.User), describeExpiry(current.ExpiresAt))

	select {
	case <-ctx.Done():
		m.StopAutoRefresh()
		return nil
	case reason := <-c.ended:
		return fmt.Errorf("session ended: %s", reason)
	}
}

func runGet(ctx context.Context, c *cli, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: portalctl get <path>")
	}
	m, err := c.restore(ctx)
	if err != nil {
		return err
	}

	target := args[0]
	if !strings.HasPrefix(target, "http://") && !strings.HasPrefix(target, "https://") {
		target = strings.TrimSuffix(c.apiURL, "/") + "/" + strings.TrimPrefix(target, "/")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return err
	}
	resp, err := m.HTTPClient(ctx).Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if _, err := io.Copy(c.stdout, resp.Body); err != nil {
		return err
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("GET %s: %s", target, resp.Status)
	}
	return nil
}

func describeUser(profile *users.Profile) string {
	if profile == nil {
		return "unknown user"
	}
	name := profile.Email
	if profile.Name != "" {
		name = fmt.Sprintf("%s <%s>", profile.Name, profile.Email)
	}
	if profile.Role != "" {
		name += " (" + profile.Role + ")"
	}
	return name
}

func describeExpiry(expiresAt time.Time) string {
	if expiresAt.IsZero() {
		return "expiry unknown"
	}
	return "expires " + expiresAt.Local().Format(time.RFC1123)
}
