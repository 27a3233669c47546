package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jrsteele09/as2-portal-session/apiclient"
	"github.com/jrsteele09/as2-portal-session/internal/config"
	"github.com/jrsteele09/as2-portal-session/internal/logging"
	"github.com/jrsteele09/as2-portal-session/session"
	"github.com/jrsteele09/as2-portal-session/store"
	"github.com/spf13/pflag"
	"golang.org/x/term"
)

type cli struct {
	cfg    config.Config
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer

	apiURL       string
	storage      string
	tokenFile    string
	passwordFile string
	verify       bool
	logLevel     string

	register struct {
		name         string
		organization string
	}

	manager *session.Manager
	tokens  store.Store
	// ended is closed when the manager redirects to login.
	ended chan session.Reason
}

func (c *cli) addGlobalFlags(fs *pflag.FlagSet) {
	fs.StringVar(&c.apiURL, "api-url", c.cfg.GetAPIBaseURL(), "portal API base URL")
	fs.StringVar(&c.storage, "storage", c.cfg.GetStorageBackend(), "token storage: file, redis or memory")
	fs.StringVar(&c.tokenFile, "token-file", c.cfg.GetTokenFile(), "token file for file storage (default: per-user config dir)")
	fs.StringVar(&c.passwordFile, "password-file", "", "read the password from this file instead of prompting")
	fs.BoolVar(&c.verify, "verify", c.cfg.GetVerifyTokens(), "verify access tokens against the portal's published keys")
	fs.StringVar(&c.logLevel, "log-level", "warn", "log level")
}

// storageConfig lets command line flags override the environment.
type storageConfig struct {
	config.StorageConfig
	backend string
	file    string
}

func (s storageConfig) GetStorageBackend() string { return s.backend }
func (s storageConfig) GetTokenFile() string      { return s.file }

// open builds the session manager. Commands that need an existing session
// restore it afterwards.
func (c *cli) open(ctx context.Context) (*session.Manager, error) {
	if c.manager != nil {
		return c.manager, nil
	}

	logger := logging.New(c.stderr, c.cfg.GetEnv(), c.logLevel)

	client, err := apiclient.New(c.apiURL,
		apiclient.WithTimeout(c.cfg.GetRequestTimeout()),
		apiclient.WithLogger(logger),
		apiclient.WithUserAgent("portalctl"),
	)
	if err != nil {
		return nil, fmt.Errorf("apiclient.New: %w", err)
	}

	c.tokens, err = store.Open(ctx, storageConfig{StorageConfig: c.cfg, backend: c.storage, file: c.tokenFile})
	if err != nil {
		return nil, fmt.Errorf("store.Open: %w", err)
	}

	c.ended = make(chan session.Reason, 1)
	opts := []session.Option{
		session.WithConfig(c.cfg),
		session.WithLogger(logger),
		session.WithNotifier(session.NotifierFunc(func(_ session.Reason, message string) {
			fmt.Fprintln(c.stderr, message)
		})),
		session.WithNavigator(session.NavigatorFunc(func(reason session.Reason) {
			select {
			case c.ended <- reason:
			default:
			}
		})),
	}
	if c.verify {
		verifier, err := session.NewOIDCVerifier(ctx, c.apiURL, nil)
		if err != nil {
			return nil, fmt.Errorf("session.NewOIDCVerifier: %w", err)
		}
		opts = append(opts, session.WithVerifier(verifier))
	}

	c.manager, err = session.New(client, c.tokens, opts...)
	if err != nil {
		return nil, fmt.Errorf("session.New: %w", err)
	}
	return c.manager, nil
}

// restore opens the manager and picks up the stored session.
func (c *cli) restore(ctx context.Context) (*session.Manager, error) {
	m, err := c.open(ctx)
	if err != nil {
		return nil, err
	}
	if !m.RestoreSession(ctx) {
		return nil, fmt.Errorf("not logged in, run portalctl login first")
	}
	return m, nil
}

func (c *cli) close() {
	if c.manager != nil {
		_ = c.manager.Close()
	}
	if closer, ok := c.tokens.(io.Closer); ok {
		_ = closer.Close()
	}
}

// readPassword reads from --password-file, else prompts without echo on a
// terminal, else reads one line from stdin.
func (c *cli) readPassword(prompt string) (string, error) {
	if c.passwordFile != "" && c.passwordFile != "-" {
		data, err := os.ReadFile(c.passwordFile)
		if err != nil {
			return "", fmt.Errorf("reading %s: %w", c.passwordFile, err)
		}
		return strings.TrimRight(string(data), "\r\n"), nil
	}

	if f, ok := c.stdin.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(c.stderr, prompt)
		password, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(c.stderr)
		if err != nil {
			return "", fmt.Errorf("reading password: %w", err)
		}
		return string(password), nil
	}

	line, err := bufio.NewReader(c.stdin).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("reading password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}
