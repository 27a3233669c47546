// portalctl drives the portal session manager from a terminal: log in, keep
// the session fresh, and make authenticated calls against the portal API.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/jrsteele09/as2-portal-session/authapi"
	"github.com/jrsteele09/as2-portal-session/internal/config"
	"github.com/spf13/pflag"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		if kind := authapi.KindOf(err); kind != authapi.KindUnknown {
			fmt.Fprintf(os.Stderr, "error: %s\n", kind.UserMessage())
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	cfg := config.New()
	c := &cli{
		cfg:    cfg,
		stdin:  stdin,
		stdout: stdout,
		stderr: stderr,
	}

	flagSet := pflag.NewFlagSet("portalctl", pflag.ContinueOnError)
	flagSet.SetOutput(stderr)
	flagSet.SetInterspersed(false)
	c.addGlobalFlags(flagSet)
	flagSet.Usage = func() { printHelp(stderr, flagSet) }

	if err := flagSet.Parse(args); err != nil {
		return err
	}
	rest := flagSet.Args()
	if len(rest) == 0 {
		printHelp(stderr, flagSet)
		return pflag.ErrHelp
	}

	cmd, ok := findCommand(rest[0])
	if !ok {
		printHelp(stderr, flagSet)
		return fmt.Errorf("unknown command %q", rest[0])
	}

	cmdFlags := pflag.NewFlagSet("portalctl "+cmd.name, pflag.ContinueOnError)
	cmdFlags.SetOutput(stderr)
	if cmd.flags != nil {
		cmd.flags(cmdFlags, c)
	}
	cmdFlags.Usage = func() {
		fmt.Fprintf(stderr, "Usage: portalctl %s\n\n%s\n", cmd.usage, cmd.summary)
		if cmdFlags.HasFlags() {
			fmt.Fprintf(stderr, "\nFlags:\n%s", cmdFlags.FlagUsages())
		}
	}
	if err := cmdFlags.Parse(rest[1:]); err != nil {
		return err
	}

	defer c.close()
	return cmd.run(ctx, c, cmdFlags.Args())
}

func printHelp(w io.Writer, flagSet *pflag.FlagSet) {
	fmt.Fprintln(w, "Usage: portalctl [flags] <command> [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	for _, cmd := range commands {
		fmt.Fprintf(w, "  %-10s %s\n", cmd.name, cmd.summary)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	fmt.Fprint(w, flagSet.FlagUsages())
}
