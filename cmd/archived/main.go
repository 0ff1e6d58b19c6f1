// Command archived runs the archive daemon for one session. It keeps the
// event channel to the archive server open, mirrors chats into the local
// archive and serves the control socket archivectl talks to.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/matheus3301/wpparchive/internal/config"
	"github.com/matheus3301/wpparchive/internal/daemon"
	"github.com/matheus3301/wpparchive/internal/session"
	"go.uber.org/fx"
)

type options struct {
	session string
	socket  string
	check   bool
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	var opts options
	fs := flag.NewFlagSet("archived", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.session, "session", "", "session name (overrides config default)")
	fs.StringVar(&opts.socket, "socket", "", "control socket path (default: inside the session dir)")
	fs.BoolVar(&opts.check, "check", false, "print the effective configuration and exit")
	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: archived [flags]\n\n")
		fmt.Fprintf(stderr, "Runs the archive daemon for one session. Settings come from %s,\n", session.ConfigPath())
		fmt.Fprintf(stderr, "then %s, then %s* environment variables.\n\nFlags:\n", session.EnvPath(), config.EnvPrefix)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	if fs.NArg() > 0 {
		fs.Usage()
		return options{}, fmt.Errorf("unexpected argument %q", fs.Arg(0))
	}
	return opts, nil
}

// printEffective writes the settings the daemon would start with.
func printEffective(w io.Writer, name, socket string, cfg *config.Config) {
	fmt.Fprintf(w, "session:     %s\n", name)
	fmt.Fprintf(w, "session dir: %s\n", session.Dir(name))
	fmt.Fprintf(w, "socket:      %s\n", socket)
	fmt.Fprintf(w, "archive:     %s\n", session.ArchiveDBPath(name))
	fmt.Fprintf(w, "server:      %s\n", cfg.ServerURL)
	fmt.Fprintf(w, "channel:     %s\n", cfg.SocketURL)
	fmt.Fprintf(w, "log level:   %s\n", cfg.LogLevel)
}

func main() {
	opts, err := parseFlags(os.Args[1:], os.Stderr)
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(2)
	}

	cfg, err := config.Resolve(session.ConfigPath(), session.EnvPath())
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	name := session.ResolveFrom(opts.session, cfg)
	if err := session.ValidateName(name); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	if opts.check {
		socket := opts.socket
		if socket == "" {
			socket = session.SocketPath(name)
		}
		printEffective(os.Stdout, name, socket, cfg)
		return
	}

	fx.New(
		daemon.Module(daemon.Params{SessionName: name, SocketPath: opts.socket}),
	).Run()
}
