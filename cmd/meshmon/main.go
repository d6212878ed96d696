// meshmon connects to a Meshtastic node, prints what the mesh says and reads
// chat and device commands from stdin.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/skobkin/meshmon/internal/app"
	"github.com/skobkin/meshmon/internal/config"
)

func main() {
	if err := run(os.Args[1:], os.Stdin, os.Stdout); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		slog.Error("run meshmon", "error", err)
		os.Exit(1)
	}
}

type cliFlags struct {
	configFile string
	connector  string
	port       string
	host       string
	logLevel   string
	version    bool
}

func parseFlags(args []string, output io.Writer) (cliFlags, error) {
	var f cliFlags
	flagSet := pflag.NewFlagSet("meshmon", pflag.ContinueOnError)
	flagSet.SetOutput(output)
	flagSet.StringVar(&f.configFile, "config", "", "path to config.json (default: user config dir)")
	flagSet.StringVar(&f.connector, "connector", "", "device connector: serial or ip")
	flagSet.StringVarP(&f.port, "port", "p", "", "serial port; empty auto-detects")
	flagSet.StringVar(&f.host, "host", "", "device host for the ip connector")
	flagSet.StringVar(&f.logLevel, "log-level", "", "log level: debug, info, warn or error")
	flagSet.BoolVar(&f.version, "version", false, "print version and exit")

	if err := flagSet.Parse(args); err != nil {
		return cliFlags{}, err
	}
	if rest := flagSet.Args(); len(rest) > 0 {
		return cliFlags{}, fmt.Errorf("unexpected argument: %s", rest[0])
	}

	return f, nil
}

// apply overrides the loaded config with whatever was given on the command line.
func (f cliFlags) apply(cfg *config.AppConfig) {
	if v := strings.ToLower(strings.TrimSpace(f.connector)); v != "" {
		cfg.Connection.Connector = config.ConnectorType(v)
	}
	if v := strings.TrimSpace(f.port); v != "" {
		cfg.Connection.SerialPort = v
	}
	if v := strings.TrimSpace(f.host); v != "" {
		cfg.Connection.Host = v
	}
	if v := strings.TrimSpace(f.logLevel); v != "" {
		cfg.Logging.Level = v
	}
}

func run(args []string, stdin io.Reader, stdout io.Writer) error {
	flags, err := parseFlags(args, os.Stderr)
	if err != nil {
		return err
	}
	if flags.version {
		_, err := fmt.Fprintln(stdout, app.VersionLine())

		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := app.Initialize(ctx, app.Options{
		ConfigFile: flags.configFile,
		Override:   flags.apply,
		LogOutput:  os.Stderr,
	})
	if err != nil {
		return fmt.Errorf("initialize runtime: %w", err)
	}
	defer func() {
		if closeErr := rt.Close(); closeErr != nil {
			slog.Warn("close runtime", "error", closeErr)
		}
	}()

	// Subscribe before connecting so the initial status and load notice are shown.
	sub := rt.Session.Subscribe()
	defer rt.Session.Unsubscribe(sub)
	out := &lockedWriter{w: stdout}
	p := newPresenter(out, rt.Session.DisplayName)
	_ = p.printStatus(app.ConnectionStatusFromConfig(rt.Config.Connection))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		p.run(gctx, sub)

		return nil
	})

	if err := rt.Start(); err != nil {
		stop()
		_ = g.Wait()

		return fmt.Errorf("connect to device: %w", err)
	}

	g.Go(func() error {
		return newCommandReader(rt.Session, out).run(gctx, stdin)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errQuit) {
		return err
	}

	return nil
}
