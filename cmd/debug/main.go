// debug is a diagnostic tool: it lists serial ports, dumps the node snapshot
// database and watches a live session, logging every bus event.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/skobkin/meshmon/internal/app"
	"github.com/skobkin/meshmon/internal/bus"
	"github.com/skobkin/meshmon/internal/config"
	"github.com/skobkin/meshmon/internal/connectors"
	"github.com/skobkin/meshmon/internal/domain"
	"github.com/skobkin/meshmon/internal/notifications"
	"github.com/skobkin/meshmon/internal/persistence"
	"github.com/skobkin/meshmon/internal/transport"
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		slog.Error("run debug tool", "error", err)
		os.Exit(1)
	}
}

type debugFlags struct {
	configFile string
	listPorts  bool
	dumpNodes  bool
	clearNodes bool
	watch      time.Duration
}

func parseFlags(args []string, output io.Writer) (debugFlags, error) {
	var f debugFlags
	flagSet := pflag.NewFlagSet("meshmon-debug", pflag.ContinueOnError)
	flagSet.SetOutput(output)
	flagSet.StringVar(&f.configFile, "config", "", "path to config.json (default: user config dir)")
	flagSet.BoolVar(&f.listPorts, "list-ports", false, "print serial ports in auto-detect order")
	flagSet.BoolVar(&f.dumpNodes, "dump-nodes", false, "print the persisted node snapshot")
	flagSet.BoolVar(&f.clearNodes, "clear-nodes", false, "delete the persisted node snapshot")
	flagSet.DurationVar(&f.watch, "watch", 0, "connect and log every session event for this long, e.g. 2m")

	if err := flagSet.Parse(args); err != nil {
		return debugFlags{}, err
	}
	if !f.listPorts && !f.dumpNodes && !f.clearNodes && f.watch <= 0 {
		return debugFlags{}, errors.New("nothing to do: pass --list-ports, --dump-nodes, --clear-nodes or --watch")
	}

	return f, nil
}

func run(args []string, out io.Writer) error {
	flags, err := parseFlags(args, os.Stderr)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if flags.listPorts {
		if err := listPorts(out); err != nil {
			return err
		}
	}
	if flags.dumpNodes || flags.clearNodes {
		if err := withSnapshotDB(ctx, flags, out); err != nil {
			return err
		}
	}
	if flags.watch > 0 {
		return watch(ctx, flags, out)
	}

	return nil
}

func listPorts(out io.Writer) error {
	ports, err := transport.ListSerialPorts()
	if err != nil {
		return fmt.Errorf("list serial ports: %w", err)
	}
	if len(ports) == 0 {
		_, err := fmt.Fprintln(out, "no serial ports found")

		return err
	}
	for i, p := range ports {
		marker := " "
		if i == 0 {
			marker = "*"
		}
		if _, err := fmt.Fprintf(out, "%s %s\n", marker, p.Label()); err != nil {
			return err
		}
	}

	return nil
}

func withSnapshotDB(ctx context.Context, flags debugFlags, out io.Writer) error {
	paths, err := app.ResolvePathsFor(flags.configFile)
	if err != nil {
		return err
	}
	db, err := persistence.Open(ctx, paths.DBFile)
	if err != nil {
		return fmt.Errorf("open snapshot db: %w", err)
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			slog.Warn("close snapshot db", "error", closeErr)
		}
	}()

	if flags.dumpNodes {
		records, err := persistence.NewNodeRepo(db).Load(ctx)
		if err != nil {
			return fmt.Errorf("load nodes: %w", err)
		}
		if err := dumpNodes(out, records); err != nil {
			return err
		}
	}
	if flags.clearNodes {
		n, err := persistence.ClearNodes(ctx, db)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(out, "cleared %d nodes\n", n); err != nil {
			return err
		}
	}

	return nil
}

func dumpNodes(out io.Writer, records map[string]domain.NodeRecord) error {
	nodes := make([]domain.NodeRecord, 0, len(records))
	for _, rec := range records {
		nodes = append(nodes, rec)
	}
	sort.Slice(nodes, func(i, j int) bool {
		if !nodes[i].LastSeen.Equal(nodes[j].LastSeen) {
			return nodes[i].LastSeen.After(nodes[j].LastSeen)
		}

		return nodes[i].ID < nodes[j].ID
	})

	if _, err := fmt.Fprintf(out, "%d nodes\n", len(nodes)); err != nil {
		return err
	}
	for _, n := range nodes {
		if _, err := fmt.Fprintln(out, nodeLine(n)); err != nil {
			return err
		}
	}

	return nil
}

func nodeLine(n domain.NodeRecord) string {
	parts := []string{
		n.ID,
		fmt.Sprintf("%q", domain.NodeDisplayName(n)),
		"first=" + formatTime(n.FirstSeen),
		"last=" + formatTime(n.LastSeen),
	}
	if n.LastSNR != nil {
		parts = append(parts, fmt.Sprintf("snr=%.1f", *n.LastSNR))
	}
	if n.LastRSSI != nil {
		parts = append(parts, fmt.Sprintf("rssi=%d", *n.LastRSSI))
	}
	if n.HopsAway != nil {
		parts = append(parts, fmt.Sprintf("hops=%d", *n.HopsAway))
	}
	if !n.LastHeard.IsZero() {
		parts = append(parts, "heard="+formatTime(n.LastHeard))
	}

	return strings.Join(parts, " ")
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}

	return t.UTC().Format(time.RFC3339)
}

func watch(ctx context.Context, flags debugFlags, out io.Writer) error {
	rt, err := app.Initialize(ctx, app.Options{
		ConfigFile: flags.configFile,
		Override: func(cfg *config.AppConfig) {
			cfg.Logging.Level = "debug"
			cfg.Logging.LogToFile = false
		},
		LogOutput: out,
		Sender:    notifications.NoopSender{},
	})
	if err != nil {
		return fmt.Errorf("initialize runtime: %w", err)
	}
	defer func() {
		if closeErr := rt.Close(); closeErr != nil {
			slog.Warn("close runtime", "error", closeErr)
		}
	}()
	logger := rt.LogManager.Logger("debug.watch")

	sub := rt.Session.Subscribe()
	defer rt.Session.Unsubscribe(sub)

	watchCtx, cancel := context.WithTimeout(ctx, flags.watch)
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		logEvents(watchCtx, logger, sub)
	}()

	logger.Info("connecting", "connector", rt.Config.Connection.Connector, "target", app.ConnectionTarget(rt.Config.Connection), "duration", flags.watch)
	if err := rt.Start(); err != nil {
		cancel()
		<-done

		return fmt.Errorf("connect to device: %w", err)
	}
	<-done
	logger.Info("watch finished", "nodes", len(rt.Session.Nodes()), "messages", len(rt.Session.Messages()))

	return nil
}

func logEvents(ctx context.Context, logger *slog.Logger, sub bus.Subscription) {
	for {
		select {
		case <-ctx.Done():
			return
		case raw, ok := <-sub:
			if !ok {
				return
			}
			logEvent(logger, raw)
		}
	}
}

func logEvent(logger *slog.Logger, raw any) {
	switch event := raw.(type) {
	case connectors.ConnectionStatus:
		logger.Info("conn", "state", event.State, "transport", event.TransportName, "target", event.Target, "attempt", event.Attempt, "error", event.Err)
	case connectors.SystemNotice:
		logger.Info("notice", "text", event.Text, "is_error", event.IsError)
	case domain.Message:
		logger.Info("message", "from", event.FromID, "to", event.ToID, "text", event.Text, "reply", event.IsReply, "hops", event.HopCount, "outgoing", event.Outgoing)
	case domain.NodeDiscovered:
		logger.Info("node discovered", "id", event.Node.ID, "name", event.Node.DisplayName)
	case domain.NodeRecord:
		logger.Info("node updated", "id", event.ID, "name", event.DisplayName)
	case domain.DeviceStats:
		logger.Info("stats", "nodes", event.NodeCount, "battery", event.BatteryLevel, "voltage", event.Voltage, "channel_utilization", event.ChannelUtilization)
	default:
		logger.Debug("unhandled event", "type", fmt.Sprintf("%T", raw))
	}
}
