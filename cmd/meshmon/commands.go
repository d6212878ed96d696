package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/skobkin/meshmon/internal/connectors"
	"github.com/skobkin/meshmon/internal/domain"
	"github.com/skobkin/meshmon/internal/radio"
	"github.com/skobkin/meshmon/internal/session"
)

var errQuit = errors.New("quit requested")

const helpText = `commands:
  <text>               broadcast text
  /msg <id> <text>     direct message
  /preset <NAME>       set radio preset (device reboots)
  /slot <n>            set frequency slot, 0 = auto (device reboots)
  /name <long> [short] set user names (device reboots)
  /nodes               list known nodes
  /stats               show device stats
  /quit                exit`

// sessionControl is the part of the session manager the command reader drives.
type sessionControl interface {
	SendText(destination, text string) <-chan session.SendResult
	SetRadioPreset(ctx context.Context, name string) error
	SetFrequencySlot(ctx context.Context, slot int) error
	SetUserNames(ctx context.Context, longName, shortName string) error
	Nodes() []domain.NodeRecord
	CurrentStats() domain.DeviceStats
	CurrentConnectionState() connectors.ConnectionState
}

type commandKind int

const (
	cmdSend commandKind = iota + 1
	cmdPreset
	cmdSlot
	cmdName
	cmdNodes
	cmdStats
	cmdHelp
	cmdQuit
)

type command struct {
	kind        commandKind
	destination string
	text        string
	preset      string
	slot        int
	longName    string
	shortName   string
}

var errEmptyCommand = errors.New("empty command")

func parseCommand(line string) (command, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return command{}, errEmptyCommand
	}
	if !strings.HasPrefix(line, "/") {
		return command{kind: cmdSend, destination: domain.BroadcastNodeID, text: line}, nil
	}

	name, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)
	args := strings.Fields(rest)
	switch strings.ToLower(name) {
	case "/msg":
		dest, text, ok := strings.Cut(rest, " ")
		text = strings.TrimSpace(text)
		if !ok || dest == "" || text == "" {
			return command{}, errors.New("usage: /msg <id> <text>")
		}

		return command{kind: cmdSend, destination: dest, text: text}, nil
	case "/preset":
		if len(args) != 1 {
			return command{}, errors.New("usage: /preset <NAME>")
		}

		return command{kind: cmdPreset, preset: args[0]}, nil
	case "/slot":
		if len(args) != 1 {
			return command{}, errors.New("usage: /slot <n>")
		}
		slot, err := strconv.Atoi(args[0])
		if err != nil {
			return command{}, fmt.Errorf("invalid slot %q: %w", args[0], err)
		}

		return command{kind: cmdSlot, slot: slot}, nil
	case "/name":
		if len(args) < 1 || len(args) > 2 {
			return command{}, errors.New("usage: /name <long> [short]")
		}
		cmd := command{kind: cmdName, longName: args[0]}
		if len(args) == 2 {
			cmd.shortName = args[1]
		}

		return cmd, nil
	case "/nodes":
		return command{kind: cmdNodes}, nil
	case "/stats":
		return command{kind: cmdStats}, nil
	case "/help":
		return command{kind: cmdHelp}, nil
	case "/quit", "/exit":
		return command{kind: cmdQuit}, nil
	default:
		return command{}, fmt.Errorf("unknown command %s (try /help)", name)
	}
}

type commandReader struct {
	session sessionControl
	out     io.Writer
}

func newCommandReader(s sessionControl, out io.Writer) *commandReader {
	return &commandReader{session: s, out: out}
}

// run executes stdin lines until ctx is done or /quit. End of input leaves
// the monitor running until ctx is done.
func (r *commandReader) run(ctx context.Context, in io.Reader) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				<-ctx.Done()

				return nil
			}
			if err := r.handleLine(ctx, line); err != nil {
				return err
			}
		}
	}
}

func (r *commandReader) handleLine(ctx context.Context, line string) error {
	cmd, err := parseCommand(line)
	if errors.Is(err, errEmptyCommand) {
		return nil
	}
	if err != nil {
		r.printf("[error] %v", err)

		return nil
	}

	return r.execute(ctx, cmd)
}

func (r *commandReader) execute(ctx context.Context, cmd command) error {
	switch cmd.kind {
	case cmdQuit:
		return errQuit
	case cmdHelp:
		r.printf("%s", helpText)
	case cmdSend:
		r.send(ctx, cmd)
	case cmdPreset:
		r.report(r.session.SetRadioPreset(ctx, cmd.preset))
	case cmdSlot:
		r.report(r.session.SetFrequencySlot(ctx, cmd.slot))
	case cmdName:
		r.report(r.session.SetUserNames(ctx, cmd.longName, cmd.shortName))
	case cmdNodes:
		nodes := r.session.Nodes()
		r.printf("%d nodes", len(nodes))
		for _, n := range nodes {
			r.printf("  %s", formatNodeRow(n))
		}
	case cmdStats:
		r.printf("[stats] %s state=%s", formatStats(r.session.CurrentStats()), r.session.CurrentConnectionState())
	}

	return nil
}

// send waits for the outcome; a successful send is echoed by the presenter.
func (r *commandReader) send(ctx context.Context, cmd command) {
	select {
	case res := <-r.session.SendText(cmd.destination, cmd.text):
		if res.Err != nil {
			r.printf("[error] %v", res.Err)
		}
	case <-ctx.Done():
	}
}

// report prints validation and connection errors. Write failures already
// surface as notices.
func (r *commandReader) report(err error) {
	if err == nil {
		return
	}
	var vErr *radio.ValidationError
	if errors.As(err, &vErr) || errors.Is(err, radio.ErrNotConnected) {
		r.printf("[error] %v", err)
	}
}

func (r *commandReader) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(r.out, format+"\n", args...)
}

func formatNodeRow(n domain.NodeRecord) string {
	row := fmt.Sprintf("%-10s %-20s last seen %s", n.ID, domain.NodeDisplayName(n), n.LastSeen.Format("2006-01-02 15:04"))
	if n.LastSNR != nil {
		row += fmt.Sprintf(" snr=%.1f", *n.LastSNR)
	}
	if n.LastRSSI != nil {
		row += fmt.Sprintf(" rssi=%d", *n.LastRSSI)
	}
	if n.HopsAway != nil {
		row += fmt.Sprintf(" hops=%d", *n.HopsAway)
	}
	if q := n.SignalQuality(); q != domain.SignalUnknown {
		row += " signal=" + q.String()
	}

	return row
}
