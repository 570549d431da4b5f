package spawner

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/procpool/procpool/internal/poolopts"
	"github.com/procpool/procpool/internal/process"
)

// negotiationDetails carries the working state of one spawn negotiation
// (original_source Spawner.h NegotiationDetails).
type negotiationDetails struct {
	pid             int
	gupid           string
	connectPassword string
	startTime       time.Time
	timeout         time.Duration
	stderrTail      *tailBuffer
}

// readMessageLine reads one line from the worker's stdout. Lines prefixed
// with "!> " are protocol lines (prefix stripped, trailing newline kept
// off); any other line is ordinary stdout chatter, appended to the stderr
// tail for inclusion in a future SpawnError, and skipped (original_source
// Spawner.h readMessageLine).
func readMessageLine(ctx context.Context, r *bufio.Reader, d *negotiationDetails) (string, error) {
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		line, err := r.ReadString('\n')
		if err != nil {
			if line == "" {
				return "", io.EOF
			}
			// last, unterminated line: treat like EOF after processing below
		}
		trimmed := strings.TrimSuffix(line, "\n")
		if strings.HasPrefix(trimmed, "!> ") {
			return strings.TrimPrefix(trimmed, "!> "), nil
		}
		if d.stderrTail != nil {
			d.stderrTail.Append(trimmed)
		}
		if err != nil {
			return "", io.EOF
		}
	}
}

// writeSpawnRequest sends "You have control 1.0" plus the negotiated
// identity and the Options key/value block, terminated by a blank line
// (original_source Spawner.h sendSpawnRequest).
func writeSpawnRequest(w io.Writer, opts poolopts.Options, d *negotiationDetails) error {
	var b strings.Builder
	b.WriteString("You have control 1.0\n")
	b.WriteString("gupid: " + d.gupid + "\n")
	b.WriteString("connect_password: " + d.connectPassword + "\n")
	b.WriteString("app_root: " + opts.AppRoot + "\n")
	b.WriteString("app_group_name: " + opts.GroupName() + "\n")
	if opts.Environment != "" {
		b.WriteString("environment: " + opts.Environment + "\n")
	}
	if opts.BaseURI != "" {
		b.WriteString("base_uri: " + opts.BaseURI + "\n")
	}
	b.WriteString("\n")
	_, err := io.WriteString(w, b.String())
	return err
}

// spawnProtocolError builds a *poolopts.SpawnError of the given kind with
// a formatted human message.
func spawnProtocolError(kind poolopts.SpawnErrorKind, format string, args ...any) *poolopts.SpawnError {
	e := poolopts.NewSpawnError(kind, fmt.Sprintf(format, args...))
	return e
}

// readHandshake waits for the worker's "I have control 1.0" line, sends the
// spawn request, then reads the socket advertisement block (original_source
// Spawner.h negotiateSpawn / handleSpawnResponse).
func readHandshake(ctx context.Context, r *bufio.Reader, w io.Writer, opts poolopts.Options, d *negotiationDetails) ([]*process.Socket, error) {
	line, err := readMessageLine(ctx, r, d)
	if err != nil {
		return nil, spawnProtocolError(poolopts.AppStartupProtocolError,
			"error reading handshake line: %v", err)
	}
	if line == "Error" {
		return nil, readErrorBlock(ctx, r, d)
	}
	if line != "I have control 1.0" {
		return nil, spawnProtocolError(poolopts.AppStartupProtocolError,
			"unexpected handshake line %q", line)
	}
	if err := writeSpawnRequest(w, opts, d); err != nil {
		return nil, spawnProtocolError(poolopts.AppStartupProtocolError,
			"error writing spawn request: %v", err)
	}
	return readSocketAdvertisements(ctx, r, d)
}

// readSocketAdvertisements reads "key: value" lines until a blank line,
// parsing "socket: name;address;protocol;concurrency" entries and
// rejecting anything else (original_source Spawner.h handleSpawnResponse).
func readSocketAdvertisements(ctx context.Context, r *bufio.Reader, d *negotiationDetails) ([]*process.Socket, error) {
	ready, err := readMessageLine(ctx, r, d)
	if err != nil {
		return nil, spawnProtocolError(poolopts.AppStartupProtocolError,
			"error reading startup response: %v", err)
	}
	switch ready {
	case "Error":
		return nil, readErrorBlock(ctx, r, d)
	case "Ready":
		// expected: socket advertisements follow
	default:
		return nil, spawnProtocolError(poolopts.AppStartupProtocolError,
			"expected Ready marker, got %q", ready)
	}

	var sockets []*process.Socket
	for {
		line, err := readMessageLine(ctx, r, d)
		if err != nil {
			return nil, spawnProtocolError(poolopts.AppStartupProtocolError,
				"error reading startup response: %v", err)
		}
		if line == "" {
			break
		}
		if line == "Error" {
			return nil, readErrorBlock(ctx, r, d)
		}
		idx := strings.Index(line, ": ")
		if idx < 0 {
			return nil, spawnProtocolError(poolopts.AppStartupProtocolError,
				"startup response line without separator: %q", line)
		}
		key, value := line[:idx], line[idx+2:]
		if key != "socket" {
			return nil, spawnProtocolError(poolopts.AppStartupProtocolError,
				"unknown startup response line %q", key)
		}
		sock, err := parseSocketAdvertisement(value)
		if err != nil {
			return nil, spawnProtocolError(poolopts.AppStartupProtocolError, "%v", err)
		}
		sockets = append(sockets, sock)
	}
	if !hasSessionSocket(sockets) {
		return nil, spawnProtocolError(poolopts.AppStartupProtocolError,
			"worker did not advertise any session sockets")
	}
	return sockets, nil
}

func hasSessionSocket(sockets []*process.Socket) bool {
	for _, s := range sockets {
		if s.Protocol.IsSessionProtocol() {
			return true
		}
	}
	return false
}

// parseSocketAdvertisement parses "name;address;protocol;concurrency"
// (original_source Spawner.h: "socket: <name>;<address>;<protocol>;<concurrency>").
func parseSocketAdvertisement(value string) (*process.Socket, error) {
	parts := strings.Split(value, ";")
	if len(parts) != 4 {
		return nil, fmt.Errorf("malformed socket advertisement %q", value)
	}
	concurrency, err := strconv.Atoi(parts[3])
	if err != nil {
		return nil, fmt.Errorf("malformed socket concurrency in %q: %w", value, err)
	}
	address, err := validateSocketAddress(parts[1])
	if err != nil {
		return nil, err
	}
	return &process.Socket{
		Name:        parts[0],
		Address:     address,
		Protocol:    process.Protocol(parts[2]),
		Concurrency: concurrency,
	}, nil
}

// validateSocketAddress rejects anything that isn't a plausibly-owned
// unix domain socket or a loopback TCP address (original_source Spawner.h
// validateSocketAddress). TCP ownership validation (checking the listener
// is actually bound to loopback) is not implemented; see Open Question OQ1.
func validateSocketAddress(address string) (string, error) {
	switch {
	case strings.HasPrefix(address, "unix:"):
		path := strings.TrimPrefix(address, "unix:")
		if !strings.HasPrefix(path, "/") {
			return "", fmt.Errorf("non-absolute unix socket path %q", path)
		}
		return address, nil
	case strings.HasPrefix(address, "tcp://"):
		// TODO(OQ1): verify the bound address is loopback before trusting it.
		return address, nil
	default:
		return "", fmt.Errorf("unrecognized socket address %q", address)
	}
}

// readErrorBlock reads the "Error" payload the worker sends on failure:
// optional "html: true"/"summary: ..."/"error_id: ..." attribute lines,
// a blank line, then the free-form error body.
func readErrorBlock(ctx context.Context, r *bufio.Reader, d *negotiationDetails) error {
	se := &poolopts.SpawnError{Kind: poolopts.AppStartupExplainableError}
	for {
		line, err := readMessageLine(ctx, r, d)
		if err != nil {
			break
		}
		if line == "" {
			break
		}
		idx := strings.Index(line, ": ")
		if idx < 0 {
			continue
		}
		switch key, value := line[:idx], line[idx+2:]; key {
		case "html":
			se.HTML = value == "true"
		case "summary":
			se.Summary = value
		case "error_id":
			se.ErrorID = value
		}
	}
	var body strings.Builder
	for {
		line, err := readMessageLine(ctx, r, d)
		if err != nil {
			break
		}
		body.WriteString(line)
		body.WriteString("\n")
	}
	se.Message = strings.TrimSpace(body.String())
	if d.stderrTail != nil {
		se.StderrOutput = d.stderrTail.String()
	}
	return se
}

// tailBuffer keeps the last N non-protocol stdout lines of a worker for
// inclusion in a SpawnError, mirroring BackgroundIOCapturer's bounded buffer.
// The worker's stderr goes to the log writers (or os.Stderr) and is not
// captured here.
type tailBuffer struct {
	lines []string
	max   int
}

func newTailBuffer(max int) *tailBuffer {
	return &tailBuffer{max: max}
}

func (t *tailBuffer) Append(line string) {
	t.lines = append(t.lines, line)
	if len(t.lines) > t.max {
		t.lines = t.lines[len(t.lines)-t.max:]
	}
}

func (t *tailBuffer) String() string {
	return strings.Join(t.lines, "\n")
}
