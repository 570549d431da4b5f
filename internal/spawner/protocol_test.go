package spawner

import (
	"bufio"
	"context"
	"io"
	"testing"
	"time"

	"github.com/procpool/procpool/internal/poolopts"
)

func TestParseSocketAdvertisement(t *testing.T) {
	s, err := parseSocketAdvertisement("main;unix:/tmp/x.sock;session;4")
	if err != nil {
		t.Fatalf("parseSocketAdvertisement: %v", err)
	}
	if s.Name != "main" || s.Address != "unix:/tmp/x.sock" || s.Concurrency != 4 {
		t.Fatalf("unexpected socket: %+v", s)
	}

	if _, err := parseSocketAdvertisement("main;unix:/tmp/x.sock;session"); err == nil {
		t.Fatalf("expected error for malformed advertisement")
	}
	if _, err := parseSocketAdvertisement("main;/tmp/x.sock;session;4"); err == nil {
		t.Fatalf("expected error for unrecognized address scheme")
	}
}

func TestReadHandshakeHappyPath(t *testing.T) {
	// workerOut is what the worker writes (read by the pool as stdout);
	// workerIn is what the pool writes (read by the worker as stdin).
	workerOutR, workerOutW := io.Pipe()
	workerInR, workerInW := io.Pipe()
	_ = workerInR

	go func() {
		_, _ = io.WriteString(workerOutW, "!> I have control 1.0\n")
		// drain the pool's spawn request so writeSpawnRequest doesn't block.
		buf := make([]byte, 4096)
		_, _ = workerInR.Read(buf)
		_, _ = io.WriteString(workerOutW, "!> Ready\n")
		_, _ = io.WriteString(workerOutW, "!> socket: main;unix:/tmp/x.sock;session;0\n")
		_, _ = io.WriteString(workerOutW, "!> \n")
	}()

	d := &negotiationDetails{timeout: time.Second, stderrTail: newTailBuffer(10)}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	sockets, err := readHandshake(ctx, bufio.NewReader(workerOutR), workerInW, poolopts.Options{AppRoot: "/a"}.Normalize(), d)
	if err != nil {
		t.Fatalf("readHandshake: %v", err)
	}
	if len(sockets) != 1 || sockets[0].Name != "main" {
		t.Fatalf("unexpected sockets: %+v", sockets)
	}
}

func TestReadHandshakeRejectsWrongGreeting(t *testing.T) {
	r, w := io.Pipe()
	go func() {
		_, _ = io.WriteString(w, "!> something else\n")
	}()
	d := &negotiationDetails{timeout: time.Second, stderrTail: newTailBuffer(10)}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := readHandshake(ctx, bufio.NewReader(r), io.Discard, poolopts.Options{}.Normalize(), d); err == nil {
		t.Fatalf("expected error for wrong greeting")
	}
}

func TestTailBufferBounded(t *testing.T) {
	tb := newTailBuffer(2)
	tb.Append("a")
	tb.Append("b")
	tb.Append("c")
	if got := tb.String(); got != "b\nc" {
		t.Fatalf("tailBuffer.String() = %q", got)
	}
}
