// Package spawner forks worker processes and negotiates the spawn
// protocol with them (spec §3, §4.2). It is the Go analogue of Passenger's
// Spawner.h/DirectSpawner.h/SmartSpawner.h: internal/process knows nothing
// about how a Process came into being, only what it looks like once it has.
package spawner

import (
	"context"
	"crypto/rand"
	"fmt"
	"time"

	"github.com/procpool/procpool/internal/poolopts"
	"github.com/procpool/procpool/internal/process"
)

// Spawner spawns one new Process for the group identified by opts.
// Implementations must be safe for concurrent use; the pool never calls
// Spawn on the same Spawner instance concurrently in practice (the group's
// spawning state machine serializes it) but nothing prevents it.
type Spawner interface {
	// Spawn negotiates and returns a new, ALIVE Process. On failure it
	// returns a *poolopts.SpawnError describing what went wrong.
	Spawn(ctx context.Context, opts poolopts.Options) (*process.Process, error)

	// Cleanable reports whether this Spawner may be reclaimed when idle
	// (spec §9 "Smart spawning keeps a preloader process around"). Direct
	// and Dummy spawners are stateless and always cleanable.
	Cleanable() bool

	// Cleanup releases any resources held by an idle Spawner (e.g. shuts
	// down a SmartSpawner's preloader). Safe to call on an already-clean
	// Spawner.
	Cleanup() error

	// LastUsed reports when this Spawner last produced a Process, used by
	// the pool's idle-preloader reaping pass.
	LastUsed() time.Time
}

const (
	asciiAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// generateAsciiString returns n random characters from asciiAlphabet,
// mirroring RandomGenerator::generateAsciiString used for gupid/connect_password
// (original_source Spawner.h negotiateSpawn).
func generateAsciiString(n int) string {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		panic(fmt.Sprintf("spawner: crypto/rand failure: %v", err))
	}
	out := make([]byte, n)
	for i, b := range buf {
		out[i] = asciiAlphabet[int(b)%len(asciiAlphabet)]
	}
	return string(out)
}

// generateGupid returns "<hex minute timestamp>-<11 random chars>", the
// exact format negotiateSpawn builds (original_source Spawner.h).
func generateGupid() string {
	minute := time.Now().Unix() / 60
	return fmt.Sprintf("%x-%s", minute, generateAsciiString(11))
}

// generateConnectPassword returns a 43-character random password, the
// length negotiateSpawn uses.
func generateConnectPassword() string {
	return generateAsciiString(43)
}
