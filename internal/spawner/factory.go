package spawner

import (
	"log/slog"

	"github.com/procpool/procpool/internal/logger"
	"github.com/procpool/procpool/internal/poolopts"
)

// Factory creates the right Spawner for a Group's Options, mirroring
// SpawnerFactory's job of picking between DirectSpawner and SmartSpawner
// based on the configured spawn method (original_source Spawner.h comment
// on SpawnerFactory).
type Factory struct {
	Logs logger.Config
	Log  *slog.Logger

	// StartCommand resolves the argv used to launch a worker (direct
	// method) or preloader (smart method) for a given group. Tests
	// inject a fake; cmd/poolctl looks it up by app group name among the
	// start_command entries of the config file's [[groups]].
	StartCommand func(opts poolopts.Options) []string
}

// New returns a Spawner appropriate for opts.SpawnMethod. opts.NoOp selects
// a DummySpawner regardless of SpawnMethod, for tests.
func (f *Factory) New(opts poolopts.Options) Spawner {
	if opts.NoOp {
		return NewDummySpawner(0)
	}
	var argv []string
	if f.StartCommand != nil {
		argv = f.StartCommand(opts)
	}
	switch opts.SpawnMethod {
	case poolopts.SpawnMethodDirect:
		return NewDirectSpawner(argv, f.Logs, f.Log)
	default:
		return NewSmartSpawner(argv, f.Logs, f.Log)
	}
}
