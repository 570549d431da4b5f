package spawner

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/procpool/procpool/internal/env"
	"github.com/procpool/procpool/internal/logger"
	"github.com/procpool/procpool/internal/poolopts"
	"github.com/procpool/procpool/internal/process"
)

// DirectSpawner forks one worker per Spawn call and negotiates the spawn
// protocol over its stdin/stdout, discarding the worker once spawned (spec
// §9 "direct spawning forks a fresh worker per Process"). It is the Go
// analogue of DirectSpawner.h.
type DirectSpawner struct {
	mu       sync.Mutex
	command  []string
	logs     logger.Config
	env      *env.Env
	lastUsed time.Time

	log *slog.Logger
}

// NewDirectSpawner builds a DirectSpawner that launches command (argv[0]
// plus args) for every worker it spawns.
func NewDirectSpawner(command []string, logs logger.Config, log *slog.Logger) *DirectSpawner {
	if log == nil {
		log = slog.Default()
	}
	e := env.New()
	e.FromOS()
	return &DirectSpawner{command: command, logs: logs, env: e, log: log}
}

func (s *DirectSpawner) Cleanable() bool     { return true }
func (s *DirectSpawner) Cleanup() error      { return nil }
func (s *DirectSpawner) LastUsed() time.Time { s.mu.Lock(); defer s.mu.Unlock(); return s.lastUsed }

// Spawn forks the configured command, performs the negotiation handshake
// over its stdin/stdout, and returns the resulting Process. On any failure
// the child is killed and reaped before returning.
func (s *DirectSpawner) Spawn(ctx context.Context, opts poolopts.Options) (*process.Process, error) {
	if len(s.command) == 0 {
		return nil, poolopts.NewSpawnError(poolopts.InternalError, "direct spawner: no command configured")
	}
	opts = opts.Normalize()

	cmd := exec.CommandContext(ctx, s.command[0], s.command[1:]...)
	cmd.Dir = opts.AppRoot
	cmd.Env = s.env.Merge(nil)
	configureSysProcAttr(cmd, opts)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, poolopts.NewSpawnError(poolopts.InternalError, "stdin pipe: "+err.Error())
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, poolopts.NewSpawnError(poolopts.InternalError, "stdout pipe: "+err.Error())
	}

	if _, stderrW, werr := s.logs.Writers(opts.GroupName()); werr == nil && stderrW != nil {
		cmd.Stderr = stderrW
		defer func() { _ = stderrW.Close() }()
	} else {
		cmd.Stderr = os.Stderr
	}

	startTime := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, poolopts.NewSpawnError(poolopts.InternalError, "start: "+err.Error())
	}

	d := &negotiationDetails{
		pid:             cmd.Process.Pid,
		gupid:           generateGupid(),
		connectPassword: generateConnectPassword(),
		startTime:       startTime,
		timeout:         opts.StartTimeout,
		stderrTail:      newTailBuffer(50),
	}

	negCtx, cancel := context.WithTimeout(ctx, opts.StartTimeout)
	defer cancel()

	reader := bufio.NewReader(stdout)
	sockets, negErr := readHandshake(negCtx, reader, stdin, opts, d)
	if negErr != nil {
		killAndReap(cmd)
		return nil, negErr
	}

	p := process.New(opts.GroupName(), d.gupid, d.connectPassword, d.pid, sockets, newOSLiveChecker(d.pid))
	p.SetSpawnTimes(d.startTime, time.Now())
	admin := newStdinAdminCloser(stdin)
	p.SetAdminCloser(admin)
	go runAdminReader(reader, p, admin)
	s.log.Info("spawned worker", "group", opts.GroupName(), "pid", d.pid, "gupid", d.gupid)

	s.mu.Lock()
	s.lastUsed = time.Now()
	s.mu.Unlock()

	go reapWhenDone(cmd, stdin, s.log, d.pid)

	return p, nil
}

// killAndReap force-kills a worker that failed negotiation and waits for it
// so it never lingers as a zombie (original_source Spawner.h
// nonInterruptableKillAndWaitpid).
func killAndReap(cmd *exec.Cmd) {
	if cmd.Process != nil {
		_ = cmd.Process.Kill()
	}
	_ = cmd.Wait()
}

// reapWhenDone waits for a successfully-spawned worker to exit in the
// background so it is never left as a zombie, and logs the outcome.
func reapWhenDone(cmd *exec.Cmd, stdin io.Closer, log *slog.Logger, pid int) {
	err := cmd.Wait()
	_ = stdin.Close()
	if err != nil {
		log.Warn("worker exited", "pid", pid, "err", err)
	} else {
		log.Info("worker exited", "pid", pid)
	}
}

