package spawner

import (
	"bufio"
	"context"
	"fmt"
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

// SmartSpawner keeps one preloader worker alive and asks it to fork a
// fresh child for every Spawn call, amortizing application-loading cost
// across spawns (spec §9 "smart spawning"; original_source Spawner.h
// SmartSpawner). The preloader is started lazily on first use and torn
// down by Cleanup once idle past MaxPreloaderIdle.
type SmartSpawner struct {
	command []string
	logs    logger.Config
	env     *env.Env
	log     *slog.Logger

	mu        sync.Mutex
	cmd       *exec.Cmd
	stdin     io.WriteCloser
	stdout    *bufio.Reader
	preGupid  string
	prePass   string
	lastUsed  time.Time
	startedAt time.Time
}

// NewSmartSpawner builds a SmartSpawner whose preloader is launched with
// command on first Spawn call.
func NewSmartSpawner(command []string, logs logger.Config, log *slog.Logger) *SmartSpawner {
	if log == nil {
		log = slog.Default()
	}
	e := env.New()
	e.FromOS()
	return &SmartSpawner{command: command, logs: logs, env: e, log: log}
}

func (s *SmartSpawner) LastUsed() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastUsed
}

// Cleanable reports whether the preloader may be reaped: only once it has
// actually been started. How long it has been idle is not checked here.
func (s *SmartSpawner) Cleanable() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cmd != nil
}

// Cleanup kills the preloader process, if running.
func (s *SmartSpawner) Cleanup() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cmd == nil {
		return nil
	}
	if s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
	}
	_ = s.stdin.Close()
	err := s.cmd.Wait()
	s.cmd = nil
	s.stdin = nil
	s.stdout = nil
	return err
}

func (s *SmartSpawner) ensurePreloaderLocked(ctx context.Context, opts poolopts.Options) error {
	if s.cmd != nil {
		return nil
	}
	if len(s.command) == 0 {
		return poolopts.NewSpawnError(poolopts.InternalError, "smart spawner: no preloader command configured")
	}
	cmd := exec.CommandContext(ctx, s.command[0], s.command[1:]...)
	cmd.Dir = opts.AppRoot
	cmd.Env = s.env.Merge(nil)
	configureSysProcAttr(cmd, opts)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return poolopts.NewSpawnError(poolopts.InternalError, "preloader stdin pipe: "+err.Error())
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return poolopts.NewSpawnError(poolopts.InternalError, "preloader stdout pipe: "+err.Error())
	}
	if _, stderrW, werr := s.logs.Writers(opts.GroupName() + ".preloader"); werr == nil && stderrW != nil {
		cmd.Stderr = stderrW
	} else {
		cmd.Stderr = os.Stderr
	}

	if err := cmd.Start(); err != nil {
		return poolopts.NewSpawnError(poolopts.InternalError, "preloader start: "+err.Error())
	}

	d := &negotiationDetails{
		pid:             cmd.Process.Pid,
		gupid:           generateGupid(),
		connectPassword: generateConnectPassword(),
		timeout:         opts.StartTimeout,
		stderrTail:      newTailBuffer(50),
	}
	r := bufio.NewReader(stdout)
	negCtx, cancel := context.WithTimeout(ctx, opts.StartTimeout)
	defer cancel()

	line, err := readMessageLine(negCtx, r, d)
	if err != nil || line != "I have control 1.0" {
		killAndReap(cmd)
		return spawnProtocolError(poolopts.PreloaderStartupProtocolError,
			"preloader did not perform handshake: %v", err)
	}
	if err := writeSpawnRequest(stdin, opts, d); err != nil {
		killAndReap(cmd)
		return spawnProtocolError(poolopts.PreloaderStartupProtocolError,
			"error writing preloader request: %v", err)
	}
	// Drain the preloader's own startup response block (it advertises no
	// session sockets of its own, just an ack).
	if _, err := drainKeyValueBlock(negCtx, r, d); err != nil {
		killAndReap(cmd)
		return spawnProtocolError(poolopts.PreloaderStartupProtocolError,
			"preloader startup failed: %v", err)
	}

	s.cmd = cmd
	s.stdin = stdin
	s.stdout = r
	s.preGupid = d.gupid
	s.prePass = d.connectPassword
	s.startedAt = time.Now()
	s.log.Info("preloader started", "pid", d.pid)
	return nil
}

// drainKeyValueBlock reads key/value lines until a blank line, returning
// them as a map, or a *poolopts.SpawnError if the preloader reported one.
func drainKeyValueBlock(ctx context.Context, r *bufio.Reader, d *negotiationDetails) (map[string]string, error) {
	out := map[string]string{}
	for {
		line, err := readMessageLine(ctx, r, d)
		if err != nil {
			return nil, err
		}
		if line == "" {
			return out, nil
		}
		if line == "Error" {
			return nil, readErrorBlock(ctx, r, d)
		}
		for i := 0; i+1 < len(line); i++ {
			if line[i] == ':' && line[i+1] == ' ' {
				out[line[:i]] = line[i+2:]
				break
			}
		}
	}
}

// Spawn asks the preloader to fork a new worker. The preloader replies
// with the same socket-advertisement block a directly-spawned worker would
// send (original_source Spawner.h: SmartSpawner reuses handleSpawnResponse).
func (s *SmartSpawner) Spawn(ctx context.Context, opts poolopts.Options) (*process.Process, error) {
	opts = opts.Normalize()

	s.mu.Lock()
	if err := s.ensurePreloaderLocked(ctx, opts); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	stdin, r := s.stdin, s.stdout
	s.mu.Unlock()

	d := &negotiationDetails{
		gupid:           generateGupid(),
		connectPassword: generateConnectPassword(),
		startTime:       time.Now(),
		timeout:         opts.StartTimeout,
		stderrTail:      newTailBuffer(50),
	}

	if _, err := io.WriteString(stdin, fmt.Sprintf("spawn\ngupid: %s\nconnect_password: %s\napp_group_name: %s\n\n",
		d.gupid, d.connectPassword, opts.GroupName())); err != nil {
		return nil, spawnProtocolError(poolopts.AppStartupProtocolError, "error requesting spawn from preloader: %v", err)
	}

	negCtx, cancel := context.WithTimeout(ctx, opts.StartTimeout)
	defer cancel()

	kv, err := drainKeyValueBlock(negCtx, r, d)
	if err != nil {
		return nil, err
	}
	pidStr, ok := kv["pid"]
	if !ok {
		return nil, spawnProtocolError(poolopts.AppStartupProtocolError, "preloader response missing pid")
	}
	var pid int
	if _, err := fmt.Sscanf(pidStr, "%d", &pid); err != nil {
		return nil, spawnProtocolError(poolopts.AppStartupProtocolError, "preloader sent malformed pid %q", pidStr)
	}
	d.pid = pid

	sockets, err := readSocketAdvertisements(negCtx, r, d)
	if err != nil {
		return nil, err
	}

	p := process.New(opts.GroupName(), d.gupid, d.connectPassword, d.pid, sockets, newOSLiveChecker(d.pid))
	p.SetSpawnTimes(d.startTime, time.Now())
	s.log.Info("preloader spawned worker", "group", opts.GroupName(), "pid", d.pid, "gupid", d.gupid)

	s.mu.Lock()
	s.lastUsed = time.Now()
	s.mu.Unlock()
	return p, nil
}
