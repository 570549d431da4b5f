// Package supergroup implements the thin per-app-group-name container that
// owns one-or-more Groups (spec §4.4). Almost every deployment uses exactly
// one Group per SuperGroup; the container exists so multiple deployment
// variants of the same logical application (e.g. canary vs. stable) can
// someday share one app-group-name, though this module only ever populates
// a single default Group.
package supergroup

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"sync"

	"github.com/procpool/procpool/internal/group"
	"github.com/procpool/procpool/internal/poolopts"
	"github.com/procpool/procpool/internal/process"
	"github.com/procpool/procpool/internal/spawner"
)

// generateSecret mints a random 32-hex-char token (16 bytes from
// crypto/rand) identifying one supergroup.
func generateSecret() string {
	buf := make([]byte, 16)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

// State is the SuperGroup's own lifecycle (spec §4.4).
type State int

const (
	Initializing State = iota
	Ready
	Restarting
	Destroying
	Destroyed
)

func (s State) String() string {
	switch s {
	case Ready:
		return "READY"
	case Restarting:
		return "RESTARTING"
	case Destroying:
		return "DESTROYING"
	case Destroyed:
		return "DESTROYED"
	default:
		return "INITIALIZING"
	}
}

// DestroyResult is passed to a Destroy shutdown_callback (spec §4.4).
type DestroyResult int

const (
	DestroySuccess DestroyResult = iota
	DestroyCanceled
)

// initWaiter is a caller queued on the SuperGroup's own wait list while
// still INITIALIZING, before any Group exists to hand it to.
type initWaiter struct {
	opts     poolopts.Options
	callback func(*process.Session, error)
}

// SuperGroup owns the default Group for one app-group-name (spec §4.4). All
// exported methods take g.mu internally; it never holds its lock while
// calling into Group or invoking external callbacks.
type SuperGroup struct {
	mu sync.Mutex

	name   string
	secret string
	state  State

	defaultGroup *group.Group

	initWaitlist []initWaiter

	log *slog.Logger
}

// New constructs a SuperGroup in INITIALIZING state and immediately starts
// spawning its default Group (spec §4.4, original_source's
// SuperGroup::initialize kicking off the first Group's spawn()).
func New(ctx context.Context, name string, opts poolopts.Options, sp spawner.Spawner, log *slog.Logger) *SuperGroup {
	if log == nil {
		log = slog.Default()
	}
	sg := &SuperGroup{
		name:   name,
		secret: generateSecret(),
		state:  Initializing,
		log:    log,
	}
	sg.defaultGroup = group.New(ctx, name, opts, sp, log)
	return sg
}

// Secret is an opaque per-supergroup token minted at creation, used by
// Pool.DetachSupergroupBySecret so a caller that only knows the secret it
// was handed (not the app-group-name) can still tear the supergroup down
// (spec §4.6 detach_supergroup_by_secret).
func (sg *SuperGroup) Secret() string {
	sg.mu.Lock()
	defer sg.mu.Unlock()
	return sg.secret
}

// OnCapacityChanged forwards to the default Group, letting the owning Pool
// drive its re-dispatch passes (spec §4.5.2) without needing its own
// SuperGroup-level bookkeeping.
func (sg *SuperGroup) OnCapacityChanged(fn func()) {
	sg.mu.Lock()
	g := sg.defaultGroup
	sg.mu.Unlock()
	g.OnCapacityChanged(fn)
}

func (sg *SuperGroup) Name() string { return sg.name }

func (sg *SuperGroup) State() State {
	sg.mu.Lock()
	defer sg.mu.Unlock()
	return sg.state
}

// DefaultGroup exposes the single Group this SuperGroup owns, for
// inspection/XML rendering and Pool-level GC/analytics passes.
func (sg *SuperGroup) DefaultGroup() *group.Group {
	sg.mu.Lock()
	defer sg.mu.Unlock()
	return sg.defaultGroup
}

// MarkReady transitions INITIALIZING -> READY, migrating the SuperGroup's
// own wait list into the default Group's get_waitlist and re-dispatching
// (spec §4.4). Called once the default Group's first spawn completes or
// fails; on failure every queued waiter is handed the error instead.
func (sg *SuperGroup) MarkReady(spawnErr error) {
	sg.mu.Lock()
	if sg.state != Initializing {
		sg.mu.Unlock()
		return
	}
	sg.state = Ready
	waiters := sg.initWaitlist
	sg.initWaitlist = nil
	g := sg.defaultGroup
	sg.mu.Unlock()

	for _, w := range waiters {
		if spawnErr != nil {
			w.callback(nil, spawnErr)
			continue
		}
		sg.delegateGet(g, w.opts, w.callback)
	}
}

// Get implements spec §4.4's get(): while INITIALIZING, queue on the
// SuperGroup's own wait list; once READY, delegate straight to the default
// Group.
func (sg *SuperGroup) Get(opts poolopts.Options, callback func(*process.Session, error)) {
	sg.mu.Lock()
	if sg.state == Initializing {
		sg.initWaitlist = append(sg.initWaitlist, initWaiter{opts: opts, callback: callback})
		sg.mu.Unlock()
		return
	}
	g := sg.defaultGroup
	sg.mu.Unlock()
	sg.delegateGet(g, opts, callback)
}

func (sg *SuperGroup) delegateGet(g *group.Group, opts poolopts.Options, callback func(*process.Session, error)) {
	sess, queued := g.Get(group.GetWaiter{Options: opts, Callback: callback})
	if !queued {
		callback(sess, nil)
	}
}

// Utilization aggregates the default Group's enabled/disabling process
// count against its configured max, used by Pool admission (spec §4.5.1).
func (sg *SuperGroup) Utilization() (count, max int) {
	sg.mu.Lock()
	g := sg.defaultGroup
	sg.mu.Unlock()
	opts := g.Options()
	return g.ProcessCount(), opts.MaxProcesses
}

// Destroy detaches and shuts down every Group the SuperGroup owns (spec
// §4.4 destroy()). force is accepted for parity with the original
// signature (forcibly detaching processes with open sessions) but this
// port always performs a graceful drain; shutdownCallback receives
// DestroySuccess once every process has been queued for detach.
// Migration of a destroyed SuperGroup's own wait list back to the Pool's
// wait list is intentionally not implemented: the original guards that
// path out (`#if 0`), and the active behavior hands every such waiter a
// "get aborted" error instead (spec §7, Open Question decision #2).
func (sg *SuperGroup) Destroy(force bool, actions *poolopts.Actions, shutdownCallback func(DestroyResult)) {
	sg.mu.Lock()
	if sg.state == Destroying || sg.state == Destroyed {
		sg.mu.Unlock()
		if shutdownCallback != nil {
			actions.Add(func() { shutdownCallback(DestroyCanceled) })
		}
		return
	}
	sg.state = Destroying
	waiters := sg.initWaitlist
	sg.initWaitlist = nil
	g := sg.defaultGroup
	log := sg.log
	sg.mu.Unlock()

	log.Info("destroying supergroup", "name", sg.name, "force", force)

	for _, w := range waiters {
		cb := w.callback
		actions.Add(func() { cb(nil, errGetAborted) })
	}

	g.DetachAll(actions)

	sg.mu.Lock()
	sg.state = Destroyed
	sg.mu.Unlock()

	if shutdownCallback != nil {
		actions.Add(func() { shutdownCallback(DestroySuccess) })
	}
}

// Restart moves the SuperGroup through RESTARTING back to READY, delegating
// the actual process churn to the default Group's own Restart (spec §4.4
// "RESTARTING is a transient state re-entering READY with updated
// options").
func (sg *SuperGroup) Restart(opts poolopts.Options, actions *poolopts.Actions) {
	sg.mu.Lock()
	sg.state = Restarting
	g := sg.defaultGroup
	sg.mu.Unlock()

	g.Restart(opts, actions)

	sg.mu.Lock()
	sg.state = Ready
	sg.mu.Unlock()
}

var errGetAborted = &abortedGetError{}

type abortedGetError struct{}

func (*abortedGetError) Error() string { return "get aborted: supergroup destroyed" }
