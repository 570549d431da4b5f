package process

import (
	"container/heap"
	"errors"
	"sync"
	"time"
)

// ErrNoCapacity is returned by NewSession when every session socket is
// saturated (spec §4.1 new_session(): "return none").
var ErrNoCapacity = errors.New("process: no session capacity available")

// Session is a short-lived handle bound to (process, socket). It holds a
// non-owning reference to both and must signal Close before being dropped
// (spec §3 "Session is a short-lived handle").
type Session struct {
	once    sync.Once
	process *Process
	socket  *Socket
}

// Process returns the process this session was routed to.
func (s *Session) Process() *Process { return s.process }

// SocketName returns the name of the socket this session was routed to.
func (s *Session) SocketName() string { return s.socket.Name }

// Close signals session_closed on the owning process. Safe to call more
// than once; only the first call has an effect.
func (s *Session) Close() {
	s.once.Do(func() {
		s.process.sessionClosed(s.socket)
	})
}

// NewSession implements Process.new_session() (spec §4.1): pop the
// session-socket with lowest utilization, fail if it is saturated,
// otherwise admit one session and fix the heap.
func (p *Process) NewSession() (*Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.sessionPQ) == 0 {
		return nil, ErrNoCapacity
	}
	sock := p.sessionPQ[0]
	if !sock.HasCapacity() {
		return nil, ErrNoCapacity
	}
	sock.Sessions++
	p.sessions++
	p.processed++
	p.lastUsed = time.Now()
	p.sessionPQ.fix(sock)
	return &Session{process: p, socket: sock}, nil
}

// sessionClosed implements Process.session_closed() (spec §4.1). It then
// notifies the owning Group (if any hook is registered) so the group's own
// routing priority queue and get_waitlist can be re-checked, mirroring
// Process::sessionClosed calling group->onSessionClose (original_source
// Process.h).
func (p *Process) sessionClosed(sock *Socket) {
	p.mu.Lock()
	sock.Sessions--
	p.sessions--
	p.lastUsed = time.Now()
	p.sessionPQ.fix(sock)
	hook := p.onSessionClosed
	p.mu.Unlock()
	if hook != nil {
		hook(p)
	}
}

// SetSessionClosedHook registers the callback invoked after every
// session_closed, used by Group to keep its routing priority queue and
// get_waitlist consistent (spec §4.1 "The caller (Group) then re-checks
// get_waitlist").
func (p *Process) SetSessionClosedHook(fn func(*Process)) {
	p.mu.Lock()
	p.onSessionClosed = fn
	p.mu.Unlock()
}

// peekLowestUtilization returns the utilization of the least-loaded
// session socket without allocating a Session.
func (p *Process) peekLowestUtilization() (int, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.sessionPQ) == 0 {
		return 0, false
	}
	return p.sessionPQ[0].Utilization(), true
}

var _ = heap.Interface(&socketHeap{}) // compile-time interface assertion
