package poolopts

// Actions is the "post-lock actions" deferred-closure list spec §5 requires:
// no callback to external code runs while a Pool/SuperGroup/Group lock is
// held. Methods that would invoke external code append a closure here
// instead; the caller runs them after releasing its lock.
type Actions struct {
	fns []func()
}

// Add appends fn, a no-op if fn is nil.
func (a *Actions) Add(fn func()) {
	if fn != nil {
		a.fns = append(a.fns, fn)
	}
}

// Run executes every queued closure in order. The caller must not hold any
// pool/group lock when calling this.
func (a *Actions) Run() {
	for _, fn := range a.fns {
		fn()
	}
}

// Len reports how many actions are queued.
func (a *Actions) Len() int { return len(a.fns) }
