// Package poolopts holds the types shared across process, spawner, group
// and pool: the get() options bag and the spawn error taxonomy. Splitting
// these out avoids an import cycle between the packages that all need to
// read and construct them.
package poolopts

import "time"

// SpawnMethod selects how a Spawner forks new worker processes.
type SpawnMethod string

const (
	SpawnMethodDirect SpawnMethod = "direct"
	SpawnMethodSmart  SpawnMethod = "smart"
)

// Options are the options recognized by Pool.Get / Pool.AsyncGet (spec §6).
type Options struct {
	AppRoot      string
	AppGroupName string
	AppType      string

	StartTimeout time.Duration

	Environment string
	BaseURI     string

	User, Group               string
	DefaultUser, DefaultGroup string

	MinProcesses        int
	MaxProcesses        int
	MaxPreloaderIdle    time.Duration
	SpawnMethod         SpawnMethod
	ConcurrencyModel    string
	PreexecChroot       string
	PostexecChroot      string
	Analytics           bool
	UnionStationKey     string
	AllowTrashingNonIdle bool
	NoOp                bool
	RaiseInternalError  bool
}

// GroupName returns the app-group-name this request should route under,
// defaulting to AppRoot when unset (spec §3, Group identity).
func (o Options) GroupName() string {
	if o.AppGroupName != "" {
		return o.AppGroupName
	}
	return o.AppRoot
}

// Normalize fills in defaults and enforces the union_station_key implies
// analytics rule from the original Options.h (spec SPEC_FULL §4).
func (o Options) Normalize() Options {
	if o.MinProcesses < 0 {
		o.MinProcesses = 0
	}
	if o.MaxProcesses <= 0 {
		o.MaxProcesses = 1 << 30
	}
	if o.StartTimeout <= 0 {
		o.StartTimeout = 90 * time.Second
	}
	if o.SpawnMethod == "" {
		o.SpawnMethod = SpawnMethodSmart
	}
	if o.UnionStationKey != "" {
		o.Analytics = true
	}
	return o
}
