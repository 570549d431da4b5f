package pool

import (
	"encoding/xml"
	"fmt"
	"strings"
	"time"

	"github.com/procpool/procpool/internal/process"
)

// xmlInfo mirrors the stable schema spec §6 describes: root <info
// version="2"> with process_count/max/utilization/get_wait_list_size and a
// <supergroups> sequence.
type xmlInfo struct {
	XMLName        xml.Name        `xml:"info"`
	Version        string          `xml:"version,attr"`
	ProcessCount   int             `xml:"process_count"`
	Max            int             `xml:"max"`
	Utilization    int             `xml:"utilization"`
	GetWaitSize    int             `xml:"get_wait_list_size"`
	Supergroups    xmlSupergroups  `xml:"supergroups"`
}

type xmlSupergroups struct {
	Items []xmlSupergroup `xml:"supergroup"`
}

type xmlSupergroup struct {
	Name        string     `xml:"name"`
	State       string     `xml:"state"`
	WaitSize    int        `xml:"get_wait_list_size"`
	Utilization int        `xml:"utilization"`
	Secret      string     `xml:"secret,omitempty"`
	Groups      []xmlGroup `xml:"group"`
}

type xmlGroup struct {
	Default   bool          `xml:"default,attr,omitempty"`
	AppRoot   string        `xml:"app_root"`
	MinProcs  int           `xml:"min_processes"`
	MaxProcs  int           `xml:"max_processes"`
	Enabled   int           `xml:"enabled_count"`
	Disabling int           `xml:"disabling_count"`
	Disabled  int           `xml:"disabled_count"`
	Processes []xmlProcess  `xml:"processes>process"`
}

type xmlProcess struct {
	PID             int         `xml:"pid"`
	Gupid           string      `xml:"gupid"`
	ConnectPassword string      `xml:"connect_password,omitempty"`
	Concurrency     int         `xml:"concurrency"`
	Sessions        int         `xml:"sessions"`
	Utilization     int         `xml:"utilization"`
	Processed       uint64      `xml:"processed"`
	LastUsed        string      `xml:"last_used"`
	LifeStatus      string      `xml:"life_status"`
	Enablement      string      `xml:"enablement"`
	Sockets         []xmlSocket `xml:"sockets>socket"`
}

type xmlSocket struct {
	Name        string `xml:"name"`
	Address     string `xml:"address"`
	Protocol    string `xml:"protocol"`
	Concurrency int    `xml:"concurrency"`
}

// ToXML renders the stable structured snapshot (spec §6). When
// includeSecrets is false, supergroup secrets and process connect
// passwords are omitted.
func (p *Pool) ToXML(includeSecrets bool) ([]byte, error) {
	p.mu.Lock()
	info := xmlInfo{
		Version:      "2",
		ProcessCount: p.processCountLocked(),
		Max:          p.max,
		Utilization:  p.utilizationLocked(),
		GetWaitSize:  len(p.waitlist),
	}
	for name, sg := range p.supergroups {
		entry := xmlSupergroup{
			Name:  name,
			State: sg.State().String(),
		}
		if includeSecrets {
			entry.Secret = sg.Secret()
		}
		g := sg.DefaultGroup()
		entry.WaitSize = g.GetWaitlistSize()
		entry.Utilization = g.ProcessCount()
		opts := g.Options()
		enabled, disabling, disabled := g.Processes()
		gx := xmlGroup{
			Default:   true,
			AppRoot:   opts.AppRoot,
			MinProcs:  opts.MinProcesses,
			MaxProcs:  opts.MaxProcesses,
			Enabled:   len(enabled),
			Disabling: len(disabling),
			Disabled:  len(disabled),
		}
		for _, list := range [][]*process.Process{enabled, disabling, disabled} {
			for _, proc := range list {
				gx.Processes = append(gx.Processes, toXMLProcess(proc, includeSecrets))
			}
		}
		entry.Groups = append(entry.Groups, gx)
		info.Supergroups.Items = append(info.Supergroups.Items, entry)
	}
	p.mu.Unlock()

	return xml.MarshalIndent(info, "", "  ")
}

func toXMLProcess(proc *process.Process, includeSecrets bool) xmlProcess {
	px := xmlProcess{
		PID:         proc.PID(),
		Gupid:       proc.Gupid(),
		Concurrency: proc.Concurrency(),
		Sessions:    proc.Sessions(),
		Utilization: proc.Utilization(),
		Processed:   proc.Processed(),
		LastUsed:    proc.LastUsed().UTC().Format(time.RFC3339),
		LifeStatus:  proc.LifeStatus().String(),
		Enablement:  proc.Enablement().String(),
	}
	if includeSecrets {
		px.ConnectPassword = proc.ConnectPassword()
	}
	for _, s := range proc.Sockets() {
		px.Sockets = append(px.Sockets, xmlSocket{
			Name:        s.Name,
			Address:     s.Address,
			Protocol:    string(s.Protocol),
			Concurrency: s.Concurrency,
		})
	}
	return px
}

func (p *Pool) processCountLocked() int {
	total := 0
	for _, sg := range p.supergroups {
		total += sg.DefaultGroup().ProcessCount()
	}
	return total
}

// Inspect renders the human-readable text summary (spec §4.6 inspect()).
func (p *Pool) Inspect() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var b strings.Builder
	fmt.Fprintf(&b, "Pool: %d/%d processes, %d waiting\n", p.processCountLocked(), p.max, len(p.waitlist))
	for name, sg := range p.supergroups {
		g := sg.DefaultGroup()
		enabled, disabling, disabled := g.Processes()
		fmt.Fprintf(&b, "  %s [%s]: enabled=%d disabling=%d disabled=%d waitlist=%d\n",
			name, sg.State(), len(enabled), len(disabling), len(disabled), g.GetWaitlistSize())
		for _, proc := range enabled {
			fmt.Fprintf(&b, "    pid=%d gupid=%s sessions=%d util=%d\n",
				proc.PID(), proc.Gupid(), proc.Sessions(), proc.Utilization())
		}
	}
	return b.String()
}
