// Package template scaffolds [[groups]] TOML entries for common application
// shapes, adapted from the teacher's single-process ProcessTemplate
// generator into the pool's per-app-group config shape (SPEC_FULL §3
// "poolctl init").
package template

import (
	"fmt"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/procpool/procpool/internal/config"
)

// Type selects which app-group starting point Generate produces.
type Type string

const (
	TypeWeb        Type = "web"
	TypeWebapp     Type = "webapp"
	TypeAPI        Type = "api"
	TypeService    Type = "service"
	TypeWorker     Type = "worker"
	TypeBackground Type = "background"
	TypeDatabase   Type = "database"
	TypeDB         Type = "db"
	TypeCron       Type = "cron"
	TypeScheduled  Type = "scheduled"
	TypeSimple     Type = "simple"
	TypeBasic      Type = "basic"
)

// Generator produces config.GroupConfig scaffolds for an app root.
type Generator struct{}

func NewGenerator() *Generator {
	return &Generator{}
}

// Generate builds a GroupConfig for the given type, app root, and group
// name. appRoot is required; groupName defaults to appRoot when empty.
func (g *Generator) Generate(t Type, appRoot, groupName string) (*config.GroupConfig, error) {
	if appRoot == "" {
		return nil, fmt.Errorf("app root is required")
	}
	var gc config.GroupConfig
	switch t {
	case TypeWeb, TypeWebapp:
		gc = g.webGroup(appRoot)
	case TypeAPI, TypeService:
		gc = g.apiGroup(appRoot)
	case TypeWorker, TypeBackground:
		gc = g.workerGroup(appRoot)
	case TypeDatabase, TypeDB:
		gc = g.databaseGroup(appRoot)
	case TypeCron, TypeScheduled:
		gc = g.cronGroup(appRoot)
	case TypeSimple, TypeBasic:
		gc = g.simpleGroup(appRoot)
	default:
		return nil, fmt.Errorf("unknown template type: %s (supported: web, api, worker, database, cron, simple)", t)
	}
	if groupName != "" {
		gc.AppGroupName = groupName
	}
	return &gc, nil
}

// GenerateTOML renders the group as a [[groups]] TOML fragment ready to be
// appended into a pool config file.
func (g *Generator) GenerateTOML(t Type, appRoot, groupName string) ([]byte, error) {
	gc, err := g.Generate(t, appRoot, groupName)
	if err != nil {
		return nil, err
	}
	doc := struct {
		Groups []config.GroupConfig `toml:"groups"`
	}{Groups: []config.GroupConfig{*gc}}
	out, err := toml.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("marshal group template: %w", err)
	}
	return out, nil
}

// SupportedTypes lists the canonical type names Generate accepts.
func (g *Generator) SupportedTypes() []string {
	return []string{
		string(TypeWeb), string(TypeAPI), string(TypeWorker),
		string(TypeDatabase), string(TypeCron), string(TypeSimple),
	}
}

func (g *Generator) webGroup(appRoot string) config.GroupConfig {
	return config.GroupConfig{
		AppRoot:      appRoot,
		AppType:      "web",
		Environment:  "production",
		MinProcesses: 1,
		MaxProcesses: 4,
		StartTimeout: 90 * time.Second,
		StartCommand: []string{"python", "-m", "http.server", "8000"},
	}
}

func (g *Generator) apiGroup(appRoot string) config.GroupConfig {
	return config.GroupConfig{
		AppRoot:      appRoot,
		AppType:      "api",
		Environment:  "production",
		MinProcesses: 2,
		MaxProcesses: 8,
		StartTimeout: 60 * time.Second,
		StartCommand: []string{"./api-server"},
	}
}

func (g *Generator) workerGroup(appRoot string) config.GroupConfig {
	return config.GroupConfig{
		AppRoot:      appRoot,
		AppType:      "worker",
		Environment:  "production",
		MinProcesses: 1,
		MaxProcesses: 4,
		StartTimeout: 60 * time.Second,
		StartCommand: []string{"./worker"},
	}
}

func (g *Generator) databaseGroup(appRoot string) config.GroupConfig {
	return config.GroupConfig{
		AppRoot:      appRoot,
		AppType:      "database",
		MinProcesses: 1,
		MaxProcesses: 1,
		StartTimeout: 120 * time.Second,
		StartCommand: []string{"mongod", "--dbpath", "/data/db", "--port", "27017"},
	}
}

func (g *Generator) cronGroup(appRoot string) config.GroupConfig {
	return config.GroupConfig{
		AppRoot:      appRoot,
		AppType:      "cron",
		MinProcesses: 0,
		MaxProcesses: 1,
		StartTimeout: 30 * time.Second,
		StartCommand: []string{"./scheduled-task"},
	}
}

func (g *Generator) simpleGroup(appRoot string) config.GroupConfig {
	return config.GroupConfig{
		AppRoot:      appRoot,
		MinProcesses: 1,
		MaxProcesses: 1,
		StartCommand: []string{"echo", "hello from " + appRoot},
	}
}
