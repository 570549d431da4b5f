package template

import (
	"strings"
	"testing"

	"github.com/procpool/procpool/internal/config"
)

func TestGeneratorGenerate(t *testing.T) {
	generator := NewGenerator()

	tests := []struct {
		name        string
		typ         Type
		appRoot     string
		expectError bool
		validate    func(*testing.T, *config.GroupConfig)
	}{
		{
			name:    "web_template",
			typ:     TypeWeb,
			appRoot: "/apps/my-web-app",
			validate: func(t *testing.T, g *config.GroupConfig) {
				if g.AppType != "web" {
					t.Errorf("unexpected app type: %s", g.AppType)
				}
				if len(g.StartCommand) == 0 || g.StartCommand[0] != "python" {
					t.Errorf("unexpected start command: %v", g.StartCommand)
				}
				if g.MaxProcesses != 4 {
					t.Errorf("expected max_processes 4, got %d", g.MaxProcesses)
				}
			},
		},
		{
			name:    "api_template",
			typ:     TypeAPI,
			appRoot: "/apps/user-service",
			validate: func(t *testing.T, g *config.GroupConfig) {
				if g.MinProcesses != 2 {
					t.Errorf("expected min_processes 2, got %d", g.MinProcesses)
				}
			},
		},
		{
			name:    "worker_template",
			typ:     TypeWorker,
			appRoot: "/apps/data-worker",
			validate: func(t *testing.T, g *config.GroupConfig) {
				if len(g.StartCommand) == 0 || g.StartCommand[0] != "./worker" {
					t.Errorf("unexpected start command: %v", g.StartCommand)
				}
			},
		},
		{
			name:    "database_template",
			typ:     TypeDatabase,
			appRoot: "/apps/mongo-db",
			validate: func(t *testing.T, g *config.GroupConfig) {
				if !strings.Contains(strings.Join(g.StartCommand, " "), "mongod") {
					t.Errorf("expected mongod command, got: %v", g.StartCommand)
				}
				if g.MaxProcesses != 1 {
					t.Errorf("expected single-process database group, got %d", g.MaxProcesses)
				}
			},
		},
		{
			name:    "cron_template",
			typ:     TypeCron,
			appRoot: "/apps/daily-task",
			validate: func(t *testing.T, g *config.GroupConfig) {
				if g.MinProcesses != 0 {
					t.Errorf("expected min_processes 0 for cron, got %d", g.MinProcesses)
				}
			},
		},
		{
			name:    "simple_template",
			typ:     TypeSimple,
			appRoot: "/apps/hello-world",
			validate: func(t *testing.T, g *config.GroupConfig) {
				if !strings.Contains(strings.Join(g.StartCommand, " "), "hello-world") {
					t.Errorf("expected command to mention app root, got: %v", g.StartCommand)
				}
			},
		},
		{
			name:        "invalid_template",
			typ:         "invalid",
			appRoot:     "/apps/x",
			expectError: true,
		},
		{
			name:        "missing_app_root",
			typ:         TypeSimple,
			appRoot:     "",
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gc, err := generator.Generate(tt.typ, tt.appRoot, "")
			if tt.expectError {
				if err == nil {
					t.Error("expected error but got none")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if gc.AppRoot != tt.appRoot {
				t.Errorf("expected app root %q, got %q", tt.appRoot, gc.AppRoot)
			}
			if tt.validate != nil {
				tt.validate(t, gc)
			}
		})
	}
}

func TestGeneratorGenerateTOML(t *testing.T) {
	generator := NewGenerator()

	out, err := generator.GenerateTOML(TypeAPI, "/apps/api", "api-group")
	if err != nil {
		t.Fatalf("generate toml: %v", err)
	}
	s := string(out)
	if !strings.Contains(s, "app_root") {
		t.Errorf("expected app_root key in output, got:\n%s", s)
	}
	if !strings.Contains(s, "api-group") {
		t.Errorf("expected app_group_name in output, got:\n%s", s)
	}
}

func TestGeneratorSupportedTypes(t *testing.T) {
	generator := NewGenerator()
	types := generator.SupportedTypes()

	expected := []string{"web", "api", "worker", "database", "cron", "simple"}
	if len(types) != len(expected) {
		t.Errorf("expected %d supported types, got %d", len(expected), len(types))
	}
	set := make(map[string]bool)
	for _, typ := range types {
		set[typ] = true
	}
	for _, e := range expected {
		if !set[e] {
			t.Errorf("expected type %q not found in supported types", e)
		}
	}
}

func TestTemplateAliasesProduceSameStartCommand(t *testing.T) {
	generator := NewGenerator()

	aliases := map[Type]Type{
		TypeWebapp:     TypeWeb,
		TypeService:    TypeAPI,
		TypeBackground: TypeWorker,
		TypeDB:         TypeDatabase,
		TypeScheduled:  TypeCron,
		TypeBasic:      TypeSimple,
	}

	for alias, primary := range aliases {
		t.Run(string(alias)+"_alias", func(t *testing.T) {
			a, err := generator.Generate(alias, "/apps/test", "")
			if err != nil {
				t.Fatalf("alias %q: %v", alias, err)
			}
			p, err := generator.Generate(primary, "/apps/test", "")
			if err != nil {
				t.Fatalf("primary %q: %v", primary, err)
			}
			if strings.Join(a.StartCommand, " ") != strings.Join(p.StartCommand, " ") {
				t.Errorf("alias %q and primary %q generate different start commands", alias, primary)
			}
		})
	}
}
