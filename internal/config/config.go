// Package config loads the pool's TOML configuration: global env, logging,
// the set of application groups to pre-register, history export, and the
// control-surface server settings.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/procpool/procpool/internal/logger"
	"github.com/procpool/procpool/internal/poolopts"
	"github.com/spf13/viper"
)

// FileConfig represents the top-level TOML structure.
type FileConfig struct {
	Env      []string   `toml:"env" mapstructure:"env"`
	EnvFiles []string   `toml:"env_files" mapstructure:"env_files"`
	UseOSEnv bool       `toml:"use_os_env" mapstructure:"use_os_env"`
	Log      *LogConfig `toml:"log" mapstructure:"log"`

	Pool    PoolConfig    `toml:"pool" mapstructure:"pool"`
	Groups  []GroupConfig `toml:"groups" mapstructure:"groups"`
	History *HistoryConfig `toml:"history" mapstructure:"history"`
	Server  *ServerConfig `toml:"server" mapstructure:"server"`
	TLS     *TLSConfig    `toml:"tls" mapstructure:"tls"`
}

type LogConfig struct {
	Dir        string `toml:"dir" mapstructure:"dir"`
	Stdout     string `toml:"stdout" mapstructure:"stdout"`
	Stderr     string `toml:"stderr" mapstructure:"stderr"`
	MaxSizeMB  int    `toml:"max_size_mb" mapstructure:"max_size_mb"`
	MaxBackups int    `toml:"max_backups" mapstructure:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days" mapstructure:"max_age_days"`
	Compress   bool   `toml:"compress" mapstructure:"compress"`
}

func (lc *LogConfig) toLoggerConfig() logger.Config {
	if lc == nil {
		return logger.Config{}
	}
	return logger.Config{
		Dir:        lc.Dir,
		StdoutPath: lc.Stdout,
		StderrPath: lc.Stderr,
		MaxSizeMB:  lc.MaxSizeMB,
		MaxBackups: lc.MaxBackups,
		MaxAgeDays: lc.MaxAgeDays,
		Compress:   lc.Compress,
	}
}

// PoolConfig is the pool-wide admission cap and GC idle timeout (spec §4.6
// set_max/set_max_idle_time, mirrored here as static startup defaults).
type PoolConfig struct {
	Max         int           `toml:"max" mapstructure:"max"`
	MaxIdleTime time.Duration `toml:"max_idle_time" mapstructure:"max_idle_time"`
}

// GroupConfig pre-registers an application group with its pool Options
// (spec §6 Options), so the pool's first get() for that app_root doesn't
// pay a cold-registration cost.
type GroupConfig struct {
	AppRoot          string        `toml:"app_root" mapstructure:"app_root"`
	AppGroupName     string        `toml:"app_group_name" mapstructure:"app_group_name"`
	AppType          string        `toml:"app_type" mapstructure:"app_type"`
	Environment      string        `toml:"environment" mapstructure:"environment"`
	MinProcesses     int           `toml:"min_processes" mapstructure:"min_processes"`
	MaxProcesses     int           `toml:"max_processes" mapstructure:"max_processes"`
	SpawnMethod      string        `toml:"spawn_method" mapstructure:"spawn_method"`
	StartTimeout     time.Duration `toml:"start_timeout" mapstructure:"start_timeout"`
	MaxPreloaderIdle time.Duration `toml:"max_preloader_idle_time" mapstructure:"max_preloader_idle_time"`
	User             string        `toml:"user" mapstructure:"user"`
	Group            string        `toml:"group" mapstructure:"group"`

	// StartCommand is the argv used to spawn a worker for this app group.
	// Resolved per app group name (app_group_name, or app_root when that is
	// empty) by cmd/poolctl's spawner.Factory.StartCommand
	// callback instead of the teacher's internal/detector app-type sniffer,
	// since groups here are declared explicitly in TOML rather than
	// discovered from a startup file on disk.
	StartCommand []string `toml:"start_command" mapstructure:"start_command"`
}

// Options converts a GroupConfig entry to poolopts.Options, normalized.
func (gc GroupConfig) Options() poolopts.Options {
	return poolopts.Options{
		AppRoot:      gc.AppRoot,
		AppGroupName: gc.AppGroupName,
		AppType:      gc.AppType,
		Environment:  gc.Environment,
		MinProcesses: gc.MinProcesses,
		MaxProcesses: gc.MaxProcesses,
		SpawnMethod:  poolopts.SpawnMethod(gc.SpawnMethod),
		StartTimeout: gc.StartTimeout,
		MaxPreloaderIdle: gc.MaxPreloaderIdle,
		User:         gc.User,
		Group:        gc.Group,
	}.Normalize()
}

// HistoryConfig selects the external lifecycle-event sink by DSN (spec
// SPEC_FULL §3 "Pool event history/audit sink"), resolved by
// internal/history/factory.NewSinkFromDSN.
type HistoryConfig struct {
	DSN string `toml:"dsn" mapstructure:"dsn"`
}

// ServerConfig is the control-surface HTTP listener (spec §4.6 exposed
// over internal/server).
type ServerConfig struct {
	Listen        string     `toml:"listen" mapstructure:"listen"`
	AuthToken     string     `toml:"auth_token" mapstructure:"auth_token"`
	TLSMinVersion string     `toml:"tls_min_version" mapstructure:"tls_min_version"`
	TLSMaxVersion string     `toml:"tls_max_version" mapstructure:"tls_max_version"`
	TLS           *TLSConfig `toml:"tls" mapstructure:"tls"`
}

// TLSConfig controls whether the control-surface listener terminates TLS,
// and where it finds or generates its certificate.
type TLSConfig struct {
	Enabled      bool        `toml:"enabled" mapstructure:"enabled"`
	CertFile     string      `toml:"cert_file" mapstructure:"cert_file"`
	KeyFile      string      `toml:"key_file" mapstructure:"key_file"`
	Dir          string      `toml:"dir" mapstructure:"dir"`
	AutoGenerate bool        `toml:"auto_generate" mapstructure:"auto_generate"`
	AutoGen      *AutoGenTLS `toml:"auto_gen" mapstructure:"auto_gen"`
}

// AutoGenTLS parameterizes the self-signed certificate internal/tls mints
// when TLSConfig.AutoGenerate is set and no certificate exists yet at Dir.
type AutoGenTLS struct {
	CommonName   string   `toml:"common_name" mapstructure:"common_name"`
	Organization string   `toml:"organization" mapstructure:"organization"`
	DNSNames     []string `toml:"dns_names" mapstructure:"dns_names"`
	IPAddresses  []string `toml:"ip_addresses" mapstructure:"ip_addresses"`
	ValidDays    int      `toml:"valid_days" mapstructure:"valid_days"`
}

func loadFileConfig(path string) (*FileConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}
	var fc FileConfig
	if err := v.Unmarshal(&fc); err != nil {
		return nil, err
	}
	return &fc, nil
}

// Load reads the pool's TOML config file, applying PoolConfig defaults
// matching poolopts.Options.Normalize's conventions.
func Load(path string) (*FileConfig, error) {
	fc, err := loadFileConfig(path)
	if err != nil {
		return nil, err
	}
	if fc.Pool.Max <= 0 {
		fc.Pool.Max = 6
	}
	if fc.Pool.MaxIdleTime <= 0 {
		fc.Pool.MaxIdleTime = 5 * time.Minute
	}
	return fc, nil
}

// LoadGroupsFromTOML parses [[groups]] into ready-to-use pool Options.
func LoadGroupsFromTOML(path string) ([]poolopts.Options, error) {
	fc, err := loadFileConfig(path)
	if err != nil {
		return nil, err
	}
	result := make([]poolopts.Options, 0, len(fc.Groups))
	for _, gc := range fc.Groups {
		if gc.AppRoot == "" {
			return nil, fmt.Errorf("group config requires app_root")
		}
		result = append(result, gc.Options())
	}
	return result, nil
}

// LoadLoggerConfig resolves the top-level [log] section, used by
// spawner.Factory to capture worker stdout/stderr (spec SPEC_FULL §3
// ambient logging).
func LoadLoggerConfig(path string) (logger.Config, error) {
	fc, err := loadFileConfig(path)
	if err != nil {
		return logger.Config{}, err
	}
	return fc.Log.toLoggerConfig(), nil
}

// LoadEnvFromTOML parses only the top-level env list from TOML.
func LoadEnvFromTOML(path string) ([]string, error) {
	fc, err := loadFileConfig(path)
	if err != nil {
		return nil, err
	}
	return fc.Env, nil
}

// LoadGlobalEnv merges env from config: top-level env, env_files contents,
// and optionally OS env when UseOSEnv is true. Precedence: OS env (when
// enabled) provides base; then apply file vars; then top-level env list
// overrides last.
func LoadGlobalEnv(path string) ([]string, error) {
	fc, err := loadFileConfig(path)
	if err != nil {
		return nil, err
	}
	m := make(map[string]string)
	if fc.UseOSEnv {
		for _, kv := range os.Environ() {
			if i := strings.IndexByte(kv, '='); i >= 0 {
				m[kv[:i]] = kv[i+1:]
			}
		}
	}
	for _, p := range fc.EnvFiles {
		pairs, err := loadEnvFile(p)
		if err != nil {
			return nil, err
		}
		for k, v := range pairs {
			m[k] = v
		}
	}
	for _, kv := range fc.Env {
		if i := strings.IndexByte(kv, '='); i >= 0 {
			m[kv[:i]] = kv[i+1:]
		}
	}
	out := make([]string, 0, len(m))
	for k, v := range m {
		out = append(out, k+"="+v)
	}
	return out, nil
}

// LoadEnvFile parses a simple .env file and returns a slice of "KEY=VALUE" entries.
func LoadEnvFile(path string) ([]string, error) {
	m, err := loadEnvFile(path)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(m))
	for k, v := range m {
		out = append(out, k+"="+v)
	}
	return out, nil
}

// loadEnvFile parses a simple .env file with KEY=VALUE lines (no export, no
// quotes). Lines starting with # are ignored.
func loadEnvFile(path string) (map[string]string, error) {
	clean := filepath.Clean(path)
	b, err := os.ReadFile(clean)
	if err != nil {
		return nil, err
	}
	m := make(map[string]string)
	for _, line := range strings.Split(string(b), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if i := strings.IndexByte(line, '='); i >= 0 {
			k := strings.TrimSpace(line[:i])
			v := strings.TrimSpace(line[i+1:])
			m[k] = v
		}
	}
	return m, nil
}
