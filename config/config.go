package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-yaml"
)

// EnvConfigFile names the environment variable holding the config file path.
const EnvConfigFile = "GITMCP_CONFIG"

type values struct {
	Env      string         `yaml:"env"`
	Server   serverValues   `yaml:"server"`
	Executor executorValues `yaml:"executor"`
	Handles  handlesValues  `yaml:"handles"`
	Git      gitValues      `yaml:"git"`
	Log      logValues      `yaml:"log"`
}

type serverValues struct {
	Port               int64         `yaml:"port"`
	WorkDir            string        `yaml:"work_dir"`
	CorsAllowedOrigins []string      `yaml:"cors_allowed_origins"`
	ShutdownTimeout    time.Duration `yaml:"shutdown_timeout"`
}

type executorValues struct {
	Workers        int64         `yaml:"workers"`
	QueueSize      int64         `yaml:"queue_size"`
	LockRetries    int64         `yaml:"lock_retries"`
	RetryDelay     time.Duration `yaml:"retry_delay"`
	DefaultTimeout time.Duration `yaml:"default_timeout"`
}

type handlesValues struct {
	CacheSize int64 `yaml:"cache_size"`
}

type gitValues struct {
	Binary             string `yaml:"binary"`
	DefaultAuthorName  string `yaml:"default_author_name"`
	DefaultAuthorEmail string `yaml:"default_author_email"`
	InitialBranch      string `yaml:"initial_branch"`
	GithubToken        string `yaml:"github_token"`
}

type logValues struct {
	Level string `yaml:"level"`
}

func defaults() values {
	return values{
		Env: "dev",
		Server: serverValues{
			Port:               8080,
			CorsAllowedOrigins: []string{"*"},
			ShutdownTimeout:    15 * time.Second,
		},
		Executor: executorValues{
			Workers:        8,
			QueueSize:      64,
			LockRetries:    3,
			RetryDelay:     25 * time.Millisecond,
			DefaultTimeout: 5 * time.Minute,
		},
		Handles: handlesValues{
			CacheSize: 32,
		},
		Git: gitValues{
			Binary:             "git",
			DefaultAuthorName:  "gitmcp",
			DefaultAuthorEmail: "gitmcp@localhost",
			InitialBranch:      "main",
		},
		Log: logValues{
			Level: "info",
		},
	}
}

var (
	mu      sync.RWMutex
	current = defaults()
)

func get() values {
	mu.RLock()
	defer mu.RUnlock()
	return current
}

// Load reads the YAML file at path (or $GITMCP_CONFIG when path is empty) on
// top of the defaults, then applies environment overrides. Unknown keys are
// rejected.
func Load(path string) error {
	v := defaults()

	if path == "" {
		path = os.Getenv(EnvConfigFile)
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.UnmarshalWithOptions(data, &v, yaml.Strict()); err != nil {
			return fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := applyEnv(&v); err != nil {
		return err
	}

	mu.Lock()
	current = v
	mu.Unlock()
	return nil
}

// Reset restores the defaults.
func Reset() {
	mu.Lock()
	current = defaults()
	mu.Unlock()
}

func applyEnv(v *values) error {
	str := func(key string, dst *string) {
		if s, ok := os.LookupEnv(key); ok {
			*dst = s
		}
	}
	num := func(key string, dst *int64) error {
		s, ok := os.LookupEnv(key)
		if !ok {
			return nil
		}
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", key, err)
		}
		*dst = n
		return nil
	}
	dur := func(key string, dst *time.Duration) error {
		s, ok := os.LookupEnv(key)
		if !ok {
			return nil
		}
		d, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", key, err)
		}
		*dst = d
		return nil
	}

	str("GITMCP_ENV", &v.Env)
	str("GITMCP_WORK_DIR", &v.Server.WorkDir)
	str("GITMCP_GIT_BINARY", &v.Git.Binary)
	str("GITMCP_AUTHOR_NAME", &v.Git.DefaultAuthorName)
	str("GITMCP_AUTHOR_EMAIL", &v.Git.DefaultAuthorEmail)
	str("GITMCP_INITIAL_BRANCH", &v.Git.InitialBranch)
	str("GITMCP_GITHUB_TOKEN", &v.Git.GithubToken)
	str("GITMCP_LOG_LEVEL", &v.Log.Level)

	if s, ok := os.LookupEnv("GITMCP_CORS_ALLOWED_ORIGINS"); ok {
		v.Server.CorsAllowedOrigins = strings.Split(s, ",")
	}

	for key, dst := range map[string]*int64{
		"GITMCP_PORT":         &v.Server.Port,
		"GITMCP_WORKERS":      &v.Executor.Workers,
		"GITMCP_QUEUE_SIZE":   &v.Executor.QueueSize,
		"GITMCP_LOCK_RETRIES": &v.Executor.LockRetries,
		"GITMCP_CACHE_SIZE":   &v.Handles.CacheSize,
	} {
		if err := num(key, dst); err != nil {
			return err
		}
	}

	if err := dur("GITMCP_DEFAULT_TIMEOUT", &v.Executor.DefaultTimeout); err != nil {
		return err
	}
	return dur("GITMCP_RETRY_DELAY", &v.Executor.RetryDelay)
}

// IsDev reports whether the process runs in the development environment.
func IsDev() bool {
	return get().Env == "dev"
}

// Env returns the configured environment name.
func Env() string {
	return get().Env
}

type server struct{}

// Server exposes the HTTP server settings.
var Server server

func (server) Port() int64 { return get().Server.Port }

func (server) WorkDir() string { return get().Server.WorkDir }

func (server) CorsAllowedOrigins() []string {
	return append([]string(nil), get().Server.CorsAllowedOrigins...)
}

func (server) ShutdownTimeout() time.Duration { return get().Server.ShutdownTimeout }

type executor struct{}

// Executor exposes the worker pool settings.
var Executor executor

func (executor) Workers() int64 { return get().Executor.Workers }

func (executor) QueueSize() int64 { return get().Executor.QueueSize }

func (executor) LockRetries() int64 { return get().Executor.LockRetries }

func (executor) RetryDelay() time.Duration { return get().Executor.RetryDelay }

func (executor) DefaultTimeout() time.Duration { return get().Executor.DefaultTimeout }

type handles struct{}

// Handles exposes the repository handle cache settings.
var Handles handles

func (handles) CacheSize() int64 { return get().Handles.CacheSize }

type gitSettings struct{}

// Git exposes the engine settings.
var Git gitSettings

func (gitSettings) Binary() string { return get().Git.Binary }

func (gitSettings) DefaultAuthorName() string { return get().Git.DefaultAuthorName }

func (gitSettings) DefaultAuthorEmail() string { return get().Git.DefaultAuthorEmail }

func (gitSettings) InitialBranch() string { return get().Git.InitialBranch }

func (gitSettings) GithubToken() string { return get().Git.GithubToken }

type logSettings struct{}

// Log exposes the logging settings.
var Log logSettings

func (logSettings) Level() string { return get().Log.Level }
