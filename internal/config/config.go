// Package config binds the gateway's runtime configuration: cobra flags
// and ZEUSGATE_* environment variables, the way yumosx/pyproc's
// cmd/pyproc and cuemby/warren's cmd/warren wire viper. No config file is
// read.
package config

import (
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Launcher selects how WorkerSupervisor launches a worker process.
type Launcher string

const (
	LauncherContainerd Launcher = "containerd"
	LauncherSubprocess Launcher = "subprocess"
)

// Config is the gateway's fully resolved runtime configuration.
type Config struct {
	ClientPort int `mapstructure:"client_port"`

	WorkerPortLow  int `mapstructure:"worker_port_low"`
	WorkerPortHigh int `mapstructure:"worker_port_high"`

	SpawnTimeout    time.Duration `mapstructure:"spawn_timeout"`
	StopGrace       time.Duration `mapstructure:"stop_grace"`
	HealthInterval  time.Duration `mapstructure:"health_interval"`
	HealthProbeTO   time.Duration `mapstructure:"health_probe_timeout"`

	WorkspaceRoot string `mapstructure:"workspace_root"`
	PromptsDir    string `mapstructure:"prompts_dir"`

	Launcher       Launcher `mapstructure:"launcher"`
	WorkerBinary   string   `mapstructure:"worker_binary"`
	ContainerImage string   `mapstructure:"container_image"`

	// AutoSpawnProviders is the allowlist of providers chat may
	// synchronously auto-spawn a worker for (spec.md §4.8, §9).
	AutoSpawnProviders []string `mapstructure:"auto_spawn_providers"`

	ConfigDBPath string `mapstructure:"config_db_path"`

	LogLevel  string `mapstructure:"log_level"`
	LogJSON   bool   `mapstructure:"log_json"`
}

// Defaults returns the gateway's built-in defaults (spec.md §4.2, §4.5, §6).
func Defaults() Config {
	return Config{
		ClientPort:     3001,
		WorkerPortLow:  4000,
		WorkerPortHigh: 4100,
		SpawnTimeout:   60 * time.Second,
		StopGrace:      10 * time.Second,
		HealthInterval: 30 * time.Second,
		HealthProbeTO:  2 * time.Second,
		WorkspaceRoot:  "./workspace",
		PromptsDir:     "./prompts",
		Launcher:       LauncherSubprocess,
		WorkerBinary:   "./zeus-worker",
		ContainerImage: "zeusgate/worker:latest",
		ConfigDBPath:   "./zeusgate.db",
		LogLevel:       "info",
		LogJSON:        false,
	}
}

// BindFlags registers the gateway's flags on fs and binds each to a viper
// key sharing the same dotted path used by mapstructure above.
func BindFlags(fs *pflag.FlagSet, v *viper.Viper) {
	d := Defaults()

	fs.Int("client-port", d.ClientPort, "client-facing listen port")
	fs.Int("worker-port-low", d.WorkerPortLow, "lowest port in the worker allocation range")
	fs.Int("worker-port-high", d.WorkerPortHigh, "highest port (exclusive) in the worker allocation range")
	fs.Duration("spawn-timeout", d.SpawnTimeout, "deadline for a worker to report healthy after launch")
	fs.Duration("stop-grace", d.StopGrace, "grace period before escalating stop to a forceful kill")
	fs.Duration("health-interval", d.HealthInterval, "interval between health probes")
	fs.Duration("health-probe-timeout", d.HealthProbeTO, "per-probe timeout")
	fs.String("workspace-root", d.WorkspaceRoot, "workspace directory bind-mounted into workers")
	fs.String("prompts-dir", d.PromptsDir, "shared prompts directory bind-mounted read-only into workers")
	fs.String("launcher", string(d.Launcher), "worker launch strategy: containerd or subprocess")
	fs.String("worker-binary", d.WorkerBinary, "path to the worker binary (subprocess launcher)")
	fs.String("container-image", d.ContainerImage, "worker container image (containerd launcher)")
	fs.StringSlice("auto-spawn-providers", nil, "providers chat may auto-spawn a worker for")
	fs.String("config-db-path", d.ConfigDBPath, "path to the bbolt database backing ConfigStore")
	fs.String("log-level", d.LogLevel, "debug|info|warn|error")
	fs.Bool("log-json", d.LogJSON, "emit JSON logs instead of console format")

	for _, name := range []string{
		"client-port", "worker-port-low", "worker-port-high", "spawn-timeout",
		"stop-grace", "health-interval", "health-probe-timeout", "workspace-root",
		"prompts-dir", "launcher", "worker-binary", "container-image",
		"auto-spawn-providers", "config-db-path", "log-level", "log-json",
	} {
		_ = v.BindPFlag(dotted(name), fs.Lookup(name))
	}
	v.SetEnvPrefix("ZEUSGATE")
	v.AutomaticEnv()
}

// dotted converts a kebab-case flag name to the dotted key used by
// mapstructure tags above (e.g. "client-port" -> "client_port").
func dotted(name string) string {
	out := make([]byte, 0, len(name))
	for i := 0; i < len(name); i++ {
		if name[i] == '-' {
			out = append(out, '_')
			continue
		}
		out = append(out, name[i])
	}
	return string(out)
}

// Load unmarshals v's bound keys into a Config seeded with Defaults.
func Load(v *viper.Viper) (Config, error) {
	cfg := Defaults()
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
