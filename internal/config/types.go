// Package config is the typed in-memory representation of a devrig project
// manifest. Types here are decoded directly from TOML; Validate
// enforces every invariant in devrig's data model before any side effect
// runs.
package config

import "fmt"

// Port is either a fixed TCP port in [1, 65535] or the Auto sentinel.
type Port struct {
	Fixed int
	Auto  bool
}

// AutoPort is the sentinel that requests a dynamically allocated port.
var AutoPort = Port{Auto: true}

// UnmarshalTOML implements github.com/BurntSushi/toml's Unmarshaler,
// accepting either an int64 (fixed port) or the string "auto".
func (p *Port) UnmarshalTOML(data any) error {
	switch v := data.(type) {
	case int64:
		*p = Port{Fixed: int(v)}
		return nil
	case int:
		*p = Port{Fixed: v}
		return nil
	case string:
		if v == "auto" {
			*p = Port{Auto: true}
			return nil
		}
		return fmt.Errorf("invalid port value %q: expected an integer or \"auto\"", v)
	default:
		return fmt.Errorf("invalid port value %v (%T): expected an integer or \"auto\"", data, data)
	}
}

func (p Port) String() string {
	if p.Auto {
		return "auto"
	}
	return fmt.Sprintf("%d", p.Fixed)
}

func (p Port) IsZero() bool {
	return !p.Auto && p.Fixed == 0
}

// ResourceKind identifies a dependency-graph node's kind: the four
// unified-graph kinds, plus KindAddon for the separate addon graph.
// Names must be unique across the four unified-graph kinds within one
// project.
type ResourceKind string

const (
	KindService        ResourceKind = "service"
	KindContainer       ResourceKind = "container"
	KindComposeService  ResourceKind = "compose_service"
	KindClusterDeploy   ResourceKind = "cluster_deploy"
	KindAddon           ResourceKind = "addon"
)

// RestartPolicy controls whether and how a failing service is restarted.
type RestartPolicy string

const (
	RestartAlways    RestartPolicy = "always"
	RestartOnFailure RestartPolicy = "on-failure"
	RestartNever     RestartPolicy = "never"
)

// RestartConfig controls the process supervisor's restart policy and
// backoff budget for one service.
type RestartConfig struct {
	Policy             RestartPolicy `toml:"policy"`
	MaxRestarts        int           `toml:"max_restarts"`
	StartupMaxRestarts int           `toml:"startup_max_restarts"`
	StartupGraceMs     int           `toml:"startup_grace_ms"`
	InitialDelayMs     int           `toml:"initial_delay_ms"`
	MaxDelayMs         int           `toml:"max_delay_ms"`
}

// WithDefaults returns a copy of c with every unset field filled from the
// documented defaults.
func (c RestartConfig) WithDefaults() RestartConfig {
	if c.Policy == "" {
		c.Policy = RestartOnFailure
	}
	if c.MaxRestarts == 0 {
		c.MaxRestarts = 10
	}
	if c.StartupMaxRestarts == 0 {
		c.StartupMaxRestarts = 3
	}
	if c.StartupGraceMs == 0 {
		c.StartupGraceMs = 2000
	}
	if c.InitialDelayMs == 0 {
		c.InitialDelayMs = 500
	}
	if c.MaxDelayMs == 0 {
		c.MaxDelayMs = 30000
	}
	return c
}

// ServiceConfig describes one long-running user process.
type ServiceConfig struct {
	Command    string            `toml:"command"`
	WorkDir    string            `toml:"workdir"`
	Port       *Port             `toml:"port"`
	Env        map[string]string `toml:"env"`
	DependsOn  []string          `toml:"depends_on"`
	Restart    *RestartConfig    `toml:"restart"`
}

// ReadyCheckType enumerates the tagged variants of ReadyCheck.
type ReadyCheckType string

const (
	ReadyPgIsReady ReadyCheckType = "pg_isready"
	ReadyCmd       ReadyCheckType = "cmd"
	ReadyHTTP      ReadyCheckType = "http"
	ReadyTCP       ReadyCheckType = "tcp"
	ReadyLog       ReadyCheckType = "log"
)

// ReadyCheck is the tagged union of gating strategies a container must
// satisfy before its dependents may start.
type ReadyCheck struct {
	Type        ReadyCheckType `toml:"type"`
	Command     string         `toml:"command"`
	Expect      string         `toml:"expect"`
	URL         string         `toml:"url"`
	Pattern     string         `toml:"pattern"`
	TimeoutSecs int            `toml:"timeout_secs"`
}

func (r ReadyCheck) Timeout() int {
	if r.TimeoutSecs <= 0 {
		return 60
	}
	return r.TimeoutSecs
}

// RegistryCredentials authenticates pulls/pushes against an image
// registry.
type RegistryCredentials struct {
	Username string `toml:"username"`
	Password string `toml:"password"`
}

// ContainerConfig describes one managed container workload.
type ContainerConfig struct {
	Image       string               `toml:"image"`
	Port        *Port                `toml:"port"`
	Ports       map[string]Port      `toml:"ports"`
	Env         map[string]string    `toml:"env"`
	Volumes     []string             `toml:"volumes"`
	Command     []string             `toml:"command"`
	Entrypoint  []string             `toml:"entrypoint"`
	ReadyCheck  *ReadyCheck          `toml:"ready_check"`
	InitScripts []string             `toml:"init_scripts"`
	DependsOn   []string             `toml:"depends_on"`
	Registry    *RegistryCredentials `toml:"registry"`
}

// ComposeConfig describes a docker-compose file bridged onto the project
// network during startup.
type ComposeConfig struct {
	Path          string                 `toml:"path"`
	Services      []string               `toml:"services"`
	EnvFile       string                 `toml:"env_file"`
	ReadyChecks   map[string]ReadyCheck  `toml:"ready_checks"`
}

// ImageBuildConfig describes one buildable image used by cluster deploys.
type ImageBuildConfig struct {
	Context    string   `toml:"context"`
	Dockerfile string   `toml:"dockerfile"`
	Watch      []string `toml:"watch"`
}

// DeployConfig describes one cluster-deploy node: build an image, push it,
// and apply manifests.
type DeployConfig struct {
	Context    string   `toml:"context"`
	Dockerfile string   `toml:"dockerfile"`
	Manifests  []string `toml:"manifests"`
	Watch      []string `toml:"watch"`
	DependsOn  []string `toml:"depends_on"`
}

// AddonType enumerates the tagged variants of AddonConfig.
type AddonType string

const (
	AddonHelm      AddonType = "helm"
	AddonManifest  AddonType = "manifest"
	AddonKustomize AddonType = "kustomize"
)

// AddonConfig describes one cluster-local extension installed after
// cluster creation.
type AddonConfig struct {
	Type         AddonType         `toml:"type"`
	DependsOn    []string          `toml:"depends_on"`
	PortForward  map[string]string `toml:"port_forward"`

	// Helm fields.
	Chart        string            `toml:"chart"`
	Repo         string            `toml:"repo"`
	Namespace    string            `toml:"namespace"`
	Version      string            `toml:"version"`
	Values       map[string]any    `toml:"values"`
	ValuesFiles  []string          `toml:"values_files"`
	Wait         bool              `toml:"wait"`
	TimeoutSecs  int               `toml:"timeout_secs"`
	SkipCRDs     bool              `toml:"skip_crds"`

	// Manifest / kustomize fields.
	Path string `toml:"path"`
}

// LogsCollectorConfig configures the optional log forwarder for cluster
// workloads.
type LogsCollectorConfig struct {
	Enabled bool `toml:"enabled"`
}

// ClusterConfig describes the ephemeral Kubernetes cluster.
type ClusterConfig struct {
	Name        string                        `toml:"name"`
	Agents      int                           `toml:"agents"`
	Ports       map[string]int                `toml:"ports"`
	Registry    bool                          `toml:"registry"`
	Builds      map[string]ImageBuildConfig   `toml:"builds"`
	Deploys     map[string]DeployConfig       `toml:"deploys"`
	Addons      map[string]AddonConfig        `toml:"addons"`
	Logs        *LogsCollectorConfig          `toml:"logs"`
	Credentials []RegistryCredentials         `toml:"registry_credentials"`
}

// OtelConfig configures the embedded OTLP receivers and telemetry ring
// buffers.
type OtelConfig struct {
	GRPCPort     int `toml:"grpc_port"`
	HTTPPort     int `toml:"http_port"`
	TraceBuffer  int `toml:"trace_buffer"`
	LogBuffer    int `toml:"log_buffer"`
	MetricBuffer int `toml:"metric_buffer"`
	RetentionSec int `toml:"retention_seconds"`
}

func (o OtelConfig) WithDefaults() OtelConfig {
	if o.GRPCPort == 0 {
		o.GRPCPort = 4317
	}
	if o.HTTPPort == 0 {
		o.HTTPPort = 4318
	}
	if o.TraceBuffer == 0 {
		o.TraceBuffer = 10000
	}
	if o.LogBuffer == 0 {
		o.LogBuffer = 20000
	}
	if o.MetricBuffer == 0 {
		o.MetricBuffer = 20000
	}
	if o.RetentionSec == 0 {
		o.RetentionSec = 3600
	}
	return o
}

// DashboardConfig configures the dashboard HTTP server and its embedded
// telemetry collector.
type DashboardConfig struct {
	Port    int         `toml:"port"`
	Enabled *bool       `toml:"enabled"`
	Otel    *OtelConfig `toml:"otel"`
}

func (d DashboardConfig) IsEnabled() bool {
	return d.Enabled == nil || *d.Enabled
}

func (d DashboardConfig) PortOrDefault() int {
	if d.Port == 0 {
		return 4000
	}
	return d.Port
}

// Configuration is the root of the manifest.
type Configuration struct {
	Project    string                     `toml:"project"`
	EnvFile    string                     `toml:"env_file"`
	Services   map[string]ServiceConfig   `toml:"services"`
	Containers map[string]ContainerConfig `toml:"containers"`
	Compose    *ComposeConfig             `toml:"compose"`
	Cluster    *ClusterConfig             `toml:"cluster"`
	Dashboard  *DashboardConfig           `toml:"dashboard"`
	Env        map[string]string          `toml:"env"`

	// Path is the absolute filesystem path (symlinks not resolved) of the
	// manifest this Configuration was loaded from. Populated by Load, not
	// by TOML.
	Path string `toml:"-"`
}
