package orchestrator

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/steveyackey/devrig/internal/config"
	"github.com/steveyackey/devrig/internal/devrigerr"
	"github.com/steveyackey/devrig/internal/template"
)

// expandProjectEnv runs Phase 0's "$VAR" / "${VAR}" pass over every
// global and per-service env value: the env-file pool wins over the
// host environment, every substituted value lands in the secret
// registry, and every undefined reference across all fields is
// aggregated into one report before anything else runs.
func (o *Orchestrator) expandProjectEnv(rs *runState) error {
	envFilePath := ""
	if o.cfg.EnvFile != "" {
		envFilePath = resolveConfigPath(o.configDir, o.cfg.EnvFile)
	}
	pool, err := config.ReadEnvFile(envFilePath)
	if err != nil {
		return err
	}

	lookup := func(name string) (string, bool) {
		if val, ok := pool[name]; ok {
			o.secrets.Track(val)
			return val, true
		}
		if val, ok := os.LookupEnv(name); ok {
			o.secrets.Track(val)
			return val, true
		}
		return "", false
	}

	var expandErrs []error
	expandMap := func(fieldPrefix string, in map[string]string) map[string]string {
		out := make(map[string]string, len(in))
		keys := make([]string, 0, len(in))
		for k := range in {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			expanded, missing := template.ExpandEnv(in[k], lookup)
			for _, name := range missing {
				expandErrs = append(expandErrs, &devrigerr.ExpansionError{
					Field: fmt.Sprintf("%s.%s", fieldPrefix, k),
					Name:  name,
				})
			}
			out[k] = expanded
		}
		return out
	}

	rs.globalEnv = expandMap("env", o.cfg.Env)
	rs.serviceEnv = map[string]map[string]string{}
	for name, svc := range o.cfg.Services {
		rs.serviceEnv[name] = expandMap(fmt.Sprintf("services.%s.env", name), svc.Env)
	}

	if len(expandErrs) > 0 {
		return fmt.Errorf("undefined environment variable(s):\n%w", errors.Join(expandErrs...))
	}
	return nil
}

// buildTemplateVars assembles the "{{ path.to.value }}" lookup table
// from everything resolved so far: project identity, every resource's
// assigned ports, cluster naming and image tags, and the dashboard's
// own ports.
func (o *Orchestrator) buildTemplateVars(rs *runState, dashPort, grpcPort, httpPort int) map[string]string {
	vars := map[string]string{
		"project.name": o.identity.Name,
	}

	for name, rp := range rs.resolved {
		switch rp.Kind {
		case config.KindService:
			if rp.Port != 0 {
				template.PortVars(vars, "services", name, rp.Port)
			}
		case config.KindContainer:
			if rp.Port != 0 {
				template.PortVars(vars, "container", name, rp.Port)
			}
			for alias, p := range rp.Named {
				template.NamedPortVars(vars, "container", name, alias, p)
			}
		}
	}

	clusterName := fmt.Sprintf("%s-dev", o.identity.Name)
	if o.cfg.Cluster != nil && o.cfg.Cluster.Name != "" {
		clusterName = o.cfg.Cluster.Name
	}
	vars["cluster.name"] = clusterName

	if rs.cluster != nil {
		for name, ds := range rs.cluster.deployStates {
			vars[fmt.Sprintf("cluster.image.%s.tag", name)] = ds.ImageTag
		}
	}

	if dashPort != 0 {
		vars["dashboard.port"] = fmt.Sprintf("%d", dashPort)
		vars["dashboard.otel.grpc_port"] = fmt.Sprintf("%d", grpcPort)
		vars["dashboard.otel.http_port"] = fmt.Sprintf("%d", httpPort)
	}
	return vars
}

// envKeyFor turns a resource name into the "<NAME>" fragment of its
// DEVRIG_<NAME>_HOST peer-discovery variables: upper-cased, with every
// non-alphanumeric byte collapsed to '_'.
func envKeyFor(name string) string {
	var b strings.Builder
	for _, c := range strings.ToUpper(name) {
		if (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') {
			b.WriteRune(c)
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}

// peerURL infers a connection URL for a peer from its image family:
// postgres:// (with credentials lifted from the peer's own env when
// present), redis://, a bare host:port for multi-port resources, and
// http:// for everything else.
func peerURL(rp resolvedPort, port int) string {
	image := strings.ToLower(rp.Image)
	switch {
	case strings.Contains(image, "postgres") || strings.Contains(image, "pgvector") || strings.Contains(image, "timescale"):
		user := rp.Env["POSTGRES_USER"]
		pass := rp.Env["POSTGRES_PASSWORD"]
		auth := ""
		if user != "" {
			auth = user
			if pass != "" {
				auth += ":" + pass
			}
			auth += "@"
		}
		db := rp.Env["POSTGRES_DB"]
		if db == "" {
			db = user
		}
		return fmt.Sprintf("postgres://%slocalhost:%d/%s", auth, port, db)
	case strings.Contains(image, "redis") || strings.Contains(image, "valkey"):
		return fmt.Sprintf("redis://localhost:%d", port)
	case len(rp.Named) > 0:
		return fmt.Sprintf("localhost:%d", port)
	default:
		return fmt.Sprintf("http://localhost:%d", port)
	}
}

// injectedEnv assembles the devrig-provided environment for one
// service: the expanded global env, peer-discovery variables for every
// other resource, the service's own PORT/HOST and OTel wiring, and
// finally the service's explicit env map, which wins over every
// auto-injected key.
func (o *Orchestrator) injectedEnv(name string, rs *runState, dash *dashboardResult) map[string]string {
	merged := map[string]string{}
	for k, v := range rs.globalEnv {
		merged[k] = v
	}

	peers := make([]string, 0, len(rs.resolved))
	for peer := range rs.resolved {
		if peer != name {
			peers = append(peers, peer)
		}
	}
	sort.Strings(peers)
	for _, peer := range peers {
		rp := rs.resolved[peer]
		key := envKeyFor(peer)
		merged[fmt.Sprintf("DEVRIG_%s_HOST", key)] = "localhost"
		if rp.Port != 0 {
			merged[fmt.Sprintf("DEVRIG_%s_PORT", key)] = fmt.Sprintf("%d", rp.Port)
			merged[fmt.Sprintf("DEVRIG_%s_URL", key)] = peerURL(rp, rp.Port)
		}
	}

	merged["HOST"] = "localhost"
	if own, ok := rs.resolved[name]; ok && own.Port != 0 {
		merged["PORT"] = fmt.Sprintf("%d", own.Port)
	}
	if dash != nil && dash.enabled {
		merged["OTEL_EXPORTER_OTLP_ENDPOINT"] = fmt.Sprintf("http://localhost:%d", dash.httpPort)
		merged["OTEL_SERVICE_NAME"] = name
		merged["DEVRIG_DASHBOARD_URL"] = fmt.Sprintf("http://localhost:%d", dash.port)
	}

	for k, v := range rs.serviceEnv[name] {
		merged[k] = v
	}
	return merged
}

// serviceEnviron is injectedEnv layered over the parent process
// environment, in the exec.Cmd.Env key=value form.
func (o *Orchestrator) serviceEnviron(name string, rs *runState, dash *dashboardResult) []string {
	merged := o.injectedEnv(name, rs, dash)
	env := os.Environ()
	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, fmt.Sprintf("%s=%s", k, merged[k]))
	}
	return env
}

// workDirFor resolves a service's working directory against the
// manifest's own directory, defaulting to the manifest directory
// itself.
func (o *Orchestrator) workDirFor(svc config.ServiceConfig) string {
	if svc.WorkDir == "" {
		return o.configDir
	}
	if filepath.IsAbs(svc.WorkDir) {
		return svc.WorkDir
	}
	return filepath.Join(o.configDir, svc.WorkDir)
}
