package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/steveyackey/devrig/internal/config"
	"github.com/steveyackey/devrig/internal/containerdriver"
	"github.com/steveyackey/devrig/internal/dashboard"
	"github.com/steveyackey/devrig/internal/devrigerr"
	"github.com/steveyackey/devrig/internal/state"
	"github.com/steveyackey/devrig/internal/supervisor"
	"github.com/steveyackey/devrig/internal/telemetry"
	"github.com/steveyackey/devrig/internal/template"
)

// phaseTemplates resolves every service's host port, resolves the
// dashboard and OTLP ports (sticky, falling back past a busy default),
// builds the template-variable table, and expands "{{ ... }}"
// references across the global and per-service env maps. Every
// unresolved reference across every field is reported in one batch.
func (o *Orchestrator) phaseTemplates(rs *runState) error {
	for _, node := range rs.launchOrder {
		if node.Kind != config.KindService {
			continue
		}
		svc := o.cfg.Services[node.Name]
		if svc.Port == nil {
			rs.resolved[node.Name] = resolvedPort{Kind: config.KindService, Env: rs.serviceEnv[node.Name]}
			continue
		}
		alloc, err := rs.allocator.Resolve(node.Name, fixedPortOf(svc.Port))
		if err != nil {
			return err
		}
		rs.resolved[node.Name] = resolvedPort{
			Port: alloc.Port, Auto: alloc.Auto,
			Kind: config.KindService, Env: rs.serviceEnv[node.Name],
		}
	}

	if o.dashboardEnabled() {
		dcfg := o.dashboardConfig()
		ocfg := o.otelConfig()
		dash, err := rs.allocator.ResolvePreferred("dashboard", dcfg.PortOrDefault())
		if err != nil {
			return err
		}
		grpcAlloc, err := rs.allocator.ResolvePreferred("otel-grpc", ocfg.GRPCPort)
		if err != nil {
			return err
		}
		httpAlloc, err := rs.allocator.ResolvePreferred("otel-http", ocfg.HTTPPort)
		if err != nil {
			return err
		}
		rs.dashPort, rs.grpcPort, rs.httpPort = dash.Port, grpcAlloc.Port, httpAlloc.Port
	}

	vars := o.buildTemplateVars(rs, rs.dashPort, rs.grpcPort, rs.httpPort)

	report := &devrigerr.TemplateReport{}
	resolvedGlobal, globalReport := template.ResolveAll(prefixKeys("env", rs.globalEnv), vars)
	if globalReport != nil {
		report.Errors = append(report.Errors, globalReport.Errors...)
	} else {
		rs.globalEnv = stripPrefix("env", resolvedGlobal)
	}
	for name := range rs.serviceEnv {
		prefix := fmt.Sprintf("services.%s.env", name)
		resolved, svcReport := template.ResolveAll(prefixKeys(prefix, rs.serviceEnv[name]), vars)
		if svcReport != nil {
			report.Errors = append(report.Errors, svcReport.Errors...)
			continue
		}
		rs.serviceEnv[name] = stripPrefix(prefix, resolved)
	}
	if report.HasErrors() {
		return report
	}
	return nil
}

// prefixKeys rewrites a map's keys to "prefix.key" so template error
// messages carry the field's full manifest path.
func prefixKeys(prefix string, in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[prefix+"."+k] = v
	}
	return out
}

func stripPrefix(prefix string, in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k[len(prefix)+1:]] = v
	}
	return out
}

func (o *Orchestrator) dashboardEnabled() bool {
	if o.cfg.Dashboard == nil {
		return true
	}
	return o.cfg.Dashboard.IsEnabled()
}

func (o *Orchestrator) dashboardConfig() config.DashboardConfig {
	if o.cfg.Dashboard == nil {
		return config.DashboardConfig{}
	}
	return *o.cfg.Dashboard
}

func (o *Orchestrator) otelConfig() config.OtelConfig {
	d := o.dashboardConfig()
	if d.Otel != nil {
		return d.Otel.WithDefaults()
	}
	return config.OtelConfig{}.WithDefaults()
}

// phaseDashboard starts the embedded OTLP collector and the dashboard
// HTTP server on the ports Phase 4 resolved, installs devrig's own
// tracer provider pointed at its own collector, and wires the log
// pipeline that fans supervised-process output into the terminal, the
// on-disk JSONL file, and the telemetry store.
func (o *Orchestrator) phaseDashboard(ctx context.Context, rs *runState) (*dashboardResult, error) {
	if !o.dashboardEnabled() {
		// No collector, but supervised output still goes to the
		// terminal and the JSONL file.
		disabled := &dashboardResult{}
		o.startLogPipeline(disabled)
		return disabled, nil
	}

	ocfg := o.otelConfig()
	collector := telemetry.NewCollector(
		rs.grpcPort, rs.httpPort,
		ocfg.TraceBuffer, ocfg.LogBuffer, ocfg.MetricBuffer,
		time.Duration(ocfg.RetentionSec)*time.Second,
	)
	if err := collector.Start(ctx); err != nil {
		return nil, err
	}

	shutdownTracing, err := o.setupTracing(ctx, rs.grpcPort)
	if err != nil {
		slog.Warn("self-instrumentation disabled", "error", err)
	} else {
		o.tracingShutdown = shutdownTracing
	}

	srv := dashboard.New(rs.dashPort, dashboard.Dependencies{
		Store:      collector.Store(),
		Events:     collector.Events(),
		ConfigPath: o.identity.ConfigPath,
		StateDir:   o.stateDir,
	})
	if err := srv.Start(ctx); err != nil {
		return nil, err
	}

	dash := &dashboardResult{
		enabled:   true,
		port:      rs.dashPort,
		grpcPort:  rs.grpcPort,
		httpPort:  rs.httpPort,
		collector: collector,
	}

	o.startLogPipeline(dash)
	o.streamContainerLogs(rs, dash)
	return dash, nil
}

// startLogPipeline creates the supervisor log channel and its single
// consumer goroutine: each line is secret-masked once, then written to
// the terminal, appended to the rotating JSONL file, and bridged into
// the telemetry store. The channel is bounded; supervisors drop lines
// rather than block when the consumer falls behind.
func (o *Orchestrator) startLogPipeline(dash *dashboardResult) {
	o.logsCh = make(chan supervisor.LogLine, 1024)

	jsonl := &lumberjack.Logger{
		Filename:   filepath.Join(o.stateDir, "logs", "current.jsonl"),
		MaxSize:    50, // megabytes
		MaxBackups: 3,
	}

	o.spawn(func(ctx context.Context) {
		defer jsonl.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case line, ok := <-o.logsCh:
				if !ok {
					return
				}
				line.Text = o.secrets.Mask(line.Text)

				stream := "stdout"
				if line.Stderr {
					stream = "stderr"
				}
				fmt.Fprintf(os.Stdout, "[%s] %s\n", line.Service, line.Text)

				if encoded, err := json.Marshal(map[string]any{
					"timestamp": line.Timestamp.UTC().Format(time.RFC3339Nano),
					"service":   line.Service,
					"text":      line.Text,
					"stream":    stream,
					"level":     line.Level.String(),
				}); err == nil {
					_, _ = jsonl.Write(append(encoded, '\n'))
				}

				if dash.collector != nil {
					telemetry.BridgeLogLine(dash.collector.Store(), dash.collector.Events(), line)
				}
			}
		}
	})
}

// streamContainerLogs follows each managed container's log stream from
// "now" and bridges every line into the telemetry store tagged
// log.source=docker. A stream that ends (container stopped, engine
// restart) is reopened after a short pause for as long as the run
// lives.
func (o *Orchestrator) streamContainerLogs(rs *runState, dash *dashboardResult) {
	if dash.collector == nil {
		return
	}
	for name, res := range rs.dockerOut {
		service := name
		id := res.ContainerID
		o.spawn(func(ctx context.Context) {
			for ctx.Err() == nil {
				err := o.driver.FollowLogs(ctx, id, time.Now(), func(text string) {
					masked := o.secrets.Mask(text)
					telemetry.BridgeContainerLogLine(
						dash.collector.Store(), dash.collector.Events(),
						service, masked, supervisor.DetectLevel(masked),
					)
				})
				if ctx.Err() != nil {
					return
				}
				if err != nil {
					slog.Debug("container log stream ended", "container", service, "error", err)
				}
				select {
				case <-ctx.Done():
					return
				case <-time.After(2 * time.Second):
				}
			}
		})
	}
}

// phaseServiceNames returns the launch-ordered names of the service
// (process) resources Phase 5 will spawn.
func (o *Orchestrator) phaseServiceNames(rs *runState) []string {
	var names []string
	for _, node := range rs.launchOrder {
		if node.Kind == config.KindService {
			names = append(names, node.Name)
		}
	}
	return names
}

// phaseServices spawns one supervisor per service with its fully
// resolved environment. Supervisors run independently; one service's
// restart loop never blocks another's.
func (o *Orchestrator) phaseServices(rs *runState, dash *dashboardResult, names []string) error {
	tracer := otel.Tracer("devrig/orchestrator")
	for _, name := range names {
		svc := o.cfg.Services[name]

		var restart config.RestartConfig
		if svc.Restart != nil {
			restart = *svc.Restart
		}
		policy := supervisor.PolicyFromConfig(restart)
		env := o.serviceEnviron(name, rs, dash)

		sup := supervisor.New(name, svc.Command, o.workDirFor(svc), env, policy, o.logsCh)
		o.mu.Lock()
		o.supervisors[name] = sup
		o.mu.Unlock()

		serviceName := name
		o.svcWg.Add(1)
		o.spawn(func(ctx context.Context) {
			defer o.svcWg.Done()
			ctx, span := tracer.Start(ctx, "supervise "+serviceName,
				trace.WithSpanKind(trace.SpanKindInternal))
			defer span.End()
			if err := sup.Run(ctx); err != nil {
				var cancelled *devrigerr.Cancelled
				if !asCancelled(err, &cancelled) {
					slog.Error("service failed permanently", "service", serviceName, "error", err)
				}
			}
		})
	}
	return nil
}

func asCancelled(err error, target **devrigerr.Cancelled) bool {
	c, ok := err.(*devrigerr.Cancelled)
	if ok {
		*target = c
	}
	return ok
}

// persistState writes the final project snapshot, snapshots the applied
// manifest for `devrig config diff`, and registers this instance in the
// per-user global registry.
func (o *Orchestrator) persistState(rs *runState, dash *dashboardResult) error {
	services := map[string]state.ServiceState{}

	o.mu.Lock()
	for name, sup := range o.supervisors {
		rp := rs.resolved[name]
		services[name] = state.ServiceState{
			Kind: state.KindService, PID: sup.PID(), Port: rp.Port, PortAuto: rp.Auto,
		}
	}
	o.mu.Unlock()

	for name, res := range rs.dockerOut {
		services[name] = state.ServiceState{
			Kind:            state.KindInfra,
			Port:            res.Port,
			PortAuto:        res.PortAuto,
			ContainerID:     res.ContainerID,
			ContainerName:   containerdriver.ContainerName(o.identity.Slug, name),
			NamedPorts:      res.Named,
			InitCompleted:   res.InitCompleted,
			InitCompletedAt: res.InitCompletedAt,
		}
	}
	for name, svc := range rs.composeOut {
		rp := rs.resolved[name]
		services[name] = state.ServiceState{
			Kind: state.KindCompose, Port: rp.Port,
			ContainerID: svc.ID, ContainerName: svc.Name,
		}
	}

	ps := &state.ProjectState{
		Slug:        o.identity.Slug,
		ConfigPath:  o.identity.ConfigPath,
		Services:    services,
		StickyPorts: rs.allocator.Sticky(),
		StartedAt:   time.Now(),
	}
	if rs.hasDocker {
		ps.Network = rs.networkName
	}
	if rs.cluster != nil {
		ps.Deploys = rs.cluster.deployStates
		ps.Cluster = &state.ClusterState{
			ClusterName:     rs.cluster.manager.ClusterName,
			KubeconfigPath:  rs.cluster.manager.KubeconfigPath,
			RegistryPort:    rs.cluster.registryPort,
			InstalledAddons: rs.cluster.installedAddons,
		}
		if rs.cluster.registryPort != 0 {
			ps.Cluster.RegistryName = fmt.Sprintf("%s-registry", rs.cluster.manager.ClusterName)
		}
	}
	if dash != nil && dash.enabled {
		ps.Dashboard = &state.DashboardState{Port: dash.port, GRPCPort: dash.grpcPort, HTTPPort: dash.httpPort}
	}

	if err := state.Save(o.stateDir, ps); err != nil {
		return err
	}

	o.snapshotAppliedConfig()
	o.registerInstance()
	return nil
}

// snapshotAppliedConfig copies the manifest as applied into the state
// directory so a later `devrig config diff` can compare against it even
// after the manifest is edited.
func (o *Orchestrator) snapshotAppliedConfig() {
	raw, err := os.ReadFile(o.identity.ConfigPath)
	if err != nil {
		slog.Warn("could not snapshot applied manifest", "error", err)
		return
	}
	applied := filepath.Join(o.stateDir, "applied.toml")
	tmp := applied + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		slog.Warn("could not snapshot applied manifest", "error", err)
		return
	}
	if err := os.Rename(tmp, applied); err != nil {
		slog.Warn("could not snapshot applied manifest", "error", err)
	}
}

func (o *Orchestrator) registerInstance() {
	home, err := os.UserHomeDir()
	if err != nil {
		slog.Warn("could not locate home directory for instance registry", "error", err)
		return
	}
	path := state.RegistryPath(home)
	reg := state.LoadRegistry(path)
	reg.Register(state.InstanceEntry{
		Slug:       o.identity.Slug,
		ConfigPath: o.identity.ConfigPath,
		StateDir:   o.stateDir,
		StartedAt:  time.Now(),
	})
	if err := reg.Save(path); err != nil {
		slog.Warn("could not update instance registry", "error", err)
	}
}
