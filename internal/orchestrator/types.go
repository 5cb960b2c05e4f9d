package orchestrator

import (
	"time"

	"github.com/steveyackey/devrig/internal/cluster"
	"github.com/steveyackey/devrig/internal/compose"
	"github.com/steveyackey/devrig/internal/config"
	"github.com/steveyackey/devrig/internal/graph"
	"github.com/steveyackey/devrig/internal/state"
	"github.com/steveyackey/devrig/internal/telemetry"
)

// graphNode aliases graph.Node so orchestrator.go's struct fields don't
// need to import internal/graph directly.
type graphNode = graph.Node

// composeService aliases compose.Service for the same reason.
type composeService = compose.Service

// dockerResult is one managed container's outcome from Phase 3: its
// engine id, whichever ports got allocated for it, and whether its
// one-shot init scripts have ever run to completion.
type dockerResult struct {
	ContainerID     string
	Port            int
	PortAuto        bool
	Named           map[string]int
	InitCompleted   bool
	InitCompletedAt *time.Time
}

// resolvedPort is the per-resource port/env information Phase 4 and
// Phase 5 need: template expansion reads Port/Named, peer-discovery env
// injection reads Port/Named/Image/Env.
type resolvedPort struct {
	Port  int
	Auto  bool
	Named map[string]int
	Kind  config.ResourceKind
	Image string
	Env   map[string]string
}

// clusterResult is Phase 3.5's outcome, threaded into template
// expansion, peer discovery, state persistence, and the startup
// summary.
type clusterResult struct {
	manager         *cluster.Manager
	registryPort    int
	deployStates    map[string]state.DeployState
	installedAddons map[string]state.AddonState
}

// dashboardResult is Phase 4.5's outcome.
type dashboardResult struct {
	enabled   bool
	port      int
	grpcPort  int
	httpPort  int
	collector *telemetry.Collector
}
