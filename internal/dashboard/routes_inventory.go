package dashboard

import (
	"net/http"
	"sort"
	"time"

	"github.com/steveyackey/devrig/internal/state"
)

// ServiceInfo is one row of the /api/services response: a running
// resource and the port it was allocated, regardless of which
// manifest section it came from.
type ServiceInfo struct {
	Name     string `json:"name"`
	Port     int    `json:"port,omitempty"`
	Kind     string `json:"kind"`
	PortAuto bool   `json:"port_auto"`
}

func (s *Server) handleGetServices(w http.ResponseWriter, r *http.Request) {
	ps := s.loadProjectState()
	if ps == nil {
		writeJSON(w, http.StatusOK, []ServiceInfo{})
		return
	}

	infos := make([]ServiceInfo, 0, len(ps.Services))
	for name, svc := range ps.Services {
		kind := string(svc.Kind)
		if kind == "" {
			kind = string(state.KindService)
		}
		infos = append(infos, ServiceInfo{
			Name:     name,
			Port:     svc.Port,
			Kind:     kind,
			PortAuto: svc.PortAuto,
		})
	}

	sort.Slice(infos, func(i, j int) bool {
		if infos[i].Kind != infos[j].Kind {
			return infos[i].Kind < infos[j].Kind
		}
		return infos[i].Name < infos[j].Name
	})

	writeJSON(w, http.StatusOK, infos)
}

// RegistryInfo describes the project's local image registry, present
// only when the manifest's [cluster] table enables one.
type RegistryInfo struct {
	Name string `json:"name"`
	Port int    `json:"port"`
}

// DeployedServiceInfo is one row of ClusterResponse.DeployedServices.
type DeployedServiceInfo struct {
	Name         string `json:"name"`
	ImageTag     string `json:"image_tag"`
	LastDeployed string `json:"last_deployed"`
}

// AddonInfo is one row of ClusterResponse.Addons.
type AddonInfo struct {
	Name        string `json:"name"`
	AddonType   string `json:"addon_type"`
	Namespace   string `json:"namespace"`
	InstalledAt string `json:"installed_at"`
}

// ClusterResponse is the /api/cluster response body. A nil *ClusterResponse
// (encoded as JSON null) means the project has no [cluster] table or
// the cluster has not finished coming up yet.
type ClusterResponse struct {
	ClusterName      string                `json:"cluster_name"`
	KubeconfigPath   string                `json:"kubeconfig_path"`
	Registry         *RegistryInfo         `json:"registry,omitempty"`
	DeployedServices []DeployedServiceInfo `json:"deployed_services"`
	Addons           []AddonInfo           `json:"addons"`
}

func (s *Server) handleGetCluster(w http.ResponseWriter, r *http.Request) {
	ps := s.loadProjectState()
	if ps == nil || ps.Cluster == nil {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	cluster := ps.Cluster

	var registry *RegistryInfo
	if cluster.RegistryName != "" && cluster.RegistryPort != 0 {
		registry = &RegistryInfo{Name: cluster.RegistryName, Port: cluster.RegistryPort}
	}

	deployed := make([]DeployedServiceInfo, 0, len(ps.Deploys))
	for name, d := range ps.Deploys {
		deployed = append(deployed, DeployedServiceInfo{
			Name:         name,
			ImageTag:     d.ImageTag,
			LastDeployed: d.LastDeployed.Format(time.RFC3339),
		})
	}
	sort.Slice(deployed, func(i, j int) bool { return deployed[i].Name < deployed[j].Name })

	addons := make([]AddonInfo, 0, len(cluster.InstalledAddons))
	for name, a := range cluster.InstalledAddons {
		addons = append(addons, AddonInfo{
			Name:        name,
			AddonType:   a.AddonType,
			Namespace:   a.Namespace,
			InstalledAt: a.InstalledAt.Format(time.RFC3339),
		})
	}
	sort.Slice(addons, func(i, j int) bool { return addons[i].Name < addons[j].Name })

	writeJSON(w, http.StatusOK, ClusterResponse{
		ClusterName:      cluster.ClusterName,
		KubeconfigPath:   cluster.KubeconfigPath,
		Registry:         registry,
		DeployedServices: deployed,
		Addons:           addons,
	})
}
