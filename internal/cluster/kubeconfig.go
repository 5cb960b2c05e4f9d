package cluster

import (
	"fmt"

	"k8s.io/client-go/tools/clientcmd"
	clientcmdapi "k8s.io/client-go/tools/clientcmd/api"
)

// LoadKubeconfig parses the cluster's kubeconfig file and returns its
// typed representation, after fixKubeconfigPort has already rewritten
// any unresolved ":0" API server port — clientcmd will happily parse a
// kubeconfig pointing at port 0, but client-go requests against it
// fail at connect time, so the rewrite has to happen first.
func (m *Manager) LoadKubeconfig() (*clientcmdapi.Config, error) {
	cfg, err := clientcmd.LoadFromFile(m.KubeconfigPath)
	if err != nil {
		return nil, fmt.Errorf("loading kubeconfig %s: %w", m.KubeconfigPath, err)
	}
	return cfg, nil
}

// ServerURL returns the API server URL for the kubeconfig's current
// context, for diagnostics and for the registry discovery's initial
// reachability probe.
func (m *Manager) ServerURL() (string, error) {
	cfg, err := m.LoadKubeconfig()
	if err != nil {
		return "", err
	}
	ctxName := cfg.CurrentContext
	if ctxName == "" {
		for name := range cfg.Contexts {
			ctxName = name
			break
		}
	}
	ctxInfo, ok := cfg.Contexts[ctxName]
	if !ok {
		return "", fmt.Errorf("kubeconfig %s has no usable context", m.KubeconfigPath)
	}
	cluster, ok := cfg.Clusters[ctxInfo.Cluster]
	if !ok {
		return "", fmt.Errorf("kubeconfig %s context %q references unknown cluster %q", m.KubeconfigPath, ctxName, ctxInfo.Cluster)
	}
	return cluster.Server, nil
}

// RestConfig builds a *rest.Config-compatible client config from the
// kubeconfig, for any future component that needs the Kubernetes API
// via client-go rather than kubectl.
func (m *Manager) RestConfig() (clientcmd.ClientConfig, error) {
	loadingRules := &clientcmd.ClientConfigLoadingRules{ExplicitPath: m.KubeconfigPath}
	return clientcmd.NewNonInteractiveDeferredLoadingClientConfig(loadingRules, &clientcmd.ConfigOverrides{}), nil
}
