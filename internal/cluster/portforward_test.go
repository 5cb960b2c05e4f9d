package cluster

import "testing"

func TestParseAddonForwards(t *testing.T) {
	m := &Manager{KubeconfigPath: "/tmp/kubeconfig"}
	pf := NewPortForwardManager(m, 42)

	forwards, err := pf.ParseAddonForwards("grafana", map[string]string{
		"svc/grafana": "3000:3000",
	})
	if err != nil {
		t.Fatalf("ParseAddonForwards: %v", err)
	}
	if len(forwards) != 1 {
		t.Fatalf("expected 1 forward, got %d", len(forwards))
	}
	f := forwards[0]
	if f.LocalPort != 3000 || f.RemotePort != 3000 || f.Resource != "svc/grafana" {
		t.Errorf("unexpected forward: %+v", f)
	}
}

func TestParseAddonForwardsRejectsMalformedMapping(t *testing.T) {
	m := &Manager{KubeconfigPath: "/tmp/kubeconfig"}
	pf := NewPortForwardManager(m, 42)

	if _, err := pf.ParseAddonForwards("grafana", map[string]string{"svc/grafana": "not-a-port-pair"}); err == nil {
		t.Fatal("expected an error for a malformed port_forward mapping")
	}
}
