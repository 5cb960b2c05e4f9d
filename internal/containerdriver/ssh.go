package containerdriver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"path"
	"strings"

	"github.com/steveyackey/devrig/internal/devrigerr"
	"github.com/steveyackey/devrig/sshimmer"
)

// sshdConfig is the standalone sshd configuration ProvisionSSH installs:
// CA-signed host identity, user authentication against devrig's user CA
// only, no passwords. Written to its own path and started with -f so it
// never fights with whatever /etc/ssh/sshd_config the image ships.
const sshdConfig = `Port 22
HostKey /etc/ssh/ssh_host_ed25519_key
HostCertificate /etc/ssh/ssh_host_ed25519_key-cert.pub
TrustedUserCAKeys /etc/ssh/user_ca.pub
PermitRootLogin prohibit-password
PasswordAuthentication no
`

// writeContainerFile streams content into a file inside the container
// over exec's stdin, creating parent directories and setting mode.
func (d *Driver) writeContainerFile(ctx context.Context, id, filePath string, content []byte, mode string) error {
	script := fmt.Sprintf("mkdir -p %s && cat > %s && chmod %s %s",
		path.Dir(filePath), filePath, mode, filePath)
	cmd := exec.CommandContext(ctx, d.Binary, "exec", "-i", id, "sh", "-c", script)
	cmd.Stdin = bytes.NewReader(content)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return &devrigerr.DriverError{Driver: d.Binary, Op: "exec write " + filePath, Stderr: stderr.String(), Wrapped: err}
	}
	return nil
}

// ProvisionSSH installs a CA-signed host key, its certificate, and the
// user CA public key into the container, then starts an sshd against
// them if the image ships one. After this, devrig's own SSH identity
// (and ssh(1), via the generated config include) can dial the
// container's port 22 without any TOFU prompt — the fallback transport
// `devrig forward` rides on for ports that were never published to the
// host.
func (d *Driver) ProvisionSSH(ctx context.Context, id string, keys *sshimmer.Keys) error {
	files := []struct {
		path    string
		content []byte
		mode    string
	}{
		{"/etc/ssh/ssh_host_ed25519_key", keys.HostKey, "600"},
		{"/etc/ssh/ssh_host_ed25519_key.pub", keys.HostKeyPub, "644"},
		{"/etc/ssh/ssh_host_ed25519_key-cert.pub", keys.HostKeyCert, "644"},
		{"/etc/ssh/user_ca.pub", keys.UserCAPub, "644"},
		{"/etc/ssh/sshd_config_devrig", []byte(sshdConfig), "644"},
	}
	for _, f := range files {
		if err := d.writeContainerFile(ctx, id, f.path, f.content, f.mode); err != nil {
			return err
		}
	}

	code, out, err := d.Exec(ctx, id, []string{"sh", "-c",
		"command -v sshd >/dev/null 2>&1 || exit 43; mkdir -p /run/sshd; pgrep -x sshd >/dev/null 2>&1 || sshd -f /etc/ssh/sshd_config_devrig"})
	if err != nil {
		return err
	}
	if code == 43 {
		return fmt.Errorf("container has no sshd binary; install openssh-server in the image to use SSH forwarding")
	}
	if code != 0 {
		return fmt.Errorf("starting sshd in container: exit %d: %s", code, strings.TrimSpace(out))
	}
	return nil
}

// ipInspectResult is the NetworkSettings subset ContainerIP reads.
type ipInspectResult struct {
	NetworkSettings struct {
		Networks map[string]struct {
			IPAddress string `json:"IPAddress"`
		} `json:"Networks"`
	} `json:"NetworkSettings"`
}

// ContainerIP returns the container's address on network, falling back
// to its first networked address when network is empty or not attached.
func (d *Driver) ContainerIP(ctx context.Context, id, network string) (string, error) {
	out, err := d.run(ctx, "inspect", "inspect", id)
	if err != nil {
		return "", err
	}
	var results []ipInspectResult
	if err := json.Unmarshal([]byte(out), &results); err != nil || len(results) == 0 {
		return "", fmt.Errorf("parsing inspect output for %s: %w", id, err)
	}
	nets := results[0].NetworkSettings.Networks
	if n, ok := nets[network]; ok && n.IPAddress != "" {
		return n.IPAddress, nil
	}
	for _, n := range nets {
		if n.IPAddress != "" {
			return n.IPAddress, nil
		}
	}
	return "", fmt.Errorf("container %s has no network address", id)
}
