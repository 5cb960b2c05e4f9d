package cluster

import (
	"context"
	"fmt"
	"net"

	"github.com/steveyackey/devrig/sshimmer"
)

// SSHFallbackForward opens a local listener on localPort and relays it,
// over an SSH tunnel into the container at sshAddr, to remotePort inside
// the container. It's the fallback path for a managed container that
// exposes a port devrig never published to the host — the same direct,
// TOFU-free SSH access the container driver's sshimmer-provisioned sshd
// grants, used here to move bytes.
func SSHFallbackForward(ctx context.Context, s *sshimmer.LocalSSHimmer, localPort int, sshAddr string, remotePort int) error {
	listener, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", localPort))
	if err != nil {
		return fmt.Errorf("listening on 127.0.0.1:%d: %w", localPort, err)
	}
	remoteAddr := fmt.Sprintf("127.0.0.1:%d", remotePort)
	return s.LocalForward(ctx, listener, sshAddr, remoteAddr)
}
