//go:build linux

package ports

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// IdentifyOwner inspects /proc/net/tcp to find the socket inode bound
// to port, then scans /proc/*/fd for the process holding that inode.
// Returns pid 0 and an empty command when the owner can't be determined
// (e.g. the port is actually free, or /proc is unreadable).
func IdentifyOwner(port int) (pid int, cmd string) {
	inode := findInode(port)
	if inode == "" || inode == "0" {
		return 0, ""
	}

	entries, err := os.ReadDir("/proc")
	if err != nil {
		return 0, ""
	}
	needle := fmt.Sprintf("socket:[%s]", inode)
	for _, entry := range entries {
		name := entry.Name()
		pidN, err := strconv.Atoi(name)
		if err != nil {
			continue
		}
		fdDir := filepath.Join("/proc", name, "fd")
		fds, err := os.ReadDir(fdDir)
		if err != nil {
			continue
		}
		for _, fd := range fds {
			link, err := os.Readlink(filepath.Join(fdDir, fd.Name()))
			if err != nil {
				continue
			}
			if link != needle {
				continue
			}
			return pidN, readCmdline(pidN)
		}
	}
	return 0, ""
}

func findInode(port int) string {
	raw, err := os.ReadFile("/proc/net/tcp")
	if err != nil {
		return ""
	}
	portHex := strings.ToUpper(fmt.Sprintf("%04x", port))
	lines := strings.Split(string(raw), "\n")
	for _, line := range lines[1:] {
		fields := strings.Fields(line)
		if len(fields) < 10 {
			continue
		}
		// Field 3 is the connection state; only LISTEN (0A) sockets can
		// own the port, so skip stale TIME_WAIT/ESTABLISHED entries that
		// happen to reuse the same local port number.
		if fields[3] != "0A" {
			continue
		}
		addrPort := strings.SplitN(fields[1], ":", 2)
		if len(addrPort) != 2 {
			continue
		}
		if strings.ToUpper(addrPort[1]) == portHex {
			return fields[9]
		}
	}
	return ""
}

func readCmdline(pid int) string {
	raw, err := os.ReadFile(fmt.Sprintf("/proc/%d/cmdline", pid))
	if err != nil || len(raw) == 0 {
		return fmt.Sprintf("PID %d", pid)
	}
	cmd := strings.TrimSpace(strings.ReplaceAll(string(raw), "\x00", " "))
	if cmd == "" {
		return fmt.Sprintf("PID %d", pid)
	}
	if len(cmd) > 60 {
		cmd = cmd[:57] + "..."
	}
	return fmt.Sprintf("%s (PID %d)", cmd, pid)
}
