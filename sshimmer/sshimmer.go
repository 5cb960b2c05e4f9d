package sshimmer

import (
	"bufio"
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/kevinburke/ssh_config"
	"golang.org/x/crypto/ssh"
)

/**
TODO: sort out all the .pub-cert vs -cert.pub shit. ssh expects one but no the other when deriving the cert filename from the private key filename.
*/

// Keys is the set of ssh keys and certificates to be installed on a container devrig provisions with an sshd.
type Keys struct {
	HostKey     []byte // host private key
	HostKeyPub  []byte // host public key
	HostKeyCert []byte // host key certificate
	UserCAPub   []byte // public key for user certificate authority
}

type LocalSSHimmer struct {
	localDomain string

	knownHostsPath   string
	userIdentityPath string
	userIdentity     []byte

	hostCAPath      string
	hostCA          ssh.Signer
	hostCAPublicKey ssh.PublicKey

	userCAPath      string
	userCertPath    string
	userCertificate []byte
	userCA          ssh.Signer
	userCAPublicKey ssh.PublicKey

	fs FileSystem
	kg KeyGenerator
}

// NewLocalSSHimmer will set up everything so that you can use ssh on localhost to connect to
// a managed devrig container without Trust On First Use (TOFU). To achive this, LocalSSHimmer uses its own
// certificate authorities to sign user and host certificates. devrig configures ssh (and sshd inside
// containers) so that it relies on certificate-based two-way authentication.  This ensures that your
// ssh client can verify that it's connecting to the container sshd that you think it is, and also that
// the container sshd can verify that it's you connecting to it.
//
// This CA-based approach requires minimal changes to your ~/.ssh/config.
// It adds a single Include line, once, automatically the first time you use devrig.
// Everything else (host CA, user CA and user identity keys) is maintained by updating files in
// ~/.config/devrig.
func NewLocalSSHimmer(ctx context.Context) (*LocalSSHimmer, error) {
	return newLocalSSHimmerWithDeps(ctx, &RealFileSystem{}, &RealKeyGenerator{})
}

// newLocalSSHimmerWithDeps creates a new LocalSSHimmer with the specified dependencies
func newLocalSSHimmerWithDeps(ctx context.Context, fs FileSystem, kg KeyGenerator) (*LocalSSHimmer, error) {
	base := filepath.Join(os.Getenv("HOME"), ".config", "devrig")
	if _, err := fs.Stat(base); err != nil {
		if err := fs.MkdirAll(base, 0o777); err != nil {
			return nil, fmt.Errorf("couldn't create %s: %w", base, err)
		}
	}

	s := &LocalSSHimmer{
		localDomain:      "test", // TODO: pass this in.
		knownHostsPath:   filepath.Join(base, "known_hosts"),
		userIdentityPath: filepath.Join(base, "user_key"),

		hostCAPath:   filepath.Join(base, "host_ca"),
		userCAPath:   filepath.Join(base, "user_ca"),
		userCertPath: filepath.Join(base, "user_cert"),
		fs:           fs,
		kg:           kg,
	}

	// Load or create the user CA
	slog.DebugContext(ctx, "newLocalSSHimmerWithDeps", "getOrCreateCA userCAPath", s.userCAPath)
	userCASigner, userCAPublicKey, err := s.getOrCreateCA(s.userCAPath)
	if err != nil {
		return nil, fmt.Errorf("couldn't get user CA from %s: %w", s.userCAPath, err)
	}
	s.userCA = userCASigner
	s.userCAPublicKey = userCAPublicKey

	// Load or create the user keypair
	userPubKey, userPrivKeyPEM, err := s.getOrCreateKeyPair(s.userIdentityPath)
	if err != nil {
		return nil, fmt.Errorf("couldn't create user identity from %s: %w", s.userIdentityPath, err)
	}
	s.userIdentity = userPrivKeyPEM

	// Issue a user certificate (TODO: skip this if the user key cert file already exits)
	userCert, err := s.issueUserCertificate(userPubKey)
	if err != nil {
		return nil, fmt.Errorf("couldn't issue user cert: %w", err)
	}
	s.userCertificate = userCert.Marshal()
	userCertBytes := ssh.MarshalAuthorizedKey(userCert)
	s.writeKeyToFile(userCertBytes, s.userIdentityPath+"-cert.pub")
	if err := writeDevrigSSHConfig(s.fs); err != nil {
		return nil, fmt.Errorf("writeDevrigSSHConfig: %w", err)
	}
	// Load or create the host CA
	slog.InfoContext(ctx, "newLocalSSHimmerWithDeps", "getOrCreateCA hostCAPath", s.hostCAPath)
	hostCASigner, hostCAPublicKey, err := s.getOrCreateCA(s.hostCAPath)
	if err != nil {
		return nil, fmt.Errorf("couldn't get host CA from %s: %w", s.hostCAPath, err)
	}
	s.hostCA = hostCASigner
	s.hostCAPublicKey = hostCAPublicKey
	if err := s.addHostCAToKnownHosts(); err != nil {
		return nil, fmt.Errorf("addHostCAToKnownHosts: %w", err)
	}

	return s, nil
}

func (s *LocalSSHimmer) NewKeys(ctx context.Context, hostName string) (*Keys, error) {
	privateKey, publicKey, err := s.kg.GenerateKeyPair()
	if err != nil {
		return nil, fmt.Errorf("error generating key pair: %w", err)
	}

	hostPubKey, err := s.kg.ConvertToSSHPublicKey(publicKey)
	if err != nil {
		return nil, fmt.Errorf("error converting to SSH public key: %w", err)
	}

	hostPrivKey := encodePrivateKeyToPEM(privateKey)

	// Issue a host certificate
	hostCert, err := s.issueHostCertificate(hostName, hostPubKey)
	if err != nil {
		return nil, fmt.Errorf("couldn't issue host cert: %w", err)
	}

	ret := &Keys{
		HostKey:     hostPrivKey,
		HostKeyPub:  ssh.MarshalAuthorizedKey(hostPubKey),
		HostKeyCert: ssh.MarshalAuthorizedKey(hostCert),
		UserCAPub:   ssh.MarshalAuthorizedKey(s.userCAPublicKey),
	}
	return ret, nil
}

// ClientConfig builds an *ssh.ClientConfig for dialing a container in
// process, authenticating as user using the same CA-signed identity
// ssh(1) itself would use via the generated ssh_config Include. This
// lets a caller (devrig's port-forward fallback, for one) open an SSH
// tunnel with golang.org/x/crypto/ssh directly instead of shelling out
// to the ssh binary.
func (s *LocalSSHimmer) ClientConfig(user string) (*ssh.ClientConfig, error) {
	signer, err := ssh.ParsePrivateKey(s.userIdentity)
	if err != nil {
		return nil, fmt.Errorf("parsing user identity key: %w", err)
	}
	cert, err := s.parseCertificate(s.userCertificate)
	if err != nil {
		return nil, fmt.Errorf("parsing user certificate: %w", err)
	}
	certSigner, err := ssh.NewCertSigner(cert, signer)
	if err != nil {
		return nil, fmt.Errorf("building certificate signer: %w", err)
	}

	checker := &ssh.CertChecker{
		IsHostAuthority: func(auth ssh.PublicKey, address string) bool {
			return bytes.Equal(auth.Marshal(), s.hostCAPublicKey.Marshal())
		},
	}

	return &ssh.ClientConfig{
		User:            user,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(certSigner)},
		HostKeyCallback: checker.CheckHostKey,
		Timeout:         10 * time.Second,
	}, nil
}

func (s *LocalSSHimmer) parseCertificate(raw []byte) (*ssh.Certificate, error) {
	pub, err := ssh.ParsePublicKey(raw)
	if err != nil {
		return nil, err
	}
	cert, ok := pub.(*ssh.Certificate)
	if !ok {
		return nil, fmt.Errorf("identity is not an ssh certificate")
	}
	return cert, nil
}

// LocalForward opens an SSH connection to sshAddr (host:port of the
// container's sshd) and relays every connection accepted on listener to
// remoteAddr through it, blocking until ctx is cancelled or the listener
// errors. It's the programmatic equivalent of `ssh -L`, used as a
// fallback port-forward path for containers that don't publish a host
// port but do run the sshd this package already provisions.
func (s *LocalSSHimmer) LocalForward(ctx context.Context, listener net.Listener, sshAddr, remoteAddr string) error {
	clientConfig, err := s.ClientConfig("root")
	if err != nil {
		return fmt.Errorf("building ssh client config: %w", err)
	}

	client, err := ssh.Dial("tcp", sshAddr, clientConfig)
	if err != nil {
		return fmt.Errorf("dialing %s: %w", sshAddr, err)
	}
	defer client.Close()

	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("accepting local forward connection: %w", err)
		}
		go s.relay(client, conn, remoteAddr)
	}
}

func (s *LocalSSHimmer) relay(client *ssh.Client, local net.Conn, remoteAddr string) {
	defer local.Close()
	remote, err := client.Dial("tcp", remoteAddr)
	if err != nil {
		slog.Error("ssh forward: dialing remote", "remote", remoteAddr, "error", err)
		return
	}
	defer remote.Close()

	done := make(chan struct{}, 2)
	go func() { io.Copy(remote, local); done <- struct{}{} }()
	go func() { io.Copy(local, remote); done <- struct{}{} }()
	<-done
}

func (s *LocalSSHimmer) writeKeyToFile(keyBytes []byte, filename string) error {
	return s.fs.WriteFile(filename, keyBytes, 0o600)
}

// TODO: return ssh.Signer instead of []byte for the private key?
func (s *LocalSSHimmer) getOrCreateKeyPair(idPath string) (ssh.PublicKey, []byte, error) {
	// An existing key pair (idPath and idPath.pub) is read back rather than regenerated.
	if _, err := s.fs.Stat(idPath); err == nil {
		pubkeyBytes, err := s.fs.ReadFile(idPath + ".pub")
		if err != nil {
			return nil, nil, fmt.Errorf("reading public key from %s: %w", idPath+".pub", err)
		}
		slog.Debug("getOrCreateKeyPair", "pubkeyBytes", string(pubkeyBytes))
		pubkey, _, _, _, err := ssh.ParseAuthorizedKey(pubkeyBytes)
		if err != nil {
			return nil, nil, fmt.Errorf("parsing public key from %s: %w", idPath+".pub", err)
		}
		privateKeyBytes, err := s.fs.ReadFile(idPath)
		if err != nil {
			return nil, nil, fmt.Errorf("reading private key from %s: %w", idPath, err)
		}
		//privKey, err := ssh.ParsePrivateKey(privateKeyBytes)

		return pubkey, privateKeyBytes, nil
	}

	privateKey, publicKey, err := s.kg.GenerateKeyPair()
	if err != nil {
		return nil, nil, fmt.Errorf("error generating key pair: %w", err)
	}

	sshPublicKey, err := s.kg.ConvertToSSHPublicKey(publicKey)
	if err != nil {
		return nil, nil, fmt.Errorf("error converting to SSH public key: %w", err)
	}

	privateKeyPEM := encodePrivateKeyToPEM(privateKey)

	err = s.writeKeyToFile(privateKeyPEM, idPath)
	if err != nil {
		return nil, nil, fmt.Errorf("error writing private key to file %w", err)
	}
	pubKeyBytes := ssh.MarshalAuthorizedKey(sshPublicKey)

	err = s.writeKeyToFile([]byte(pubKeyBytes), idPath+".pub")
	if err != nil {
		return nil, nil, fmt.Errorf("error writing public key to file %w", err)
	}
	return sshPublicKey, privateKeyPEM, nil
}

func (s *LocalSSHimmer) issueHostCertificate(hostName string, certPub ssh.PublicKey) (*ssh.Certificate, error) {
	// Create a new certificate
	cert := &ssh.Certificate{
		Key:             certPub,
		Serial:          1,
		CertType:        ssh.HostCert,
		KeyId:           hostName + " host key",
		ValidPrincipals: []string{hostName},                             // Only valid for this host name
		ValidAfter:      uint64(time.Now().Add(-24 * time.Hour).Unix()), // Valid from 1 day ago
		ValidBefore:     uint64(time.Now().Add(720 * time.Hour).Unix()), // Valid for 30 days
		Permissions: ssh.Permissions{
			Extensions: map[string]string{
				"permit-pty":              "",
				"permit-agent-forwarding": "",
				"permit-port-forwarding":  "",
			},
		},
	}
	// Sign the certificate with the host CA
	if err := cert.SignCert(rand.Reader, s.hostCA); err != nil {
		return nil, fmt.Errorf("signing host certificate: %w", err)
	}

	return cert, nil
}

func (c *LocalSSHimmer) addHostCAToKnownHosts() error {
	// Instead of adding individual host entries, we'll use a CA-based approach
	// by adding a single "@cert-authority" entry

	// Format the CA public key line for the known_hosts file
	var caPublicKeyLine string
	if c.hostCAPublicKey != nil {
		// Create a line that trusts hosts under *.<localDomain> with a certificate signed by our CA
		// This restricts the CA authority to that domain for security
		caLine := "@cert-authority *." + c.localDomain + " " + string(ssh.MarshalAuthorizedKey(c.hostCAPublicKey))
		caPublicKeyLine = strings.TrimSpace(caLine)
	}

	// Read existing known_hosts content or start with empty if the file doesn't exist
	outputLines := []string{}
	existingContent, err := c.fs.ReadFile(c.knownHostsPath)
	if err == nil {
		scanner := bufio.NewScanner(bytes.NewReader(existingContent))
		for scanner.Scan() {
			line := scanner.Text()
			// Skip existing CA lines to avoid duplicates
			if caPublicKeyLine != "" && strings.HasPrefix(line, "@cert-authority *."+c.localDomain+" ") {
				continue
			}
			// Skip existing host key lines for this host:port
			// if strings.Contains(line, c.sshHost+":"+c.sshPort) {
			// 	continue
			// }
			outputLines = append(outputLines, line)
		}
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("couldn't read known_hosts file: %w", err)
	}

	// Add the CA public key line if available
	if caPublicKeyLine != "" {
		outputLines = append(outputLines, caPublicKeyLine)
	}

	// Safely write the updated content to the file
	if err := c.fs.SafeWriteFile(c.knownHostsPath, []byte(strings.Join(outputLines, "\n")), 0o644); err != nil {
		return fmt.Errorf("couldn't safely write updated known_hosts to %s: %w", c.knownHostsPath, err)
	}

	return nil
}

func (s *LocalSSHimmer) issueUserCertificate(certPub ssh.PublicKey) (*ssh.Certificate, error) {
	// Create a new user certificate
	cert := &ssh.Certificate{
		Key:             certPub,
		Serial:          1,
		CertType:        ssh.UserCert,
		KeyId:           "devrig-user",
		ValidPrincipals: []string{"root"},                               // Only valid for root user in container
		ValidAfter:      uint64(time.Now().Add(-24 * time.Hour).Unix()), // Valid from 1 day ago
		ValidBefore:     uint64(time.Now().Add(720 * time.Hour).Unix()), // Valid for 30 days
		Permissions: ssh.Permissions{
			Extensions: map[string]string{
				"permit-pty":              "",
				"permit-agent-forwarding": "",
				"permit-port-forwarding":  "",
			},
		},
	}

	slog.Debug("s.userCA", "ca", s.userCA, "publicKey", s.userCA.PublicKey())
	if err := cert.SignCert(rand.Reader, s.userCA); err != nil {
		return nil, fmt.Errorf("signing user certificate : %w", err)
	}

	return cert, nil
}

// getOrCreateCA loads the certificate authority keypair at path, or
// creates one there if none exists.
func (s *LocalSSHimmer) getOrCreateCA(path string) (ssh.Signer, ssh.PublicKey, error) {
	// Check if CA keypair already exists
	if _, err := s.fs.Stat(path); err == nil {
		// CA keypair exists, verify it's still valid
		caPrivKeyPEM, err := s.fs.ReadFile(path)
		if err != nil {
			return nil, nil, fmt.Errorf("reading CA file %s: %w", path, err)
		}

		// Parse certificate to check validity
		privKey, err := ssh.ParsePrivateKey(caPrivKeyPEM)
		if err != nil {
			// Invalid certificate, something went wrong and we can't recover from it here.
			return nil, nil, err
		} else {
			return privKey, privKey.PublicKey(), nil
		}
	}

	pri, pub, err := s.kg.GenerateKeyPair()
	if err != nil {
		return nil, nil, fmt.Errorf("generating key pair: %w", err)
	}

	// Write the CA public key. First convert to ssh public key:
	caPublicKey, err := s.kg.ConvertToSSHPublicKey(pub)
	if err != nil {
		return nil, nil, fmt.Errorf("convertiung to ssh public key: %w", err)
	}
	// Then write the converted public key.
	caPubKeyBytes := ssh.MarshalAuthorizedKey(caPublicKey)
	if err := s.writeKeyToFile(caPubKeyBytes, path+".pub"); err != nil {
		return nil, nil, fmt.Errorf("writing CA public key to file: %w", err)
	}

	// Write the CA private key
	caPrivKeyPEM := encodePrivateKeyToPEM(pri)
	if err := s.writeKeyToFile(caPrivKeyPEM, path); err != nil {
		return nil, nil, fmt.Errorf("writing CA private key to file: %w", err)
	}

	// Create a signer from the private key
	caSigner, err := ssh.NewSignerFromKey(pri)
	if err != nil {
		return nil, nil, fmt.Errorf("creating CA signer from private key: %w", err)
	}

	return caSigner, caPublicKey, nil
}

func checkSSHHostResolve(ctx context.Context, hostname string) error {
	cmd := exec.CommandContext(ctx, "ssh", "-o", "BatchMode=yes", "-o", "ConnectTimeout=5", hostname)
	slog.InfoContext(ctx, "checkSSHResolve", "cmd", strings.Join(cmd.Args, " "))
	out, err := cmd.CombinedOutput()
	slog.InfoContext(ctx, "checkSSHResolve", "hostname", hostname, "out", string(out), "error", err)
	if err != nil {
		return fmt.Errorf("%w: %s", err, string(out))
	}
	return nil
}

// CheckForIncludeWithFS verifies that the user's ~/.ssh/ssh_config has the necessary "Include" statement
// for devrig's ssh_config file.
func CheckForIncludeWithFS(ctx context.Context, fs FileSystem) (func() error, error) {
	devrigSSHPathInclude := "Include " + filepath.Join(os.Getenv("HOME"), ".config", "devrig", "ssh_config")
	defaultSSHPath := filepath.Join(os.Getenv("HOME"), ".ssh", "config")

	slog.InfoContext(ctx, "CheckForIncludeWithFS", "devrigSSHPathInclude", devrigSSHPathInclude, "defaultSSHPath", defaultSSHPath)

	// Read the existing SSH config file
	existingContent, err := fs.ReadFile(defaultSSHPath)
	if err != nil {
		// If the file doesn't exist, create a new one with just the include line
		if os.IsNotExist(err) {
			return nil, fs.SafeWriteFile(defaultSSHPath, []byte(devrigSSHPathInclude+"\n"), 0o644)
		}
		return nil, fmt.Errorf("⚠️  SSH connections are disabled. cannot open SSH config file: %s: %w", defaultSSHPath, err)
	}

	// Parse the config file
	cfg, err := ssh_config.Decode(bytes.NewReader(existingContent))
	if err != nil {
		return nil, fmt.Errorf("couldn't decode ssh_config: %w", err)
	}

	var devrigIncludePos *ssh_config.Position
	var firstNonIncludePos *ssh_config.Position
	for _, host := range cfg.Hosts {
		for _, node := range host.Nodes {
			inc, ok := node.(*ssh_config.Include)
			if ok {
				if strings.TrimSpace(inc.String()) == devrigSSHPathInclude {
					pos := inc.Pos()
					devrigIncludePos = &pos
				}
			} else if firstNonIncludePos == nil && !strings.HasPrefix(strings.TrimSpace(node.String()), "#") {
				pos := node.Pos()
				firstNonIncludePos = &pos
			}
		}
	}

	slog.InfoContext(ctx, "CheckForIncludeWithFS", "devrigIncludePos", devrigIncludePos)

	if devrigIncludePos == nil {
		return func() error {
			// Include line not found, add it to the top of the file
			return modifySSHConfig(cfg, devrigSSHPathInclude, fs, defaultSSHPath)
		}, nil
	}

	if firstNonIncludePos != nil && firstNonIncludePos.Line < devrigIncludePos.Line {
		fmt.Printf("⚠️  SSH confg warning: the location of the Include statement for devrig's ssh config on line %d of %s may prevent ssh from working with devrig containers. try moving it to the top of the file (before any 'Host' lines) if ssh isn't working for you.\n", devrigIncludePos.Line, defaultSSHPath)
	}
	return nil, nil
}

func writeDevrigSSHConfig(fs FileSystem) error {
	identityPath := filepath.Join(os.Getenv("HOME"), ".config", "devrig", "user_key")
	devrigSSHConfigPath := filepath.Join(os.Getenv("HOME"), ".config", "devrig", "ssh_config")
	knownHostsPath := filepath.Join(os.Getenv("HOME"), ".config", "devrig", "known_hosts")

	hostPattern, err := ssh_config.NewPattern("*.test")
	if err != nil {
		return err
	}
	cfg := &ssh_config.Config{
		Hosts: []*ssh_config.Host{
			{
				Patterns: []*ssh_config.Pattern{
					hostPattern,
				},
				Nodes: []ssh_config.Node{
					&ssh_config.KV{
						Key:   "IdentityFile",
						Value: identityPath,
					},

					&ssh_config.KV{
						Key:   "UserKnownHostsFile",
						Value: knownHostsPath,
					},
					&ssh_config.KV{
						Key:   "CanonicalizeHostname",
						Value: "yes",
					},
					&ssh_config.KV{
						Key:   "CanonicalDomains",
						Value: "test",
					},
				},
			},
		},
	}

	cfgBytes, err := cfg.MarshalText()
	if err != nil {
		return fmt.Errorf("couldn't marshal ssh_config: %w", err)
	}
	if err := fs.SafeWriteFile(devrigSSHConfigPath, cfgBytes, 0o644); err != nil {
		return fmt.Errorf("couldn't safely write ssh_config: %w", err)
	}
	return nil
}

func modifySSHConfig(cfg *ssh_config.Config, devrigSSHPathInclude string, fs FileSystem, defaultSSHPath string) error {
	cfgBytes, err := cfg.MarshalText()
	if err != nil {
		return fmt.Errorf("couldn't marshal ssh_config: %w", err)
	}

	// Add the include line to the beginning
	cfgBytes = append([]byte(devrigSSHPathInclude+"\n"), cfgBytes...)

	// Safely write the updated config back to the file
	if err := fs.SafeWriteFile(defaultSSHPath, cfgBytes, 0o644); err != nil {
		return fmt.Errorf("couldn't safely write ssh_config: %w", err)
	}
	return nil
}

// encodePrivateKeyToPEM encodes an Ed25519 private key for storage
func encodePrivateKeyToPEM(privateKey ed25519.PrivateKey) []byte {
	// No need to create a signer first, we can directly marshal the key

	// Format and encode as a binary private key format
	pkBytes, err := ssh.MarshalPrivateKey(privateKey, "devrig key")
	if err != nil {
		panic(fmt.Sprintf("failed to marshal private key: %v", err))
	}

	// Return PEM encoded bytes
	return pem.EncodeToMemory(pkBytes)
}

// FileSystem represents a filesystem interface for testability
type FileSystem interface {
	Stat(name string) (fs.FileInfo, error)
	Mkdir(name string, perm fs.FileMode) error
	MkdirAll(name string, perm fs.FileMode) error
	ReadFile(name string) ([]byte, error)
	WriteFile(name string, data []byte, perm fs.FileMode) error
	OpenFile(name string, flag int, perm fs.FileMode) (*os.File, error)
	TempFile(dir, pattern string) (*os.File, error)
	Rename(oldpath, newpath string) error
	SafeWriteFile(name string, data []byte, perm fs.FileMode) error
}

func (fs *RealFileSystem) MkdirAll(name string, perm fs.FileMode) error {
	return os.MkdirAll(name, perm)
}

// RealFileSystem is the default implementation of FileSystem that uses the OS
type RealFileSystem struct{}

func (fs *RealFileSystem) Stat(name string) (fs.FileInfo, error) {
	return os.Stat(name)
}

func (fs *RealFileSystem) Mkdir(name string, perm fs.FileMode) error {
	return os.Mkdir(name, perm)
}

func (fs *RealFileSystem) ReadFile(name string) ([]byte, error) {
	return os.ReadFile(name)
}

func (fs *RealFileSystem) WriteFile(name string, data []byte, perm fs.FileMode) error {
	return os.WriteFile(name, data, perm)
}

func (fs *RealFileSystem) OpenFile(name string, flag int, perm fs.FileMode) (*os.File, error) {
	return os.OpenFile(name, flag, perm)
}

func (fs *RealFileSystem) TempFile(dir, pattern string) (*os.File, error) {
	return os.CreateTemp(dir, pattern)
}

func (fs *RealFileSystem) Rename(oldpath, newpath string) error {
	return os.Rename(oldpath, newpath)
}

// SafeWriteFile writes data to a temporary file, syncs to disk, creates a backup of the existing file if it exists,
// and then renames the temporary file to the target file name.
func (fs *RealFileSystem) SafeWriteFile(name string, data []byte, perm fs.FileMode) error {
	// Get the directory from the target filename
	dir := filepath.Dir(name)

	// Create a temporary file in the same directory
	tmpFile, err := fs.TempFile(dir, filepath.Base(name)+".*.tmp")
	if err != nil {
		return fmt.Errorf("couldn't create temporary file: %w", err)
	}
	tmpFilename := tmpFile.Name()
	defer os.Remove(tmpFilename) // Clean up if we fail

	// Write data to the temporary file
	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return fmt.Errorf("couldn't write to temporary file: %w", err)
	}

	// Sync to disk to ensure data is written
	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		return fmt.Errorf("couldn't sync temporary file: %w", err)
	}

	// Close the temporary file
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("couldn't close temporary file: %w", err)
	}

	// If the original file exists, create a backup
	if _, err := fs.Stat(name); err == nil {
		backupName := name + ".bak"
		// Remove any existing backup
		_ = os.Remove(backupName) // Ignore errors if the backup doesn't exist

		// Create the backup
		if err := fs.Rename(name, backupName); err != nil {
			return fmt.Errorf("couldn't create backup file: %w", err)
		}
	}

	// Rename the temporary file to the target file
	if err := fs.Rename(tmpFilename, name); err != nil {
		return fmt.Errorf("couldn't rename temporary file to target: %w", err)
	}

	// Set permissions on the new file
	if err := os.Chmod(name, perm); err != nil {
		return fmt.Errorf("couldn't set permissions on file: %w", err)
	}

	return nil
}

// CheckSSHReachability checks if the user's SSH config includes the devrig SSH config file and that
// ssh can resolve the container's hostname.
func CheckSSHReachability(ctx context.Context, cntrName string) (func() error, error) {
	if err := checkSSHHostResolve(ctx, cntrName); err != nil {
		slog.InfoContext(ctx, "CheckForIncludeWithFS")
		return CheckForIncludeWithFS(ctx, &RealFileSystem{})
	}
	return nil, nil
}

// KeyGenerator represents an interface for generating SSH keys for testability
type KeyGenerator interface {
	GenerateKeyPair() (ed25519.PrivateKey, ed25519.PublicKey, error)
	ConvertToSSHPublicKey(publicKey ed25519.PublicKey) (ssh.PublicKey, error)
}

// RealKeyGenerator is the default implementation of KeyGenerator
type RealKeyGenerator struct{}

func (kg *RealKeyGenerator) GenerateKeyPair() (ed25519.PrivateKey, ed25519.PublicKey, error) {
	publicKey, privateKey, err := ed25519.GenerateKey(rand.Reader)
	return privateKey, publicKey, err
}

func (kg *RealKeyGenerator) ConvertToSSHPublicKey(publicKey ed25519.PublicKey) (ssh.PublicKey, error) {
	return ssh.NewPublicKey(publicKey)
}
