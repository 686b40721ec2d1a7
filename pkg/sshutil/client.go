package sshutil

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/kevinburke/ssh_config"
	"github.com/rileyhilliard/fleetwatch/internal/errors"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/crypto/ssh/knownhosts"
)

// Client wraps an SSH connection with additional metadata.
type Client struct {
	*ssh.Client
	Host    string // The original host/alias used to connect
	Address string // The resolved address (host:port)
}

// DialOptions describes how to reach one host. Explicit fields win over
// values resolved from ssh_config, which win over built-in defaults.
type DialOptions struct {
	// Host can be an ssh_config alias, a hostname, user@hostname, or hostname:port.
	Host string

	User         string
	Port         int
	IdentityFile string

	// Timeout bounds the TCP connect and the SSH handshake. A ctx deadline
	// that is earlier wins.
	Timeout time.Duration

	// StrictHostKeyChecking verifies host keys against KnownHostsFile.
	// When false, host key verification is skipped.
	StrictHostKeyChecking bool

	KnownHostsFile string // defaults to ~/.ssh/known_hosts
	SSHConfigFile  string // defaults to ~/.ssh/config
}

// Dial establishes an SSH connection described by opts.
// Every failure is a structured CONNECTION error; ctx cancellation aborts
// both the TCP connect and an in-progress handshake.
func Dial(ctx context.Context, opts DialOptions) (*Client, error) {
	settings := resolveSSHSettings(opts)

	config, err := buildSSHConfig(settings, opts)
	if err != nil {
		var fwErr *errors.Error
		if stderrors.As(err, &fwErr) {
			return nil, err
		}
		return nil, errors.WrapWithCode(err, errors.ErrConnection,
			fmt.Sprintf("Couldn't set up SSH for '%s'", opts.Host),
			"Check your keys are loaded: ssh-add -l")
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	config.Timeout = timeout

	address := settings.address()
	dialer := &net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrConnection,
			fmt.Sprintf("Can't reach '%s' at %s", opts.Host, address),
			suggestionForDialError(err))
	}

	// The handshake has no ctx of its own; bound it with a deadline and
	// tear the socket down if ctx ends first.
	deadline := time.Now().Add(timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = conn.SetDeadline(deadline)

	handshakeDone := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-handshakeDone:
		}
	}()

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, address, config)
	close(handshakeDone)
	if err != nil {
		conn.Close()

		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, errors.WrapWithCode(ctxErr, errors.ErrConnection,
				fmt.Sprintf("SSH handshake with '%s' was cut short", opts.Host),
				"The host answered but didn't finish the handshake in time.")
		}

		var hostKeyErr *HostKeyMismatchError
		if stderrors.As(err, &hostKeyErr) {
			return nil, errors.New(errors.ErrConnection,
				hostKeyErr.Error(),
				hostKeyErr.Suggestion())
		}

		return nil, errors.WrapWithCode(err, errors.ErrConnection,
			fmt.Sprintf("SSH handshake with '%s' didn't go through", opts.Host),
			suggestionForHandshakeError(err, settings.encryptedKeys))
	}
	_ = conn.SetDeadline(time.Time{})

	return &Client{
		Client:  ssh.NewClient(sshConn, chans, reqs),
		Host:    opts.Host,
		Address: address,
	}, nil
}

// Close closes the SSH connection.
func (c *Client) Close() error {
	if c.Client == nil {
		return nil
	}
	return c.Client.Close()
}

// GetHost returns the original host/alias used to connect.
func (c *Client) GetHost() string {
	return c.Host
}

// GetAddress returns the resolved host:port address.
func (c *Client) GetAddress() string {
	return c.Address
}

// sshSettings holds resolved SSH connection parameters.
type sshSettings struct {
	hostname      string
	port          string
	user          string
	identityFile  string
	encryptedKeys []string // Keys that exist but are encrypted
}

// address returns the host:port string for dialing.
func (s *sshSettings) address() string {
	return net.JoinHostPort(s.hostname, s.port)
}

// resolveSSHSettings parses the host string and layers ssh_config and the
// explicit options on top of the defaults.
func resolveSSHSettings(opts DialOptions) *sshSettings {
	settings := &sshSettings{
		port: "22",
		user: currentUser(),
	}

	host := opts.Host
	explicitUser := false
	if atIdx := strings.Index(host, "@"); atIdx != -1 {
		settings.user = host[:atIdx]
		host = host[atIdx+1:]
		explicitUser = true
	}

	explicitPort := false
	if colonIdx := strings.LastIndex(host, ":"); colonIdx != -1 {
		potentialPort := host[colonIdx+1:]
		if _, err := strconv.Atoi(potentialPort); err == nil && potentialPort != "" {
			settings.port = potentialPort
			host = host[:colonIdx]
			explicitPort = true
		}
	}

	settings.hostname = host

	configPath := opts.SSHConfigFile
	if configPath == "" {
		configPath = filepath.Join(homeDir(), ".ssh", "config")
	}

	// kevinburke/ssh_config doesn't support Match, so only the content
	// before the first Match block is decoded.
	if content, _, err := preprocessSSHConfig(configPath); err == nil {
		if cfg, err := ssh_config.Decode(bytes.NewReader(content)); err == nil {
			if hostname, _ := cfg.Get(host, "HostName"); hostname != "" {
				settings.hostname = hostname
			}
			if port, _ := cfg.Get(host, "Port"); port != "" && !explicitPort {
				settings.port = port
			}
			if user, _ := cfg.Get(host, "User"); user != "" && !explicitUser {
				settings.user = user
			}
			if identity, _ := cfg.Get(host, "IdentityFile"); identity != "" {
				settings.identityFile = expandPath(identity)
			}
		}
	}

	if opts.User != "" {
		settings.user = opts.User
	}
	if opts.Port > 0 {
		settings.port = strconv.Itoa(opts.Port)
	}
	if opts.IdentityFile != "" {
		settings.identityFile = expandPath(opts.IdentityFile)
	}

	return settings
}

// buildSSHConfig creates an SSH client config with authentication methods.
// It also populates settings.encryptedKeys with any keys that exist but are encrypted.
func buildSSHConfig(settings *sshSettings, opts DialOptions) (*ssh.ClientConfig, error) {
	var authMethods []ssh.AuthMethod

	tryKeyFile := func(keyPath string) {
		keyAuth, err := keyFileAuth(keyPath)
		if err != nil {
			var encErr *EncryptedKeyError
			if stderrors.As(err, &encErr) {
				settings.encryptedKeys = append(settings.encryptedKeys, keyPath)
			}
			return
		}
		authMethods = append(authMethods, keyAuth)
	}

	if agentAuth := sshAgentAuth(); agentAuth != nil {
		authMethods = append(authMethods, agentAuth)
	}

	if settings.identityFile != "" {
		tryKeyFile(settings.identityFile)
	}

	defaultKeys := []string{
		filepath.Join(homeDir(), ".ssh", "id_ed25519"),
		filepath.Join(homeDir(), ".ssh", "id_rsa"),
		filepath.Join(homeDir(), ".ssh", "id_ecdsa"),
	}
	for _, keyPath := range defaultKeys {
		if keyPath == settings.identityFile {
			continue
		}
		tryKeyFile(keyPath)
	}

	if len(authMethods) == 0 {
		msg := "No SSH auth methods available"
		if len(settings.encryptedKeys) > 0 {
			msg = fmt.Sprintf("Found SSH key(s) but they're encrypted: %s", strings.Join(settings.encryptedKeys, ", "))
		}
		return nil, errors.New(errors.ErrConnection, msg,
			"Load a key into ssh-agent or point identity_file at an unencrypted key")
	}

	var hostKeyCallback ssh.HostKeyCallback
	if opts.StrictHostKeyChecking {
		knownHostsPath := opts.KnownHostsFile
		if knownHostsPath == "" {
			knownHostsPath = filepath.Join(homeDir(), ".ssh", "known_hosts")
		}
		var err error
		hostKeyCallback, err = createHostKeyCallback(knownHostsPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load known_hosts: %w", err)
		}
	} else {
		hostKeyCallback = ssh.InsecureIgnoreHostKey() //nolint:gosec // strict_host_key_checking: false
	}

	return &ssh.ClientConfig{
		User:            settings.user,
		Auth:            authMethods,
		HostKeyCallback: hostKeyCallback,
	}, nil
}

// agentConn holds the reusable SSH agent connection.
var (
	agentMu     sync.Mutex
	agentConn   net.Conn
	agentClient agent.ExtendedAgent
)

// sshAgentAuth returns an auth method using the SSH agent if available.
// The agent connection is shared by every poller in the process.
// Returns nil if the agent has no keys loaded.
func sshAgentAuth() ssh.AuthMethod {
	socket := os.Getenv("SSH_AUTH_SOCK")
	if socket == "" {
		return nil
	}

	client := sharedAgent(socket)
	if client == nil {
		return nil
	}

	// An empty agent causes auth failures when placed before other methods.
	signers, err := client.Signers()
	if err != nil || len(signers) == 0 {
		return nil
	}

	return ssh.PublicKeysCallback(client.Signers)
}

func sharedAgent(socket string) agent.ExtendedAgent {
	agentMu.Lock()
	defer agentMu.Unlock()

	if agentClient != nil {
		return agentClient
	}
	conn, err := net.Dial("unix", socket)
	if err != nil {
		return nil
	}
	agentConn = conn
	agentClient = agent.NewClient(conn)
	return agentClient
}

// CloseAgent closes the shared SSH agent connection if one is open. The
// next dial that wants the agent reconnects.
func CloseAgent() {
	agentMu.Lock()
	defer agentMu.Unlock()

	if agentConn != nil {
		_ = agentConn.Close()
	}
	agentConn = nil
	agentClient = nil
}

// keyFileAuth returns an auth method using a private key file.
// Returns EncryptedKeyError if the key requires a passphrase.
func keyFileAuth(keyPath string) (ssh.AuthMethod, error) {
	key, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, err
	}

	signer, err := ssh.ParsePrivateKey(key)
	if err != nil {
		var missing *ssh.PassphraseMissingError
		if stderrors.As(err, &missing) || isEncryptedPEM(key) {
			return nil, &EncryptedKeyError{Path: keyPath}
		}
		return nil, err
	}

	return ssh.PublicKeys(signer), nil
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return os.Getenv("HOME")
	}
	return home
}

func currentUser() string {
	if user := os.Getenv("USER"); user != "" {
		return user
	}
	return "root"
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(homeDir(), path[2:])
	}
	return path
}

func suggestionForDialError(err error) string {
	errStr := err.Error()
	if strings.Contains(errStr, "connection refused") {
		return "Is SSH running on that box?"
	}
	if strings.Contains(errStr, "no route to host") || strings.Contains(errStr, "network is unreachable") {
		return "Can't route to the host. Check the network path."
	}
	if strings.Contains(errStr, "timeout") {
		return "Connection timed out. Host might be offline or blocked by a firewall."
	}
	return "Make sure the host is reachable."
}

func suggestionForHandshakeError(err error, encryptedKeys []string) string {
	errStr := err.Error()
	if strings.Contains(errStr, "unable to authenticate") || strings.Contains(errStr, "no supported methods") {
		if len(encryptedKeys) > 0 {
			return "Your key(s) are encrypted. Add them to the agent: ssh-add " + strings.Join(encryptedKeys, " ")
		}
		return "Auth failed. Check identity_file or the keys loaded in ssh-agent."
	}
	if strings.Contains(errStr, "host key") {
		return "Host key issue. Add the host to known_hosts or disable strict_host_key_checking."
	}
	return "Something went wrong during SSH setup."
}

// EncryptedKeyError is returned when an SSH key requires a passphrase.
type EncryptedKeyError struct {
	Path string
}

func (e *EncryptedKeyError) Error() string {
	return fmt.Sprintf("SSH key at %s is encrypted (passphrase protected)", e.Path)
}

// HostKeyMismatchError provides helpful context when known_hosts verification fails.
type HostKeyMismatchError struct {
	Hostname     string
	ReceivedType string
	KnownHosts   string
	Want         []knownhosts.KnownKey
}

func (e *HostKeyMismatchError) Error() string {
	return fmt.Sprintf("host key mismatch for %s: server sent %s key", e.Hostname, e.ReceivedType)
}

// Suggestion returns actionable steps to fix the host key mismatch.
func (e *HostKeyMismatchError) Suggestion() string {
	host := e.Hostname
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}

	var wantTypes []string
	for _, k := range e.Want {
		wantTypes = append(wantTypes, k.Key.Type())
	}
	wantStr := "unknown"
	if len(wantTypes) > 0 {
		wantStr = strings.Join(wantTypes, ", ")
	}

	return fmt.Sprintf(
		"Known types: %s, server sent: %s. Remove the old entry with: ssh-keygen -R %s -f %s",
		wantStr, e.ReceivedType, host, e.KnownHosts)
}

// preprocessSSHConfig reads the SSH config and returns content up to the first Match directive.
// Also returns the line number where Match was found (0 if not found).
func preprocessSSHConfig(configPath string) ([]byte, int, error) {
	content, err := os.ReadFile(configPath)
	if err != nil {
		return nil, 0, err
	}

	lines := strings.Split(string(content), "\n")
	var result []string
	matchLine := 0

	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(strings.ToLower(trimmed), "match ") {
			matchLine = i + 1
			break
		}
		result = append(result, line)
	}

	return []byte(strings.Join(result, "\n")), matchLine, nil
}

// isEncryptedPEM checks if PEM data contains encryption markers.
func isEncryptedPEM(data []byte) bool {
	return bytes.Contains(data, []byte("ENCRYPTED"))
}

// createHostKeyCallback wraps the knownhosts callback to provide better error messages.
func createHostKeyCallback(knownHostsPath string) (ssh.HostKeyCallback, error) {
	callback, err := knownhosts.New(knownHostsPath)
	if err != nil {
		return nil, err
	}

	return func(hostname string, remote net.Addr, key ssh.PublicKey) error {
		err := callback(hostname, remote, key)
		if err != nil {
			var keyErr *knownhosts.KeyError
			if stderrors.As(err, &keyErr) && len(keyErr.Want) > 0 {
				return &HostKeyMismatchError{
					Hostname:     hostname,
					ReceivedType: key.Type(),
					KnownHosts:   knownHostsPath,
					Want:         keyErr.Want,
				}
			}
		}
		return err
	}, nil
}
