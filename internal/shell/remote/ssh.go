// Package remote runs commands and copies files on deployment hosts over
// SSH. Used when parts of a topology live on machines other than the one
// running the orchestrator.
package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"path"
	"strconv"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"
)

// =============================================================================
// Configuration
// =============================================================================

// Config configures a remote channel.
type Config struct {
	User string
	Host string
	Port int // Default: 22

	CommandTimeout time.Duration // Default: 30 seconds
	ConnectTimeout time.Duration // Default: 10 seconds
}

// ExecResult is the outcome of one remote command.
type ExecResult struct {
	ExitCode int
	Output   string
}

var (
	// ErrCommandTimeout is returned when a remote command exceeds the
	// command timeout.
	ErrCommandTimeout = errors.New("remote command timed out")
)

// =============================================================================
// Channel
// =============================================================================

// Channel is a reusable SSH connection to one host. Connections are
// established lazily and re-established when a keepalive fails.
type Channel struct {
	config Config
	signer ssh.Signer

	mu     sync.Mutex // protects client
	client *ssh.Client
}

// New creates a channel. The privateKey is the decrypted PEM-encoded key.
func New(privateKey []byte, config Config) (*Channel, error) {
	signer, err := ssh.ParsePrivateKey(privateKey)
	if err != nil {
		return nil, fmt.Errorf("parse SSH private key: %w", err)
	}

	if config.Port == 0 {
		config.Port = 22
	}
	if config.CommandTimeout == 0 {
		config.CommandTimeout = 30 * time.Second
	}
	if config.ConnectTimeout == 0 {
		config.ConnectTimeout = 10 * time.Second
	}

	return &Channel{
		config: config,
		signer: signer,
	}, nil
}

// connect establishes the SSH connection if not already connected.
func (c *Channel) connect(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client != nil {
		_, _, err := c.client.SendRequest("keepalive@lucid", true, nil)
		if err == nil {
			return nil
		}
		// Connection dead, reconnect
		c.client.Close()
		c.client = nil
	}

	config := &ssh.ClientConfig{
		User:            c.config.User,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(c.signer)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(), // TODO: store and verify host keys
		Timeout:         c.config.ConnectTimeout,
	}

	addr := net.JoinHostPort(c.config.Host, strconv.Itoa(c.config.Port))
	client, err := ssh.Dial("tcp", addr, config)
	if err != nil {
		return fmt.Errorf("SSH dial %s: %w", addr, err)
	}

	c.client = client
	return nil
}

// Close closes the SSH connection.
func (c *Channel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client != nil {
		err := c.client.Close()
		c.client = nil
		return err
	}
	return nil
}

// =============================================================================
// Execution
// =============================================================================

// Run executes one command on the remote host. A non-zero exit status is
// not an error; it is reported through ExitCode so callers can treat
// remote probe failures and channel failures differently.
func (c *Channel) Run(ctx context.Context, cmd string) (*ExecResult, error) {
	if err := c.connect(ctx); err != nil {
		return nil, err
	}

	c.mu.Lock()
	session, err := c.client.NewSession()
	c.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("create SSH session: %w", err)
	}
	defer session.Close()

	var output bytes.Buffer
	session.Stdout = &output
	session.Stderr = &output

	done := make(chan error, 1)
	go func() {
		done <- session.Run(cmd)
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(c.config.CommandTimeout):
		return nil, fmt.Errorf("%w after %v: %s", ErrCommandTimeout, c.config.CommandTimeout, cmd)
	case err := <-done:
		result := &ExecResult{Output: output.String()}
		if err != nil {
			var exitErr *ssh.ExitError
			if errors.As(err, &exitErr) {
				result.ExitCode = exitErr.ExitStatus()
				return result, nil
			}
			return nil, fmt.Errorf("run %q: %w", cmd, err)
		}
		return result, nil
	}
}

// EnsureDir creates a directory on the remote host if missing. A path
// occupied by something other than a directory is an error, never
// replaced.
func (c *Channel) EnsureDir(ctx context.Context, remotePath string) error {
	cmd := fmt.Sprintf("test -d %q || { test -e %q && exit 2; mkdir -p %q; }", remotePath, remotePath, remotePath)
	result, err := c.Run(ctx, cmd)
	if err != nil {
		return err
	}
	switch result.ExitCode {
	case 0:
		return nil
	case 2:
		return fmt.Errorf("remote path %s exists and is not a directory", remotePath)
	default:
		return fmt.Errorf("create remote directory %s: exit code %d: %s", remotePath, result.ExitCode, result.Output)
	}
}

// CopyFile writes data to a path on the remote host, creating parent
// directories. The write goes through cat so tilde paths expand remotely.
func (c *Channel) CopyFile(ctx context.Context, data []byte, remotePath string, mode string) error {
	if err := c.connect(ctx); err != nil {
		return err
	}

	c.mu.Lock()
	session, err := c.client.NewSession()
	c.mu.Unlock()
	if err != nil {
		return fmt.Errorf("create SSH session: %w", err)
	}
	defer session.Close()

	if mode == "" {
		mode = "0644"
	}
	dir := path.Dir(remotePath)
	cmd := fmt.Sprintf("mkdir -p %s && cat > %s && chmod %s %s", dir, remotePath, mode, remotePath)

	session.Stdin = bytes.NewReader(data)

	done := make(chan error, 1)
	go func() {
		done <- session.Run(cmd)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(c.config.CommandTimeout):
		return fmt.Errorf("%w copying %s", ErrCommandTimeout, remotePath)
	case err := <-done:
		if err != nil {
			return fmt.Errorf("copy %s: %w", remotePath, err)
		}
		return nil
	}
}
