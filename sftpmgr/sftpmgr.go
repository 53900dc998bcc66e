// Package sftpmgr is the gated, rate-limited SFTP client every SFTP-backed
// loader and locator goes through. GetConnection's lazy-dial-then-cache
// shape builds a long-lived, mutex-serialized *sftp.Client the manager
// keeps open across calls instead of dialing fresh per call. Credentials
// (host, username, password, port) are resolved from a credentials.Provider
// each time a connection is dialed, not read from disk, since SFTP here is
// always password-authenticated.
package sftpmgr

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
	"golang.org/x/time/rate"

	"github.com/ocfetch/fetcher/gate"
	"github.com/ocfetch/fetcher/model"
)

// CredentialSource resolves the host/username/password/port fields the
// manager needs to dial. Declared locally (rather than importing
// credentials.Provider) to avoid a dependency from sftpmgr onto credentials.
type CredentialSource interface {
	GetCredential(ctx context.Context, configName, field string) (string, error)
}

// Config configures a Manager's connection and gating policy.
type Config struct {
	CredentialsProvider CredentialSource
	ConfigName          string // passed as configName to every GetCredential call

	ConnectTimeout     float64 // seconds; bounds the TCP dial; 0 means no dial timeout
	InsecureSkipVerify bool    // disables strict host-key verification
	KnownHostsPath     string  // consulted only when InsecureSkipVerify is false; when empty, host keys are not verified

	RateLimitRPS float64 // 0 disables rate limiting
	DailyGate    gate.Gate
	IntervalGate gate.Gate
}

// Manager serializes access to a single SFTP connection: the underlying
// ssh/sftp transport is not safe for concurrent request issuance on most
// servers, so every operation takes manager-wide mu.
type Manager struct {
	cfg Config

	mu        sync.Mutex
	sshClient *ssh.Client
	client    *sftp.Client
	limiter   *rate.Limiter
}

// New builds a Manager. The connection is established lazily on first use.
func New(cfg Config) *Manager {
	m := &Manager{cfg: cfg}
	if cfg.RateLimitRPS > 0 {
		m.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), 1)
	}
	return m
}

func (m *Manager) credential(ctx context.Context, field string) (string, error) {
	v, err := m.cfg.CredentialsProvider.GetCredential(ctx, m.cfg.ConfigName, field)
	if err != nil {
		return "", fmt.Errorf("sftpmgr: %w", err)
	}
	return v, nil
}

func (m *Manager) hostKeyCallback() (ssh.HostKeyCallback, error) {
	if m.cfg.InsecureSkipVerify || m.cfg.KnownHostsPath == "" {
		return ssh.InsecureIgnoreHostKey(), nil
	}
	if _, err := os.Stat(m.cfg.KnownHostsPath); err != nil {
		return nil, fmt.Errorf("known_hosts file: %w", err)
	}
	cb, err := knownhosts.New(m.cfg.KnownHostsPath)
	if err != nil {
		return nil, fmt.Errorf("parsing known_hosts: %w", err)
	}
	return cb, nil
}

// connectLocked dials and opens an SFTP session using credentials resolved
// from the provider. Caller must hold m.mu.
func (m *Manager) connectLocked(ctx context.Context) error {
	if m.client != nil {
		return nil
	}

	host, err := m.credential(ctx, "host")
	if err != nil {
		return fmt.Errorf("%w: %v", model.ErrAuthFailed, err)
	}
	username, err := m.credential(ctx, "username")
	if err != nil {
		return fmt.Errorf("%w: %v", model.ErrAuthFailed, err)
	}
	password, err := m.credential(ctx, "password")
	if err != nil {
		return fmt.Errorf("%w: %v", model.ErrAuthFailed, err)
	}
	port, err := m.credential(ctx, "port")
	if err != nil {
		port = "22"
	}
	if _, convErr := strconv.Atoi(port); convErr != nil {
		port = "22"
	}

	hostKeyCallback, err := m.hostKeyCallback()
	if err != nil {
		return fmt.Errorf("%w: %v", model.ErrTransport, err)
	}

	config := &ssh.ClientConfig{
		User:            username,
		Auth:            []ssh.AuthMethod{ssh.Password(password)},
		HostKeyCallback: hostKeyCallback,
		Timeout:         time.Duration(m.cfg.ConnectTimeout * float64(time.Second)),
	}

	addr := host + ":" + port
	sshClient, err := ssh.Dial("tcp", addr, config)
	if err != nil {
		return fmt.Errorf("%w: dialing %s: %v", model.ErrTransport, addr, err)
	}

	client, err := sftp.NewClient(sshClient)
	if err != nil {
		sshClient.Close()
		return fmt.Errorf("%w: opening sftp session: %v", model.ErrTransport, err)
	}

	m.sshClient = sshClient
	m.client = client
	return nil
}

// GetConnection returns the cached authenticated *sftp.Client, dialing one
// on first use. Exposed so callers that need client methods the Manager
// does not wrap (e.g. Rename) can reuse the same connection; calls made on
// the returned client bypass the gates, the rate limiter and the manager's
// lock.
func (m *Manager) GetConnection(ctx context.Context) (*sftp.Client, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.connectLocked(ctx); err != nil {
		return nil, err
	}
	return m.client, nil
}

func (m *Manager) gateWait(ctx context.Context) error {
	if m.cfg.DailyGate != nil {
		if err := m.cfg.DailyGate.Wait(ctx); err != nil {
			return err
		}
	}
	if m.cfg.IntervalGate != nil {
		if err := m.cfg.IntervalGate.Wait(ctx); err != nil {
			return err
		}
	}
	return nil
}

// withClient runs fn against the cached session under m.mu for the whole
// gate -> rate-limit -> execute sequence: the session is single-threaded,
// and the gates' own internal state (OncePerIntervalGate's
// lastRun) is unsynchronized, so the lock must cover gating too, not just
// the connection and fn.
func (m *Manager) withClient(ctx context.Context, fn func(*sftp.Client) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.gateWait(ctx); err != nil {
		return err
	}
	if m.limiter != nil {
		if err := m.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	if err := m.connectLocked(ctx); err != nil {
		return err
	}
	return fn(m.client)
}

// ReadDir lists dir's entries.
func (m *Manager) ReadDir(ctx context.Context, dir string) ([]fs.FileInfo, error) {
	var entries []fs.FileInfo
	err := m.withClient(ctx, func(c *sftp.Client) error {
		var err error
		entries, err = c.ReadDir(dir)
		return err
	})
	return entries, err
}

// Stat returns metadata for path.
func (m *Manager) Stat(ctx context.Context, path string) (fs.FileInfo, error) {
	var info fs.FileInfo
	err := m.withClient(ctx, func(c *sftp.Client) error {
		var err error
		info, err = c.Stat(path)
		return err
	})
	return info, err
}

// Open streams path's contents into a buffer and returns a ReadCloser over
// it, releasing the manager-wide lock before the caller finishes reading
// (the remote file handle is closed before Open returns).
func (m *Manager) Open(ctx context.Context, path string) (io.ReadCloser, error) {
	var data []byte
	err := m.withClient(ctx, func(c *sftp.Client) error {
		f, err := c.Open(path)
		if err != nil {
			return fmt.Errorf("%w: opening %s: %v", model.ErrTransport, path, err)
		}
		defer f.Close()
		data, err = io.ReadAll(f)
		if err != nil {
			return fmt.Errorf("%w: reading %s: %v", model.ErrTransport, path, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// Close tears down the underlying SSH connection. Idempotent.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var errs []error
	if m.client != nil {
		if err := m.client.Close(); err != nil {
			errs = append(errs, err)
		}
		m.client = nil
	}
	if m.sshClient != nil {
		if err := m.sshClient.Close(); err != nil {
			errs = append(errs, err)
		}
		m.sshClient = nil
	}
	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}
