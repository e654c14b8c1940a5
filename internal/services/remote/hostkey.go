package remote

import (
	"bytes"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"

	"github.com/fgeck/homelab-remote/internal/models"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// hostKeyStore remembers host keys seen by this process and, when a path is
// set, mirrors them into a known_hosts file.
type hostKeyStore struct {
	mu     sync.Mutex
	path   string
	seen   map[string][]byte
	logger zerolog.Logger
}

func newHostKeyStore(path string, logger zerolog.Logger) *hostKeyStore {
	return &hostKeyStore{
		path:   path,
		seen:   make(map[string][]byte),
		logger: logger,
	}
}

func (h *hostKeyStore) callback(policy models.HostKeyPolicy) (ssh.HostKeyCallback, error) {
	switch policy {
	case models.HostKeyInsecure:
		return ssh.InsecureIgnoreHostKey(), nil //nolint:gosec // explicitly configured
	case models.HostKeyStrict:
		if h.path == "" {
			return nil, fmt.Errorf("strict host key policy requires a known_hosts path")
		}
		cb, err := knownhosts.New(h.path)
		if err != nil {
			return nil, fmt.Errorf("failed to read known_hosts: %w", err)
		}
		return cb, nil
	case models.HostKeyTOFU:
		return h.trustOnFirstUse, nil
	default:
		return nil, fmt.Errorf("unknown host key policy %q", policy)
	}
}

func (h *hostKeyStore) trustOnFirstUse(hostname string, remote net.Addr, key ssh.PublicKey) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	host := knownhosts.Normalize(hostname)

	if known, ok := h.seen[host]; ok {
		if bytes.Equal(known, key.Marshal()) {
			return nil
		}
		return fmt.Errorf("host key for %s changed since first use", host)
	}

	if h.path != "" {
		err := h.checkFile(hostname, remote, key)
		var keyErr *knownhosts.KeyError
		switch {
		case err == nil:
			h.seen[host] = key.Marshal()
			return nil
		case errors.As(err, &keyErr) && len(keyErr.Want) > 0:
			return fmt.Errorf("host key mismatch for %s: %w", host, err)
		case errors.As(err, &keyErr):
		default:
			return err
		}

		if err := h.appendLine(host, key); err != nil {
			return err
		}
	}

	h.seen[host] = key.Marshal()

	h.logger.Info().
		Str("host", host).
		Str("fingerprint", ssh.FingerprintSHA256(key)).
		Msg("recorded new host key")

	return nil
}

// checkFile verifies key against the known_hosts file. A missing file means
// every host is unknown.
func (h *hostKeyStore) checkFile(hostname string, remote net.Addr, key ssh.PublicKey) error {
	if _, err := os.Stat(h.path); errors.Is(err, os.ErrNotExist) {
		return &knownhosts.KeyError{}
	}

	cb, err := knownhosts.New(h.path)
	if err != nil {
		return fmt.Errorf("failed to read known_hosts: %w", err)
	}
	return cb(hostname, remote, key)
}

func (h *hostKeyStore) appendLine(host string, key ssh.PublicKey) error {
	if err := os.MkdirAll(filepath.Dir(h.path), 0o700); err != nil {
		return fmt.Errorf("failed to create known_hosts directory: %w", err)
	}

	f, err := os.OpenFile(h.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("failed to open known_hosts: %w", err)
	}
	defer func() { _ = f.Close() }()

	if _, err := fmt.Fprintln(f, knownhosts.Line([]string{host}, key)); err != nil {
		return fmt.Errorf("failed to write known_hosts: %w", err)
	}
	return nil
}
