package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	shell "github.com/ipfs/go-ipfs-api"
	"github.com/ruteri/keys-api/interfaces"
)

// IPFSSource loads a JSON snapshot through an IPFS node API. The path is either
// an immutable /ipfs/<cid> or an /ipns/<name> the updater republishes after every
// sync pass.
type IPFSSource struct {
	shell       *shell.Shell
	apiAddr     string
	path        string
	log         *slog.Logger
	locationURI string
}

// NewIPFSSource creates a source reading path from the node API at apiAddr (host:port).
func NewIPFSSource(apiAddr, path string, timeout time.Duration, log *slog.Logger) (*IPFSSource, error) {
	if !strings.HasPrefix(path, "/ipfs/") && !strings.HasPrefix(path, "/ipns/") {
		return nil, fmt.Errorf("%w: IPFS path must start with /ipfs/ or /ipns/, got %q", interfaces.ErrInvalidLocationURI, path)
	}

	sh := shell.NewShell(apiAddr)
	if timeout > 0 {
		sh.SetTimeout(timeout)
	}

	return &IPFSSource{
		shell:       sh,
		apiAddr:     apiAddr,
		path:        path,
		log:         log,
		locationURI: fmt.Sprintf("ipfs://%s%s", apiAddr, path),
	}, nil
}

// Load fetches and decodes the snapshot. A path that does not resolve yet is
// reported as ErrSnapshotNotFound.
func (s *IPFSSource) Load(ctx context.Context) (*interfaces.Snapshot, error) {
	start := time.Now()

	if !s.shell.IsUp() {
		s.log.Warn("IPFS node unavailable", slog.String("api", s.apiAddr))
		return nil, fmt.Errorf("IPFS node %s unavailable", s.apiAddr)
	}

	reader, err := s.shell.Cat(s.path)
	if err != nil {
		if isIPFSNotFound(err) {
			s.log.Debug("Snapshot not found in IPFS",
				slog.String("path", s.path),
				slog.Duration("duration", time.Since(start)))
			return nil, interfaces.ErrSnapshotNotFound
		}

		s.log.Error("Failed to fetch snapshot from IPFS",
			slog.String("path", s.path),
			"err", err,
			slog.Duration("duration", time.Since(start)))
		return nil, fmt.Errorf("failed to fetch snapshot from IPFS: %w", err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot from IPFS: %w", err)
	}

	snapshot, err := DecodeSnapshot(data)
	if err != nil {
		return nil, err
	}

	s.log.Debug("Fetched snapshot from IPFS",
		slog.String("path", s.path),
		slog.Int("size", len(data)),
		slog.Duration("duration", time.Since(start)))
	return snapshot, nil
}

func isIPFSNotFound(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "no link named") ||
		strings.Contains(msg, "could not resolve name") ||
		strings.Contains(msg, "not found")
}

func (s *IPFSSource) Name() string {
	return fmt.Sprintf("ipfs-%s", s.apiAddr)
}

func (s *IPFSSource) LocationURI() string {
	return s.locationURI
}
