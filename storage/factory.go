package storage

import (
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/ruteri/keys-api/interfaces"
)

// RegistryStoreFactory creates registry stores from location URIs.
type RegistryStoreFactory struct {
	log *slog.Logger
}

func NewRegistryStoreFactory(logger *slog.Logger) *RegistryStoreFactory {
	return &RegistryStoreFactory{log: logger}
}

// StoreFor creates a store from a location URI.
// The URI format should be [scheme]://[auth@]host[:port][/path][?params]
//
// Supported schemes:
//   - sqlite:// - SQLite database written by the updater
//   - file:// - JSON snapshot on the local file system, served from memory
//   - s3:// - JSON snapshot in S3, served from memory
//   - ipfs:// - JSON snapshot behind an IPFS or IPNS path, served from memory
//   - github:// - JSON snapshot committed to a GitHub repository, served from memory
//   - memory:// - empty in-memory store
//
// Stores built from snapshot sources are Reloadable; the caller performs the
// first load.
func (sf *RegistryStoreFactory) StoreFor(locationURI string) (interfaces.RegistryStore, error) {
	u, err := url.Parse(locationURI)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrInvalidLocationURI, err)
	}

	switch strings.ToLower(u.Scheme) {
	case "sqlite":
		path, err := uriPath(u)
		if err != nil {
			return nil, err
		}
		sf.log.Debug("Creating sqlite store", slog.String("path", path))
		return NewSQLiteStore(path, sf.log)
	case "memory":
		return NewMemoryStore(nil, sf.log), nil
	case "file", "s3", "ipfs", "github":
		source, err := sf.sourceFor(u)
		if err != nil {
			return nil, err
		}
		return NewMemoryStore(source, sf.log), nil
	default:
		return nil, fmt.Errorf("%w: unsupported scheme %q", interfaces.ErrInvalidLocationURI, u.Scheme)
	}
}

// CreateMultiSourceStore creates an in-memory store reloading from several
// snapshot sources, tried in order. Invalid URIs are skipped with a warning.
func (sf *RegistryStoreFactory) CreateMultiSourceStore(locationURIs []string) (interfaces.RegistryStore, error) {
	sources := make([]interfaces.SnapshotSource, 0, len(locationURIs))

	for _, uri := range locationURIs {
		u, err := url.Parse(uri)
		if err != nil {
			sf.log.Warn("Failed to parse snapshot source URI", "err", err, slog.String("locationURI", uri))
			continue
		}
		source, err := sf.sourceFor(u)
		if err != nil {
			sf.log.Warn("Failed to create snapshot source", "err", err, slog.String("locationURI", uri))
			continue
		}
		sources = append(sources, source)
	}

	if len(sources) == 0 {
		return nil, fmt.Errorf("no valid snapshot sources created")
	}

	return NewMemoryStore(NewMultiSource(sources, sf.log), sf.log), nil
}

// SourceFor creates a snapshot source from a file://, s3://, ipfs:// or github:// URI.
func (sf *RegistryStoreFactory) SourceFor(locationURI string) (interfaces.SnapshotSource, error) {
	u, err := url.Parse(locationURI)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrInvalidLocationURI, err)
	}
	return sf.sourceFor(u)
}

func (sf *RegistryStoreFactory) sourceFor(u *url.URL) (interfaces.SnapshotSource, error) {
	switch strings.ToLower(u.Scheme) {
	case "file":
		path, err := uriPath(u)
		if err != nil {
			return nil, err
		}
		sf.log.Debug("Creating file snapshot source", slog.String("path", path))
		return NewFileSource(path, sf.log), nil
	case "s3":
		return sf.createS3Source(u)
	case "ipfs":
		return sf.createIPFSSource(u)
	case "github":
		return sf.createGitHubSource(u)
	default:
		return nil, fmt.Errorf("%w: %q is not a snapshot source scheme", interfaces.ErrInvalidLocationURI, u.Scheme)
	}
}

// createS3Source parses s3://[ACCESS_KEY:SECRET_KEY@]bucket/path/snapshot.json?region=...&endpoint=...
func (sf *RegistryStoreFactory) createS3Source(u *url.URL) (interfaces.SnapshotSource, error) {
	bucketName := u.Host
	key := strings.TrimPrefix(u.Path, "/")
	if bucketName == "" || key == "" {
		return nil, fmt.Errorf("%w: expected s3://bucket/key", interfaces.ErrInvalidLocationURI)
	}

	query := u.Query()
	region := query.Get("region")
	if region == "" {
		region = "us-east-1"
	}
	endpoint := query.Get("endpoint")

	var accessKey, secretKey string
	if u.User != nil {
		accessKey = u.User.Username()
		secretKey, _ = u.User.Password()
		sf.log.Debug("Using embedded S3 credentials")
	} else {
		sf.log.Debug("No credentials provided, S3 bucket assumed to be public")
	}

	return NewS3Source(bucketName, key, region, endpoint, accessKey, secretKey, sf.log)
}

// createIPFSSource parses ipfs://host:port/ipns/<name>?timeout=30s
func (sf *RegistryStoreFactory) createIPFSSource(u *url.URL) (interfaces.SnapshotSource, error) {
	if u.Host == "" {
		return nil, fmt.Errorf("%w: expected ipfs://host:port/ipfs/<cid> or /ipns/<name>", interfaces.ErrInvalidLocationURI)
	}

	var timeout time.Duration
	if t := u.Query().Get("timeout"); t != "" {
		var err error
		if timeout, err = time.ParseDuration(t); err != nil {
			return nil, fmt.Errorf("%w: invalid timeout %q", interfaces.ErrInvalidLocationURI, t)
		}
	}

	return NewIPFSSource(u.Host, u.Path, timeout, sf.log)
}

// createGitHubSource parses github://[TOKEN@]owner/repo/path/snapshot.json?ref=main
func (sf *RegistryStoreFactory) createGitHubSource(u *url.URL) (interfaces.SnapshotSource, error) {
	owner := u.Host
	parts := strings.SplitN(strings.TrimPrefix(u.Path, "/"), "/", 2)
	if owner == "" || len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return nil, fmt.Errorf("%w: expected github://owner/repo/path", interfaces.ErrInvalidLocationURI)
	}

	var token string
	if u.User != nil {
		token = u.User.Username()
	}

	return NewGitHubSource(owner, parts[0], parts[1], u.Query().Get("ref"), token, sf.log), nil
}

// uriPath handles both absolute (scheme:///abs/path) and relative (scheme://./rel/path) forms.
func uriPath(u *url.URL) (string, error) {
	path := u.Path
	if u.Host != "" {
		path = u.Host + "/" + strings.TrimPrefix(path, "/")
	}
	if path == "" {
		return "", fmt.Errorf("%w: empty path in %s", interfaces.ErrInvalidLocationURI, u.String())
	}
	return path, nil
}
