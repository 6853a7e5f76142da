// Package storage provides the registry store implementations the keys API reads from.
//
// Two kinds of stores are supported:
//
//   - SQLiteStore keeps the registry tables (registry_key, registry_operator,
//     registry_meta) in a SQLite database written by the updater. Every View is a
//     single read transaction, so meta, keys and operators come from one sync pass.
//   - MemoryStore holds one immutable Snapshot behind an atomic pointer. It is
//     filled by ReplaceSnapshot or reloaded from a SnapshotSource: a JSON export on
//     the local file system, in S3, published to IPFS or committed to GitHub.
//     A View reads the pointer once.
//
// # Store URI Format
//
//	[scheme]://[auth@]host[:port][/path][?params]
//
// Supported URI schemes:
//
//   - sqlite:///var/lib/keys-api/registry.db
//   - file:///var/lib/keys-api/snapshot.json
//   - s3://[ACCESS_KEY:SECRET_KEY@]bucket/path/snapshot.json?region=us-east-1&endpoint=...
//   - ipfs://127.0.0.1:5001/ipns/registry.example?timeout=30s
//   - github://[TOKEN@]owner/repo/path/snapshot.json?ref=main
//   - memory://
//
// Several snapshot source URIs can be combined with CreateMultiSourceStore; the
// sources are tried in order on every reload.
package storage
