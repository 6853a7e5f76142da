// Package interfaces defines the core types and interfaces of the keys API,
// separating the contracts between components from their implementations.
//
// # Registry data
//
// RegistryKey, RegistryOperator and SyncMeta mirror the rows an external updater
// writes after each sync pass over the on-chain node operators registry. A Snapshot
// groups the three so a whole pass can be carried and swapped as one value.
//
// # Storage Interfaces
//
// RegistryStore exposes closure-scoped read views (RegistryView). Every read made
// through one view observes the same sync pass. SnapshotWriter is the write side used
// by the import tool and tests; SnapshotSource loads whole snapshots from files or
// object storage.
//
// # Modules
//
// ModuleDescriptor describes one staking module deployment per chain. ModuleType is
// a closed set of module kinds; only the curated grouped-onchain-v1 kind is served.
package interfaces
