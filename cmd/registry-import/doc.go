// Command registry-import moves registry snapshots between the JSON export
// format and keys-api stores. It stands in for the registry updater in
// development and tests:
//
//	registry-import import --source file://./holesky.json --target sqlite://./registry.db
//	registry-import export --target sqlite://./registry.db --output ./registry.json
package main
