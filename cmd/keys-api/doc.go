/*
Command keys-api serves read-only views of the synced validator registry.

Usage:

	keys-api --chain-id 1 --store-uri sqlite:///var/lib/keys-api/registry.db

	keys-api --chain-id 17000 \
	    --store-uri s3://snapshots/holesky/registry.json?region=eu-west-1 \
	    --store-uri file:///var/lib/keys-api/registry.json \
	    --rpc-addr http://127.0.0.1:8545

Every flag can also be set through its environment variable (CHAIN_ID, STORE_URI, ...).
With an SQLite store the external updater writes the database and each request reads
it in one transaction. With file:// and s3:// snapshots the server reloads the JSON
export every --refresh-interval and keeps serving the previous pass on failure.
*/
package main
