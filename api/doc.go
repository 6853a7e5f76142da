/*
Package api holds the wire types of the keys API.

Every response is an envelope of the form

	{"data": ..., "meta": {"elBlockSnapshot": {"blockNumber", "blockHash", "keysOpIndex"}}}

where meta is null until the registry has completed its first sync pass. Collection
responses then carry "data": [] and single-object responses "data": null; the two are
kept apart on purpose since existing clients rely on both shapes.

The subpackages implement the transport:

 1. handlers - chi handlers and the domain error to HTTP status mapping
 2. clients - a typed Go client for the same routes
*/
package api
