/*
Package handlers implements the HTTP transport of the keys API.

Handler translates requests into calls on a Service (normally *views.Service),
writes the response envelope as JSON and maps domain errors to status codes:

  - interfaces.ErrInvalidQuery - 400
  - interfaces.ErrModuleNotFound, interfaces.ErrOperatorNotFound - 404
  - interfaces.ErrUnsupportedModuleType - 501
  - interfaces.ErrStoreUnavailable - 503
  - anything else - 500

Error bodies are api.ErrorResponse. A registry that has not synced yet is not
an error: handlers answer 200 with a null meta.

# Routes

	GET  /v1/keys?used=&operatorIndex=
	GET  /v1/keys/{pubkey}
	POST /v1/keys/find
	GET  /v1/operators
	GET  /v1/modules
	GET  /v1/modules/{module_id}
	GET  /v1/modules/{module_id}/operators
	GET  /v1/modules/{module_id}/operators/{operator_id}
	GET  /v1/modules/{module_id}/operators/keys?used=&operatorIndex=
	GET  /v1/status

module_id is either the numeric module id or the staking module contract address.
*/
package handlers
