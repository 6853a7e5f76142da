/*
Package clients provides a Go client for the keys API.

KeysClient mirrors the routes served by api/handlers and decodes the same
envelopes. Non-2xx answers are returned as *APIError, which matches the
interfaces sentinel errors for 400, 501 and 503 under errors.Is.

# Example Usage

	client := clients.NewKeysClient("http://localhost:8080", 10*time.Second)

	keys, err := client.Keys(ctx, clients.KeyQuery{Used: &used})
	if err != nil {
	    return err
	}
	if keys.Meta == nil {
	    // registry not synced yet
	}
*/
package clients
