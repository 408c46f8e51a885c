// Package inventory fetches the live route inventory of a Spring Boot service
// from its actuator mappings endpoint.
//
// Fetch is best-effort: connectivity failures and non-200 statuses are
// retried when transient (network, 429, 5xx) and then reported through
// Inventory.Err with an empty route list, so a run can still complete. Only a
// 200 response whose body does not have the mappings shape is an error
// (ErrMalformed).
//
// Authentication (mTLS, API key, bearer token, basic) is handled by the
// authRoundTripper in client.go.
package inventory
