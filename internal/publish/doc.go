// Package publish pushes the alert branch to its remote with retries.
//
// Transient failures (network, remote hang-ups) are retried with exponential
// backoff. Rejections, authentication errors and unknown remotes are
// permanent and end the attempt loop at once. A failed publish is reported,
// never returned as a run error.
package publish
