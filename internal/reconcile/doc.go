// Package reconcile keeps the local clone of the alert repository on the
// target branch and records each run's output as a commit.
//
// A run calls AcquireLock, then Prepare (clone or reuse, select or create the
// branch, hard reset), writes its files, then Commit. Pushing is left to the
// publish package.
package reconcile
