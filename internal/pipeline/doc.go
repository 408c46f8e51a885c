// Package pipeline orchestrates one alertsync run:
//
//	lock → fetch → plan → prepare working copy → write (+ prune) → commit → publish
//
// Each run yields a Result whose Status drives the process exit code and is
// handed to every registered Observer (metrics, notifications, status API).
package pipeline
