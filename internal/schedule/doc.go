// Package schedule triggers serve-mode runs on a cron schedule.
package schedule
