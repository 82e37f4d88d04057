// Package scheduler turns schedule strings into triggers.
//
// A schedule is a recurrence phrase ("every monday at 09:00"), a cron
// expression, or a fixed interval. The scheduler only decides when; each
// trigger is enqueued into the task engine, which owns execution.
package scheduler
