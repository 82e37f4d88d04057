// Package app wires config, logging, the task engine, the scheduler, the
// run journal and configured jobs into one long-running process, and keeps
// them in step with config file changes.
package app
