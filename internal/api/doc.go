// Package api exposes the registered tools over HTTP: synchronous
// invocation, asynchronous jobs backed by internal/task, health and metrics.
package api
