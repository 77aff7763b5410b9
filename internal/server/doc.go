// Package server hosts the Fiber HTTP surface of the hub: request ID and
// access-log middleware, JSON error mapping, and the /v1 tool routes that
// front the correlation checker and the catalog service. Diagnostics routes
// (/-/cache, /-/categories, /-/baseline, /metrics) live in the routes
// subpackage so the tool surface stays independent of cache internals.
package server
