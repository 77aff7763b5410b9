// Package platform is the HTTP client for the remote research platform:
// session authentication, the submitted-entity roster, per-entity record
// sets, server-side correlation and the static catalogs (operators,
// datasets, simulation setting options).
package platform
