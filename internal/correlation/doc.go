// Package correlation computes self and power-pool correlation of a
// candidate return series against the local baseline, producing results in
// the same shape the platform's correlation endpoint returns.
package correlation
