// Package returns holds daily return series, the date-joined frame built
// from many of them, the year-anchored trailing window and the Pearson
// correlation used by the correlation engine and the batch matrix.
package returns
