// Package tape defines the disk-backed tape store that maps a request's
// (path+query, method) pair onto TapePath/<path segments>/<METHOD> files.
// Each file holds one raw recording (see package recording). Writes go through
// a temp file + rename so readers never observe a partially written tape, and
// KeyLocker lets callers serialize the forward→record window per key.
// The proxy dispatcher depends on this package for every lookup; nothing is
// cached in memory between requests.
package tape
