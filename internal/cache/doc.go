// Package cache implements the TTL-based local cache that mirrors slow-moving
// platform data on disk. Every artefact lives under <root>/<category>/<name>
// and is tracked by a central index.json (key -> cached_at/ttl_days/path) plus
// an informational .meta.json per directory. Payloads are written through a
// temp file + rename so readers never observe a partially-written file; the
// index and meta files use the same discipline but are not updated jointly.
// Expired entries stay on disk and are simply reported as misses until they
// are overwritten or explicitly invalidated.
package cache
