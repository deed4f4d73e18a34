/*
Package server exposes a tile cache over HTTP so the resident set can be steered
and inspected from outside the viewer process.

Configuration comes from a TOML file:

	[server]
	httpAddress = "localhost:8600"
	note = "any text returned by /api/server/info"

	[logging]
	logfile = "lvv.log"
	max_log_size = 500  # MB
	max_log_age = 30    # days
	level = "info"      # debug, info, warning, error, critical or silent

	[dataset]
	location = "data/brain"   # directory or bucket URL
	mask_id = 1

	[cache]
	workers = 4
	prefetch = true
	neighborhood = "sphere"   # or "stack"
	radius_um = 100
	retain_evicted = 256
	byte_cache_mb = 512

	[cors]
	domains = ["http://localhost:3000"]

Relative paths are taken relative to the TOML file.
*/
package server
