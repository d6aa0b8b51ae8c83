package config

// ///////////////////////////////////////////////
// Documentation Types
// ///////////////////////////////////////////////

// FieldDoc holds documentation and alternative examples for a single config field.
// The genconfig tool uses [FieldDoc] values to annotate the generated podmpd.default.toml.
type FieldDoc struct {
	// Comment is shown as a header comment above the field in the example config.
	Comment string

	// Alternatives are shown as commented-out lines below the active value.
	Alternatives []string
}

// ///////////////////////////////////////////////
// Field Documentation Map
// ///////////////////////////////////////////////

// ConfigDocs maps TOML field paths (dot-separated, e.g. "daemon.port") to
// their [FieldDoc] entries.
var ConfigDocs = map[string]FieldDoc{
	"version": {
		Comment: "Config schema version, managed by podmpd. Do not edit.",
	},

	// ── Daemon ───────────────────────────────────────────────────
	"daemon.binary": {
		Comment: "Daemon executable. Started as `<binary> <module dir>/mpd.conf`.",
		Alternatives: []string{
			`binary = "/usr/local/bin/mpd"`,
		},
	},
	"daemon.ifconfig": {
		Comment: "Interface tool used to bring up lo at 127.0.0.1 before every start.",
	},
	"daemon.host": {
		Comment: "Control endpoint used when MPD_HOST / MPD_PORT are not set.\nMust match bind_to_address and port in mpd.conf.",
	},
	"daemon.port": {},
	"daemon.spawn_timeout_seconds": {
		Comment: "Upper bound on the launcher process. The daemon detaches on its own;\na launcher still running after this long is killed.",
	},
	"daemon.ready_timeout_seconds": {
		Comment: "How long to poll the control port after spawning before giving up.",
	},
	"daemon.ready_initial_backoff_ms": {
		Comment: "Readiness poll delay, doubled after each failed attempt up to ready_max_backoff_ms.",
	},
	"daemon.ready_max_backoff_ms": {},
	"daemon.reply_timeout_ms": {
		Comment: "How long a command waits for the first reply byte.\nNo bytes in this window counts as \"no reply\", not an error.",
	},
	"daemon.wait_for_pid_file": {
		Comment: "Wait for the daemon to write its pid file before polling the control port.",
	},

	// ── Log ──────────────────────────────────────────────────────
	"log.level": {
		Comment: "Controller log level",
		Alternatives: []string{
			`level = "trace"`,
			`level = "debug"`,
			`level = "warn"`,
		},
	},
	"log.max_size_mb": {
		Comment: "podmpd.log is rotated at this size; three old files are kept.",
	},

	// ── Library ──────────────────────────────────────────────────
	"library.auto_update": {
		Comment: "Watch the music directory and request a database update when files change.",
	},
	"library.patterns": {
		Comment: "Glob patterns (doublestar syntax) relative to the music directory.\nOnly matching files trigger an update.",
		Alternatives: []string{
			`patterns = ["**/*"]`,
		},
	},
	"library.debounce_seconds": {
		Comment: "Bursts of changes within this window produce a single update.",
	},

	// ── Streams ──────────────────────────────────────────────────
	"streams.probe_timeout_seconds": {
		Comment: "Timeout for one HTTP probe of a stream URL before it is queued.",
	},
	"streams.retry_max": {
		Comment: "Retries after a failed probe (connection errors and 5xx).",
	},
}
