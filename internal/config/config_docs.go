package config

// ///////////////////////////////////////////////
// Documentation Types
// ///////////////////////////////////////////////

// FieldDoc holds documentation and alternative examples for a single config field.
// The genconfig tool uses [FieldDoc] values to annotate the generated config.default.toml.
type FieldDoc struct {
	// Comment is shown as a header comment above the field in the example config.
	Comment string

	// Alternatives are shown as commented-out lines below the active value.
	Alternatives []string
}

// ///////////////////////////////////////////////
// Field Documentation Map
// ///////////////////////////////////////////////

// ConfigDocs maps TOML field paths (dot-separated, e.g. "notify.email.smtp_host")
// to their [FieldDoc] entries. The genconfig tool uses this map to annotate the
// generated config.default.toml with inline comments and alternative examples.
var ConfigDocs = map[string]FieldDoc{
	// ── Root ──────────────────────────────────────────────────────
	"version": {
		Comment: "Config schema version, do not edit.",
	},

	// ── Identity ─────────────────────────────────────────────────
	"identity": {
		Comment: "Account to track. One daemon tracks one identity; run several daemons\nwith -identity to watch more than one.",
	},
	"identity.gamertag": {
		Comment: "Gamertag of the tracked player. Also names the per-identity state, log,\nPID, and CSV files in the data directory.",
	},
	"identity.xuid": {
		Comment: "Numeric Xbox user ID. Resolved from gamertag at startup when empty.",
		Alternatives: []string{
			`xuid = "2533274792693551"`,
		},
	},

	// ── API ──────────────────────────────────────────────────────
	"api.presence_url": {
		Comment: "Presence endpoint. {xuid} is replaced with the tracked XUID.",
	},
	"api.profile_url": {
		Comment: "Profile endpoint used to resolve the gamertag. {gamertag} is replaced.",
	},
	"api.authorization": {
		Comment: "Authorization header value (\"XBL3.0 x=<userhash>;<token>\").\nTokens expire; prefer token_file with an external refresher.",
		Alternatives: []string{
			`authorization = "XBL3.0 x=1234567890;eyJ..."`,
		},
	},
	"api.token_file": {
		Comment: "File holding the Authorization header value. Re-read before every poll.\nRelative paths are resolved against the data directory.",
		Alternatives: []string{
			`token_file = "xbl_token.txt"`,
		},
	},
	"api.timeout_seconds": {
		Comment: "Upper bound for one poll including retries. A timed out poll counts as\nan unknown snapshot for that cycle.",
	},
	"api.retry_max": {
		Comment: "Retries within one poll for connection errors and 5xx/429 responses.",
	},

	// ── Polling ──────────────────────────────────────────────────
	"polling.online_interval_seconds": {
		Comment: "Seconds between polls while the player is online or away, or while a\nshort offline interruption is being tolerated.",
	},
	"polling.offline_interval_seconds": {
		Comment: "Seconds between polls while the player is offline.",
	},
	"polling.interval_step_seconds": {
		Comment: "Step used by the interval adjustment signals\n(SIGTRAP/SIGABRT online, SIGTTIN/SIGTTOU offline).",
	},
	"polling.offline_interrupt_seconds": {
		Comment: "Offline gaps shorter than this keep the session open (console restarts,\nnetwork blips). The offline notification is sent once the window expires.\nMust be at least 1.",
	},

	// ── Presence ─────────────────────────────────────────────────
	"presence.aliases": {
		Comment: "Extra presence codes mapped to online, away, offline, or unknown.\nBuilt in: online, available, away, busy, idle, offline, \"appear offline\".",
		Alternatives: []string{
			`[presence.aliases]`,
			`"do not disturb" = "away"`,
		},
	},
	"presence.ignore_games": {
		Comment: "Titles treated as no game. Glob patterns supported.",
		Alternatives: []string{
			`ignore_games = ["Home", "Xbox App*", "Microsoft Store"]`,
		},
	},

	// ── Notify ───────────────────────────────────────────────────
	"notify": {
		Comment: "Notification toggles. Changes are picked up without a restart.\nSIGUSR1 flips presence, SIGUSR2 flips game, SIGCONT flips status,\nSIGVTALRM sends a test notification.",
	},
	"notify.presence": {
		Comment: "Notify when the player comes online or goes offline.",
	},
	"notify.game": {
		Comment: "Notify when the played game changes.",
	},
	"notify.status": {
		Comment: "Notify on every status change, including away. Implies presence.",
	},
	"notify.errors": {
		Comment: "Notify once when polling starts failing and once when it recovers.",
	},

	// ── Email ────────────────────────────────────────────────────
	"notify.email.enabled": {
		Comment: "Send notifications by email.",
	},
	"notify.email.smtp_host": {},
	"notify.email.smtp_port": {},
	"notify.email.smtp_user": {
		Comment: "Leave user empty to skip SMTP authentication.",
	},
	"notify.email.smtp_password": {},
	"notify.email.starttls": {
		Comment: "Upgrade the SMTP connection with STARTTLS.",
	},
	"notify.email.sender": {},
	"notify.email.receiver": {},
	"notify.email.timeout_seconds": {
		Comment: "Upper bound for one email delivery.",
	},

	// ── Webhook ──────────────────────────────────────────────────
	"notify.webhook.url": {
		Comment: "POST a JSON payload to this URL for every notification.",
		Alternatives: []string{
			`url = "https://hooks.example.com/presencewatch"`,
		},
	},
	"notify.webhook.timeout_seconds": {
		Comment: "Upper bound for one webhook delivery including retries.",
	},

	// ── MQTT ─────────────────────────────────────────────────────
	"notify.mqtt.broker": {
		Comment: "Publish notifications to an MQTT broker.",
		Alternatives: []string{
			`broker = "tcp://localhost:1883"`,
		},
	},
	"notify.mqtt.topic": {
		Comment: "Topic for notifications. {identity} is replaced with the identity slug.",
	},
	"notify.mqtt.client_id": {
		Comment: "Client ID. Defaults to presencewatch-<identity>.",
	},

	// ── Activity Log ─────────────────────────────────────────────
	"activity_log.enabled": {
		Comment: "Append one CSV row per status change.",
	},
	"activity_log.file": {
		Comment: "CSV path. Defaults to activity.<identity>.csv in the data directory.",
		Alternatives: []string{
			`file = "/var/log/presencewatch/activity.csv"`,
		},
	},

	// ── Log ──────────────────────────────────────────────────────
	"log": {
		Comment: "Logging configuration",
	},
	"log.level": {
		Comment: "Minimum log level. Options: \"trace\", \"debug\", \"info\", \"warn\", \"error\"",
		Alternatives: []string{
			`level = "debug"`,
			`level = "warn"`,
		},
	},
	"log.max_size_mb": {
		Comment: "Maximum log file size in megabytes before rotation.",
	},
	"log.enabled": {
		Comment: "Write the log file. When false only console output remains.",
	},
	"log.console": {
		Comment: "Also write log lines to stderr.",
	},
	"log.alive_interval_hours": {
		Comment: "Log an alive check line this often while the player is offline. 0 disables.",
	},

	// ── Metrics ──────────────────────────────────────────────────
	"metrics.listen": {
		Comment: "Serve Prometheus metrics on this address at /metrics.",
		Alternatives: []string{
			`listen = "127.0.0.1:9464"`,
		},
	},
}
