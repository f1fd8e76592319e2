// Package key defines the canonical set of configuration identifiers used for centralized settings management.
package key

// HTTP Command Surface - these keys configure the control server consumed by the presentation layer.
const (
	ServerHost = "server.host"
	ServerPort = "server.port"
)

// Media Playback - these keys govern the external mpv process and its control socket.
const (
	PlayerSocket                 = "player.socket"
	PlayerVolume                 = "player.volume"
	PlayerPollIntervalMs         = "player.poll_interval_ms"
	PlayerMaxConsecutiveFailures = "player.max_consecutive_failures"
	PlayerRestartMaxAttempts     = "player.restart_max_attempts"
)

// Queue Behavior - these keys control ordering, retention and autoplay policy.
const (
	QueueRetainFinished = "queue.retain_finished"
	QueueAutoplay       = "queue.autoplay"
)

// Resolution Service - these keys configure the remote track-resolution client.
const (
	ResolverURL           = "resolver.url"
	ResolverTimeoutSec    = "resolver.timeout_sec"
	ResolverSearchLimit   = "resolver.search_limit"
	ResolverCacheTTLMin   = "resolver.cache_ttl_min"
	ResolverCacheCapacity = "resolver.cache_capacity"
)

// Search Interaction - these keys define search discovery behavior.
const (
	SearchShowQuerySuggestions = "search.show_query_suggestions"
)

// History Tracking - these keys configure the persistence of finished tracks.
const (
	HistorySaveOnFinish = "history.save_on_finish"
)

// Iconography - these keys manage the visual rendering of CLI symbols.
const (
	IconsVariant = "icons.variant"
)

// Logging Infrastructure - these keys manage the application's internal diagnostics and auditing system.
const (
	LogsWrite = "logs.write"
	LogsLevel = "logs.level"
	LogsJson  = "logs.json"
)

// CLI Execution Environment - these flags and settings govern non-server application behavior.
const (
	CliColored      = "cli.colored"
	CliVersionCheck = "cli.version_check"
)
