package tracing

// Span attribute keys
const (
	AttrProcessID      = "process.id"
	AttrSessionID      = "session.id"
	AttrProjectPath    = "project.path"
	AttrTransport      = "claude.transport"
	AttrResumed        = "claude.resumed"
	AttrPermissionMode = "claude.permission_mode"
	AttrExecutablePath = "claude.executable_path"
	AttrErrorCode      = "error.code"
)

// Span names
const (
	SpanLaunch    = "claude.launch"
	SpanStop      = "claude.stop"
	SpanQueryOnce = "claude.query_once"
)

// Span event names
const (
	EventExecutableLocated = "executable.located"
	EventTranscriptChecked = "transcript.checked"
	EventProcessSpawned    = "process.spawned"
	EventProcessRegistered = "process.registered"
)
