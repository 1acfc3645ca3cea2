package auth

// Known OAuth scopes used by the risk service.
const (
	ScopeTelemetryWrite = "telemetry:write"
	ScopeQuotesRead     = "quotes:read"
	ScopeQuotesWrite    = "quotes:write"
	ScopeReservesRun    = "reserves:run"
)
