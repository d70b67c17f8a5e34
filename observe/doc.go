// Package observe provides logging, metrics and tracing for the gateway and
// the tool server.
//
// Logging is structured JSON on zap with automatic redaction of credential
// fields. Metrics and traces go through OpenTelemetry with the exporters in
// the exporters subpackage. Middleware instruments HTTP handlers and tool
// calls; RequestID binds a request id that every log entry carries.
package observe
