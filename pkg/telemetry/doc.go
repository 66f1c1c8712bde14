// Package telemetry provides structured logging, Prometheus metrics, and
// OpenTelemetry tracing for the formgraph engine.
//
// The engine itself performs no I/O; Telemetry.Observer bridges its
// evaluation lifecycle callbacks (settlements, rollbacks, effect runs,
// variant remounts) to logs and metrics. Logging is zerolog with
// console or JSON output; metrics are served from a dedicated registry
// over HTTP; tracing exports to stdout or stays in-process.
package telemetry
