/*
Package observability provides the monitoring side of the workflow layer.

Recorder implements workflow.Observer: it counts task queries and submissions
in Prometheus and opens an OpenTelemetry span around every executor call.
LoggingHooks and Recorder.NodeHooks plug into the engine lifecycle hooks, and
MergeHooks combines several sets of hooks into one.
*/
package observability
