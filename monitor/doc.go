// Package monitor provides queue visibility: aggregate status counts,
// per-type backlog summaries, and recent dead-letter inspection.
//
// [Service] answers point-in-time questions against the task store.
// [MetricsHook] is a lifecycle hook that records system-wide OTel
// counters for enqueue, completion, retry, dead-letter, and reaper
// events; register it on the engine to feed dashboards and alerting.
package monitor
