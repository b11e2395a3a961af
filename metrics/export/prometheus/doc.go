// Package prometheus renders core metrics in Prometheus text exposition format.
//
// [NewPrometheusExporter] accepts a [stepauth.Core] and exposes an [http.Handler]
// that renders every counter and histogram. Counter names are prefixed
// stepauth_*_total; the single histogram is stepauth_login_latency_seconds.
//
// # What this package must NOT do
//
//   - Register metrics in a global Prometheus registry; callers mount the Handler.
//   - Mutate core state.
package prometheus
