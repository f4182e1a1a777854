package perf

import (
	"expvar"
	"net/http"

	"github.com/encodeous/metric"
)

var (
	DispatchLatency = metric.NewHistogram("1m1s")
	SentMessages    = metric.NewCounter("10s1s")
	RecvMessages    = metric.NewCounter("10s1s")
	FailedSends     = metric.NewCounter("1m1s")
	LsaAccepted     = metric.NewCounter("1m1s")
	LsaStale        = metric.NewCounter("1m1s")
	SpfRuns         = metric.NewCounter("1m1s")
)

func init() {
	http.Handle("/debug/metrics", metric.Handler(metric.Exposed))
	expvar.Publish("sospf:SentMessages/s", SentMessages)
	expvar.Publish("sospf:RecvMessages/s", RecvMessages)
	expvar.Publish("sospf:FailedSends", FailedSends)
	expvar.Publish("sospf:LsaAccepted", LsaAccepted)
	expvar.Publish("sospf:LsaStale", LsaStale)
	expvar.Publish("sospf:SpfRuns", SpfRuns)
	expvar.Publish("sospf:DispatchLatency (µs)", DispatchLatency)
}
