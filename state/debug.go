package state

var (
	DBG_debug = false // serve expvar, metrics and pprof on DebugAddr
	DBG_trace = false // write a runtime trace to trace.out
	DebugAddr = "127.0.0.1:6060"
)
