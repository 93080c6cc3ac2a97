package netconn

import (
	"fmt"
	"io"

	"github.com/VictoriaMetrics/metrics"
)

// registry holds the counters of every Connection in the process.
var registry = metrics.NewSet()

// connMetrics are the counters of one endpoint. Connections to the same
// endpoint share them.
type connMetrics struct {
	connects      *metrics.Counter
	connectErrors *metrics.Counter
	reconnects    *metrics.Counter
	bytesWritten  *metrics.Counter
	bytesRead     *metrics.Counter
	readErrors    *metrics.Counter
}

func newConnMetrics(endpoint string) *connMetrics {
	counter := func(name string) *metrics.Counter {
		return registry.GetOrCreateCounter(fmt.Sprintf("netconn_%s_total{endpoint=%q}", name, endpoint))
	}

	return &connMetrics{
		connects:      counter("connects"),
		connectErrors: counter("connect_errors"),
		reconnects:    counter("reconnects"),
		bytesWritten:  counter("bytes_written"),
		bytesRead:     counter("bytes_read"),
		readErrors:    counter("read_errors"),
	}
}

// WriteMetrics writes the connection counters of all endpoints to w in
// Prometheus text format.
func WriteMetrics(w io.Writer) {
	registry.WritePrometheus(w)
}
