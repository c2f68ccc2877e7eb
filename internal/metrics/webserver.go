package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var webserverRequests = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "devbooster",
	Subsystem: "webserver",
	Name:      "requests_total",
	Help:      "Requests logged by the web server, by status class",
}, []string{"class"})

// RecordRequest counts one logged request. class is "2xx", "3xx", "4xx" or "5xx".
func RecordRequest(class string) {
	webserverRequests.WithLabelValues(class).Inc()
}
