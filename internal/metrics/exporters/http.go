// Package exporters serves the audio metrics over HTTP and the event bus.
package exporters

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/smazurov/audionode/internal/logging"
)

// HTTPHandler returns the Prometheus scrape handler for the default
// registry. A collector that fails is logged and skipped so one bad
// gauge does not hide the rest.
func HTTPHandler() http.Handler {
	return promhttp.InstrumentMetricHandler(prometheus.DefaultRegisterer,
		promhttp.HandlerFor(prometheus.DefaultGatherer, promhttp.HandlerOpts{
			ErrorLog:      scrapeLogger{logger: logging.GetLogger("metrics")},
			ErrorHandling: promhttp.ContinueOnError,
		}))
}

// scrapeLogger adapts promhttp error output to the module logger.
type scrapeLogger struct {
	logger logging.Logger
}

func (l scrapeLogger) Println(v ...any) {
	l.logger.Warn("Metrics scrape error", "error", fmt.Sprint(v...))
}
