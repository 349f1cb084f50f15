package api

import (
	"net/http"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"google.golang.org/protobuf/proto"

	"github.com/releasedeck/releasedeck/internal/monitor"
)

// metrics serves GET /metrics — a Prometheus text exposition of the current
// ledger and monitoring state, built fresh on every scrape.
func (h *Handler) metrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	families := h.collect()

	format := expfmt.NewFormat(expfmt.TypeTextPlain)
	w.Header().Set("Content-Type", string(format))
	enc := expfmt.NewEncoder(w, format)
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			return
		}
	}
}

func (h *Handler) collect() []*dto.MetricFamily {
	families := []*dto.MetricFamily{
		gauge("releasedeck_applications",
			"Number of tracked application versions.",
			metric(nil, float64(h.opts.Builds.Count()))),
		gauge("releasedeck_deferred_audits",
			"Quality audits waiting for completion against the analysis server.",
			metric(nil, float64(h.opts.Queue.Len()))),
	}

	records := h.opts.Monitors.List()
	byStatus := map[monitor.Status]int{}
	failureCounts := make([]*dto.Metric, 0, len(records))
	for _, m := range records {
		byStatus[m.Status]++
		failureCounts = append(failureCounts, metric(
			map[string]string{"service": m.ServiceID},
			float64(m.FailureCount)))
	}

	statusMetrics := make([]*dto.Metric, 0, len(byStatus))
	for _, status := range []monitor.Status{
		monitor.StatusSuccess, monitor.StatusFailure, monitor.StatusInvalidHTTPS,
		monitor.StatusInvalidConfiguration, monitor.StatusDisabled,
	} {
		statusMetrics = append(statusMetrics, metric(
			map[string]string{"status": string(status)},
			float64(byStatus[status])))
	}

	families = append(families,
		gauge("releasedeck_services",
			"Monitored services by availability status.",
			statusMetrics...),
	)
	if len(failureCounts) > 0 {
		families = append(families,
			gauge("releasedeck_service_failures",
				"Consecutive failed probes per service.",
				failureCounts...),
		)
	}
	if h.opts.ClientCount != nil {
		families = append(families,
			gauge("releasedeck_stream_clients",
				"Connected dashboard stream clients.",
				metric(nil, float64(h.opts.ClientCount()))),
		)
	}
	return families
}

func gauge(name, help string, metrics ...*dto.Metric) *dto.MetricFamily {
	return &dto.MetricFamily{
		Name:   proto.String(name),
		Help:   proto.String(help),
		Type:   dto.MetricType_GAUGE.Enum(),
		Metric: metrics,
	}
}

func metric(labels map[string]string, value float64) *dto.Metric {
	m := &dto.Metric{Gauge: &dto.Gauge{Value: proto.Float64(value)}}
	for k, v := range labels {
		m.Label = append(m.Label, &dto.LabelPair{
			Name:  proto.String(k),
			Value: proto.String(v),
		})
	}
	return m
}
