package metrics

import (
	"net/http"
	"sort"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// Handler serves the current metrics in Prometheus text exposition format.
func (m *Metrics) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		text, err := m.Render(r)
		if err != nil {
			http.Error(w, "metrics collection failed", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		_, _ = w.Write([]byte(text))
	})
}

// Render collects from the reader and formats the result.
func (m *Metrics) Render(r *http.Request) (string, error) {
	var rm metricdata.ResourceMetrics
	if err := m.reader.Collect(r.Context(), &rm); err != nil {
		return "", err
	}

	var b strings.Builder
	for _, sm := range rm.ScopeMetrics {
		for _, md := range sm.Metrics {
			switch data := md.Data.(type) {
			case metricdata.Sum[int64]:
				writeSum(&b, md.Name, md.Description, data)
			case metricdata.Histogram[float64]:
				writeHistogram(&b, md.Name, md.Description, data)
			}
		}
	}
	return b.String(), nil
}

func writeHeader(b *strings.Builder, name, help, kind string) {
	b.WriteString("# HELP ")
	b.WriteString(name)
	b.WriteByte(' ')
	b.WriteString(escapeHelp(help))
	b.WriteByte('\n')
	b.WriteString("# TYPE ")
	b.WriteString(name)
	b.WriteByte(' ')
	b.WriteString(kind)
	b.WriteByte('\n')
}

func writeSum(b *strings.Builder, name, help string, data metricdata.Sum[int64]) {
	kind := "gauge"
	if data.IsMonotonic {
		kind = "counter"
	}
	writeHeader(b, name, help, kind)

	lines := make([]string, 0, len(data.DataPoints))
	for _, dp := range data.DataPoints {
		lines = append(lines, name+labels(dp.Attributes, "", "")+" "+strconv.FormatInt(dp.Value, 10))
	}
	sort.Strings(lines)
	for _, l := range lines {
		b.WriteString(l)
		b.WriteByte('\n')
	}
}

func writeHistogram(b *strings.Builder, name, help string, data metricdata.Histogram[float64]) {
	writeHeader(b, name, help, "histogram")

	dps := append([]metricdata.HistogramDataPoint[float64](nil), data.DataPoints...)
	sort.Slice(dps, func(i, j int) bool {
		return dps[i].Attributes.Encoded(attribute.DefaultEncoder()) < dps[j].Attributes.Encoded(attribute.DefaultEncoder())
	})

	for _, dp := range dps {
		var cumulative uint64
		for i, bound := range dp.Bounds {
			cumulative += dp.BucketCounts[i]
			b.WriteString(name + "_bucket" + labels(dp.Attributes, "le", formatFloat(bound)) + " " + strconv.FormatUint(cumulative, 10) + "\n")
		}
		b.WriteString(name + "_bucket" + labels(dp.Attributes, "le", "+Inf") + " " + strconv.FormatUint(dp.Count, 10) + "\n")
		b.WriteString(name + "_sum" + labels(dp.Attributes, "", "") + " " + formatFloat(dp.Sum) + "\n")
		b.WriteString(name + "_count" + labels(dp.Attributes, "", "") + " " + strconv.FormatUint(dp.Count, 10) + "\n")
	}
}

// labels renders the attribute set, plus an optional extra pair, as
// {k="v",...}. Empty sets render as "".
func labels(set attribute.Set, extraKey, extraValue string) string {
	parts := make([]string, 0, set.Len()+1)
	iter := set.Iter()
	for iter.Next() {
		kv := iter.Attribute()
		parts = append(parts, string(kv.Key)+`="`+escapeLabel(kv.Value.Emit())+`"`)
	}
	if extraKey != "" {
		parts = append(parts, extraKey+`="`+extraValue+`"`)
	}
	if len(parts) == 0 {
		return ""
	}
	return "{" + strings.Join(parts, ",") + "}"
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func escapeHelp(help string) string {
	help = strings.ReplaceAll(help, "\\", "\\\\")
	help = strings.ReplaceAll(help, "\n", "\\n")
	return help
}

func escapeLabel(v string) string {
	v = strings.ReplaceAll(v, "\\", "\\\\")
	v = strings.ReplaceAll(v, "\"", "\\\"")
	v = strings.ReplaceAll(v, "\n", "\\n")
	return v
}
