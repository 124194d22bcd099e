package commands

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/conduit-lang/restdecl/internal/cli/ui"
)

// writeMetrics renders every sample gathered from g. Histograms show their
// sample count.
func writeMetrics(w io.Writer, g prometheus.Gatherer, noColor bool) error {
	families, err := g.Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}

	ui.Header(w, "Client metrics", noColor)
	t := ui.NewTable(w, noColor, "METRIC", "LABELS", "VALUE")
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			labels := make([]string, 0, len(m.GetLabel()))
			for _, l := range m.GetLabel() {
				labels = append(labels, l.GetName()+"="+l.GetValue())
			}

			name, value := mf.GetName(), 0.0
			switch {
			case m.GetCounter() != nil:
				value = m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				value = m.GetGauge().GetValue()
			case m.GetHistogram() != nil:
				name += "_count"
				value = float64(m.GetHistogram().GetSampleCount())
			default:
				continue
			}
			t.AddRow(name, strings.Join(labels, ","), strconv.FormatFloat(value, 'g', -1, 64))
		}
	}
	t.Render()
	return nil
}
