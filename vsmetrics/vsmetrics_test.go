package vsmetrics_test

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
	"github.com/vsdb/vsengine/vsmetrics"
)

func TestNoopCollectorDiscardsEverything(t *testing.T) {
	var c vsmetrics.Collector = vsmetrics.NoopCollector{}
	c.RecordSearch(vsmetrics.PlanInline, 10, time.Millisecond, nil)
	c.RecordMutation(time.Millisecond, errors.New("boom"))
	c.RecordCoalesce()
	c.RecordBackfill(5, time.Second, nil)
	c.RecordFanout(3, 1, time.Millisecond)
}

func TestPlanKindString(t *testing.T) {
	require.Equal(t, "inline", vsmetrics.PlanInline.String())
	require.Equal(t, "pre_filter", vsmetrics.PlanPreFilter.String())
}

func TestPrometheusCollectorRecordsSearch(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := vsmetrics.NewPrometheusCollector(reg)

	c.RecordSearch(vsmetrics.PlanPreFilter, 7, 5*time.Millisecond, nil)

	families, err := reg.Gather()
	require.NoError(t, err)

	var found bool
	for _, f := range families {
		if f.GetName() == "vsengine_search_total" {
			found = true
			var m *dto.Metric
			for _, metric := range f.GetMetric() {
				m = metric
			}
			require.NotNil(t, m)
			require.Equal(t, float64(1), m.GetCounter().GetValue())
		}
	}
	require.True(t, found, "expected vsengine_search_total to be registered")
}
