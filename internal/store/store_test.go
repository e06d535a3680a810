package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rule-console/internal/logger"
	"rule-console/internal/metrics"
	"rule-console/internal/store"
	"rule-console/internal/store/storetest"
)

type staticStats struct {
	stats store.QueueStats
	calls int
}

func (s *staticStats) GetQueueStats(ctx context.Context) (*store.QueueStats, error) {
	s.calls++
	out := s.stats
	return &out, nil
}

func TestWithStatsSource(t *testing.T) {
	fake := storetest.NewFake(storetest.SampleRule("r1", "Contact form"))
	fake.SetQueueStats(store.QueueStats{Waiting: 1})
	src := &staticStats{stats: store.QueueStats{Waiting: 42, CollectedAt: time.Now()}}

	s := store.WithStatsSource(fake, src)

	stats, err := s.GetQueueStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(42), stats.Waiting)
	assert.Equal(t, 1, src.calls)
	assert.Equal(t, 0, fake.Calls(store.OpGetQueueStats))

	list, err := s.ListRules(context.Background(), store.Filter{}, store.Page{})
	require.NoError(t, err)
	assert.Equal(t, 1, list.Total)

	assert.Same(t, fake, store.WithStatsSource(fake, nil))
}

func TestInstrument(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := metrics.NewMetrics(reg)
	require.NoError(t, err)

	fake := storetest.NewFake(storetest.SampleRule("r1", "Contact form"))
	fake.FailNext(store.OpDeleteRule, &store.AuthorizationError{Op: store.OpDeleteRule})

	s := store.Instrument(fake, m, logger.NewNop())

	_, err = s.ListRules(context.Background(), store.Filter{}, store.Page{})
	require.NoError(t, err)
	assert.Error(t, s.DeleteRule(context.Background(), "r1"))

	families, err := reg.Gather()
	require.NoError(t, err)

	results := map[string]float64{}
	for _, mf := range families {
		if mf.GetName() != "rule_console_requests_total" {
			continue
		}
		for _, metric := range mf.GetMetric() {
			labels := map[string]string{}
			for _, l := range metric.GetLabel() {
				labels[l.GetName()] = l.GetValue()
			}
			results[labels["op"]+"/"+labels["result"]] = metric.GetCounter().GetValue()
		}
	}
	assert.Equal(t, float64(1), results["list/ok"])
	assert.Equal(t, float64(1), results["delete/authorization"])
}

func TestFakeListPaging(t *testing.T) {
	fake := storetest.NewFake(
		storetest.SampleRule("r1", "Contact form"),
		storetest.SampleRule("r2", "Job application"),
		storetest.SampleRule("r3", "Contact us page"),
	)

	list, err := fake.ListRules(context.Background(), store.Filter{Query: "contact"}, store.Page{Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, 2, list.Total)
	require.Len(t, list.Rules, 1)
	assert.Equal(t, "r1", list.Rules[0].ID)

	list, err = fake.ListRules(context.Background(), store.Filter{}, store.Page{Offset: 5})
	require.NoError(t, err)
	assert.Empty(t, list.Rules)
	assert.Equal(t, 3, list.Total)
}
