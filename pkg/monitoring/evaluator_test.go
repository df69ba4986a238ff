package monitoring

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatplane/internal/model"
	"chatplane/pkg/config"
)

type fakeRuleStore struct {
	rules   []*model.AlertRule
	touched map[string]time.Time
}

func (f *fakeRuleStore) ListEnabled(_ context.Context) ([]*model.AlertRule, error) {
	var out []*model.AlertRule
	for _, r := range f.rules {
		if r.Enabled {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeRuleStore) Touch(_ context.Context, ruleID string, at time.Time) error {
	if f.touched == nil {
		f.touched = make(map[string]time.Time)
	}
	f.touched[ruleID] = at
	for _, r := range f.rules {
		if r.ID == ruleID {
			t := at
			r.LastTriggeredAt = &t
		}
	}
	return nil
}

type fakeMetrics struct {
	snapshot *model.GlobalMetrics
}

func (f *fakeMetrics) Collect(_ context.Context) (*model.GlobalMetrics, error) {
	return f.snapshot, nil
}

type fakeNotifier struct {
	published []*model.Event
}

func (f *fakeNotifier) Publish(_ context.Context, event *model.Event) (string, error) {
	f.published = append(f.published, event)
	return "evt-1", nil
}

func newEvaluatorFixture(metrics *model.GlobalMetrics, rules ...*model.AlertRule) (*Evaluator, *fakeRuleStore, *fakeNotifier) {
	cfg := &config.Config{}
	cfg.ApplyDefaults()
	cfg.Alerting.Enabled = true

	store := &fakeRuleStore{rules: rules}
	notifier := &fakeNotifier{}
	return NewEvaluator(cfg, store, &fakeMetrics{snapshot: metrics}, notifier), store, notifier
}

func queueDepthRule() *model.AlertRule {
	return &model.AlertRule{
		ID:              "r1",
		Name:            "queue backlog",
		MetricPath:      "queue_depth",
		Operator:        model.OpGreaterThan,
		Threshold:       100,
		Actions:         []string{"notify", "log"},
		Severity:        model.SeverityWarning,
		CooldownSeconds: 300,
		Enabled:         true,
	}
}

func TestEvaluateOnce_FiresAndNotifies(t *testing.T) {
	ev, store, notifier := newEvaluatorFixture(
		&model.GlobalMetrics{QueueDepth: 250},
		queueDepthRule(),
	)

	fired, err := ev.EvaluateOnce(context.Background())
	require.NoError(t, err)

	require.Len(t, fired, 1)
	assert.Equal(t, "r1", fired[0].RuleID)
	assert.InDelta(t, 250.0, fired[0].Value, 0.001)

	require.Len(t, notifier.published, 1)
	evt := notifier.published[0]
	assert.Equal(t, model.EventSystemNotification, evt.Kind)
	assert.Equal(t, "system", evt.TenantID)
	assert.Equal(t, "queue backlog", evt.Payload["alert"])

	assert.Contains(t, store.touched, "r1")
}

func TestEvaluateOnce_CooldownSuppressesRefire(t *testing.T) {
	ev, _, notifier := newEvaluatorFixture(
		&model.GlobalMetrics{QueueDepth: 250},
		queueDepthRule(),
	)

	fired, err := ev.EvaluateOnce(context.Background())
	require.NoError(t, err)
	require.Len(t, fired, 1)

	fired, err = ev.EvaluateOnce(context.Background())
	require.NoError(t, err)
	assert.Empty(t, fired, "rule in cooldown must not refire")
	assert.Len(t, notifier.published, 1)
}

func TestEvaluateOnce_ThresholdNotCrossed(t *testing.T) {
	ev, store, notifier := newEvaluatorFixture(
		&model.GlobalMetrics{QueueDepth: 10},
		queueDepthRule(),
	)

	fired, err := ev.EvaluateOnce(context.Background())
	require.NoError(t, err)
	assert.Empty(t, fired)
	assert.Empty(t, notifier.published)
	assert.Empty(t, store.touched)
}

func TestEvaluateOnce_LowCostEfficiencyRule(t *testing.T) {
	rule := &model.AlertRule{
		ID:         "r2",
		Name:       "cost efficiency collapsed",
		MetricPath: "cost_efficiency",
		Operator:   model.OpLessThan,
		Threshold:  0.5,
		Actions:    []string{"notify"},
		Severity:   model.SeverityCritical,
		Enabled:    true,
	}
	ev, _, notifier := newEvaluatorFixture(&model.GlobalMetrics{CostEfficiency: 0.2}, rule)

	fired, err := ev.EvaluateOnce(context.Background())
	require.NoError(t, err)
	require.Len(t, fired, 1)
	assert.Equal(t, model.SeverityCritical, fired[0].Severity)
	assert.Len(t, notifier.published, 1)
}

func TestEvaluateOnce_UnknownMetricSkipped(t *testing.T) {
	rule := queueDepthRule()
	rule.MetricPath = "no_such_metric"
	ev, _, notifier := newEvaluatorFixture(&model.GlobalMetrics{QueueDepth: 250}, rule)

	fired, err := ev.EvaluateOnce(context.Background())
	require.NoError(t, err)
	assert.Empty(t, fired)
	assert.Empty(t, notifier.published)
}

func TestEvaluateOnce_DisabledRulesIgnored(t *testing.T) {
	rule := queueDepthRule()
	rule.Enabled = false
	ev, _, _ := newEvaluatorFixture(&model.GlobalMetrics{QueueDepth: 250}, rule)

	fired, err := ev.EvaluateOnce(context.Background())
	require.NoError(t, err)
	assert.Empty(t, fired)
}

func TestResolveMetric_LaneDepth(t *testing.T) {
	m := &model.GlobalMetrics{
		QueueDepth:       42,
		QueueDepthByLane: map[string]int{"high": 30, "low": 12},
	}

	v, ok := resolveMetric(m, "queue_depth.high")
	require.True(t, ok)
	assert.InDelta(t, 30.0, v, 0.001)

	_, ok = resolveMetric(m, "queue_depth.missing")
	assert.False(t, ok)
}

func TestRecent_NewestFirstAndCapped(t *testing.T) {
	ev, _, _ := newEvaluatorFixture(&model.GlobalMetrics{})
	for i := 0; i < recentAlertCap+10; i++ {
		ev.remember(Alert{RuleID: "r", Value: float64(i)})
	}

	recent := ev.Recent()
	require.Len(t, recent, recentAlertCap)
	assert.InDelta(t, float64(recentAlertCap+9), recent[0].Value, 0.001)
}
