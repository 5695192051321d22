package workspace

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaquev01/Bravvo-Binder-sub001/pkg/eventlog"
	"github.com/vaquev01/Bravvo-Binder-sub001/pkg/generator"
	"github.com/vaquev01/Bravvo-Binder-sub001/pkg/governance"
	"github.com/vaquev01/Bravvo-Binder-sub001/pkg/orchestrator"
	"github.com/vaquev01/Bravvo-Binder-sub001/pkg/planning"
	"github.com/vaquev01/Bravvo-Binder-sub001/pkg/weights"
)

var now = time.Date(2024, 6, 10, 9, 0, 0, 0, time.UTC)

func fixtures() *generator.FixtureGenerator {
	return generator.NewFixtureGenerator().
		Set(generator.TemplateVaultAnalysis, map[string]any{"summary": "ok", "score": 75}).
		Set(generator.TemplateGapDetection, map[string]any{"gaps": []any{}}).
		Set(generator.TemplateCommandCenter, map[string]any{
			"kpis":     []any{map[string]any{"metric": "revenue", "target": 100}},
			"roadmap":  []any{map[string]any{"title": "campanha"}},
			"calendar": []any{},
		})
}

func newService(t *testing.T, gen generator.Generator) *Service {
	t.Helper()
	clock := func() time.Time { return now }
	reg := NewRegistry(NewFactory(IsolatedMemoryStores(), gen, orchestrator.WithClock(clock)), nil)
	t.Cleanup(reg.Close)
	return NewService(reg, WithServiceClock(clock))
}

func completeVaults(t *testing.T, svc *Service, ws string) {
	t.Helper()
	for _, v := range []string{"brand", "offer", "audience"} {
		env := svc.MarkVaultComplete(context.Background(), ws, v, planning.Content{"k": v}, eventlog.Metadata{})
		require.True(t, env.Success, "%s: %+v", v, env.Error)
	}
}

func TestRegistry_ValidatesAndCaches(t *testing.T) {
	reg := NewRegistry(NewFactory(IsolatedMemoryStores(), fixtures()), nil)
	defer reg.Close()
	ctx := context.Background()

	_, err := reg.Get(ctx, "")
	require.ErrorIs(t, err, ErrInvalidWorkspace)
	_, err = reg.Get(ctx, "../etc")
	require.ErrorIs(t, err, ErrInvalidWorkspace)

	a, err := reg.Get(ctx, "loja-a")
	require.NoError(t, err)
	again, err := reg.Get(ctx, "loja-a")
	require.NoError(t, err)
	assert.Same(t, a, again)
	assert.Equal(t, "loja-a", a.WorkspaceID())

	_, err = reg.Get(ctx, "loja-b")
	require.NoError(t, err)
	assert.Equal(t, []string{"loja-a", "loja-b"}, reg.IDs())
}

func TestFactory_ResumesFromSnapshot(t *testing.T) {
	store := eventlog.NewMemoryStore()
	ctx := context.Background()

	first := NewRegistry(NewFactory(SharedStore(store), fixtures()), nil)
	orch, err := first.Get(ctx, "loja")
	require.NoError(t, err)
	_, err = orch.MarkVaultComplete(ctx, "brand", planning.Content{"k": 1}, eventlog.Metadata{})
	require.NoError(t, err)
	first.Close()

	second := NewRegistry(NewFactory(SharedStore(store), fixtures()), nil)
	defer second.Close()
	orch, err = second.Get(ctx, "loja")
	require.NoError(t, err)
	state, err := orch.State()
	require.NoError(t, err)
	assert.Contains(t, state.VaultAnalyses, planning.VaultBrand)
}

func TestService_WorkspacesAreIsolated(t *testing.T) {
	svc := newService(t, fixtures())
	ctx := context.Background()
	completeVaults(t, svc, "loja-a")

	a := svc.GetState(ctx, "loja-a")
	require.True(t, a.Success)
	assert.Len(t, a.Data.(*planning.SystemState).VaultAnalyses, 3)

	b := svc.GetState(ctx, "loja-b")
	require.True(t, b.Success)
	assert.Empty(t, b.Data.(*planning.SystemState).VaultAnalyses)

	stats := svc.GetEventStats(ctx, "loja-b")
	require.True(t, stats.Success)
	assert.Zero(t, stats.Data.(eventlog.Stats).TotalEvents)
}

func TestService_SharedStoreIsolatesWorkspaces(t *testing.T) {
	shared := eventlog.NewMemoryStore()
	clock := func() time.Time { return now }
	reg := NewRegistry(NewFactory(SharedStore(shared), fixtures(), orchestrator.WithClock(clock)), nil)
	t.Cleanup(reg.Close)
	svc := NewService(reg, WithServiceClock(clock))
	ctx := context.Background()

	completeVaults(t, svc, "loja-a")

	stats := svc.GetEventStats(ctx, "loja-b")
	require.True(t, stats.Success, "%+v", stats.Error)
	assert.Zero(t, stats.Data.(eventlog.Stats).TotalEvents)

	for _, q := range []EventQuery{
		{Type: "vault.completed"},
		{EntityType: "vault", EntityID: "brand"},
	} {
		env := svc.GetEvents(ctx, "loja-b", q)
		require.True(t, env.Success, "%+v", env.Error)
		assert.Empty(t, env.Data.([]eventlog.Event), "%+v", q)
	}

	own := svc.GetEvents(ctx, "loja-a", EventQuery{Type: "vault.completed"})
	require.True(t, own.Success)
	events := own.Data.([]eventlog.Event)
	require.Len(t, events, 3)
	for _, e := range events {
		assert.Equal(t, "loja-a", e.Metadata.WorkspaceID)
	}

	a := svc.GetEventStats(ctx, "loja-a")
	require.True(t, a.Success)
	all, err := shared.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, all.TotalEvents, a.Data.(eventlog.Stats).TotalEvents)
}

func TestService_HappyPath(t *testing.T) {
	svc := newService(t, fixtures())
	ctx := context.Background()
	ws := "loja"
	completeVaults(t, svc, ws)

	env := svc.GenerateCommandCenter(ctx, ws, eventlog.Metadata{CorrelationID: "gen"})
	require.True(t, env.Success, "%+v", env.Error)
	assert.Equal(t, planning.StatusPendingReview, env.Data.(planning.CommandCenter).Status)

	require.True(t, svc.ApproveCommandCenter(ctx, ws, "joana", eventlog.Metadata{}).Success)
	require.True(t, svc.ActivateCommandCenter(ctx, ws, eventlog.Metadata{}).Success)

	env = svc.UpdateCommandCenter(ctx, ws, planning.CommandCenterEdit{KPITargets: map[string]float64{"revenue": 120}}, eventlog.Metadata{})
	require.True(t, env.Success, "%+v", env.Error)
	assert.Equal(t, "1.0.1", env.Data.(planning.CommandCenter).Version.String())

	env = svc.CompleteGovernanceCycle(ctx, ws, governance.Submission{
		PeriodEnd:   "2024-06-09",
		ClosedAt:    now,
		Responsible: "joana",
		KPIs:        []governance.KPIInput{{Metric: "revenue", Value: 150, Goal: 120}},
		Roadmap:     governance.RoadmapTally{Total: 1, Done: 1},
	}, eventlog.Metadata{})
	require.True(t, env.Success, "%+v", env.Error)

	env = svc.Recalibrate(ctx, ws, eventlog.Metadata{})
	require.True(t, env.Success, "%+v", env.Error)
	plan := env.Data.(planning.RecalibrationPlan)

	env = svc.ApplyRecalibration(ctx, ws, plan.ID, "joana", eventlog.Metadata{})
	require.True(t, env.Success, "%+v", env.Error)
	cc := env.Data.(planning.CommandCenter)
	assert.Equal(t, "1.1.0", cc.Version.String())
	revenue, _ := cc.KPI("revenue")
	assert.Equal(t, 132.0, revenue.Target)

	env = svc.GetEvents(ctx, ws, EventQuery{CorrelationID: "gen"})
	require.True(t, env.Success)
	assert.Len(t, env.Data.([]eventlog.Event), 2)

	env = svc.GetEvents(ctx, ws, EventQuery{Type: orchestrator.EventVaultAnalyzed, Limit: 2})
	require.True(t, env.Success)
	assert.Len(t, env.Data.([]eventlog.Event), 2)

	env = svc.GetEvents(ctx, ws, EventQuery{EntityType: "recalibration", EntityID: plan.ID})
	require.True(t, env.Success)
	assert.Len(t, env.Data.([]eventlog.Event), 2)
}

func TestService_Weights(t *testing.T) {
	svc := newService(t, fixtures())
	ctx := context.Background()

	env := svc.GetWeights(ctx, "loja")
	require.True(t, env.Success)
	view := env.Data.(WeightsView)
	assert.Equal(t, weights.Default, view.Current)
	assert.Contains(t, view.Presets, "balanced")

	env = svc.ApplyWeightsPreset(ctx, "loja", "seasonal", eventlog.Metadata{})
	require.True(t, env.Success)
	assert.Len(t, env.Data.(WeightsView).History, 1)

	v := 0.9
	env = svc.UpdateWeights(ctx, "loja", weights.Partial{Vaults: &v}, "teste", eventlog.Metadata{})
	require.False(t, env.Success)
	assert.Equal(t, CodeValidation, env.Error.Code)
	assert.Equal(t, "sum", env.Error.Details["field"])
}

func TestService_ErrorCodes(t *testing.T) {
	ctx := context.Background()
	meta := eventlog.Metadata{}

	t.Run("validation", func(t *testing.T) {
		svc := newService(t, fixtures())
		env := svc.MarkVaultComplete(ctx, "loja", "finance", planning.Content{"x": 1}, meta)
		assert.Equal(t, CodeValidation, env.Error.Code)
		assert.Equal(t, "vault_id", env.Error.Details["field"])
		assert.Equal(t, now, env.Error.Timestamp)

		env = svc.ApplyWeightsPreset(ctx, "loja", "nope", meta)
		assert.Equal(t, CodeValidation, env.Error.Code)

		env = svc.GetState(ctx, "bad id!")
		assert.Equal(t, CodeValidation, env.Error.Code)

		env = svc.GetEvents(ctx, "loja", EventQuery{Type: "x", CorrelationID: "y"})
		assert.Equal(t, CodeValidation, env.Error.Code)

		env = svc.CompleteGovernanceCycle(ctx, "loja", governance.Submission{}, meta)
		assert.Equal(t, CodeValidation, env.Error.Code)
		assert.Equal(t, "period_end", env.Error.Details["field"])
	})

	t.Run("gated", func(t *testing.T) {
		svc := newService(t, fixtures())
		require.True(t, svc.MarkVaultComplete(ctx, "loja", "brand", planning.Content{"x": 1}, meta).Success)
		env := svc.GenerateCommandCenter(ctx, "loja", meta)
		require.False(t, env.Success)
		assert.Equal(t, CodeGated, env.Error.Code)
		assert.NotEmpty(t, env.Error.Details["gaps"])
		assert.NotEmpty(t, env.Error.Details["questions"])
	})

	t.Run("collaborator", func(t *testing.T) {
		svc := newService(t, fixtures().Fail(generator.TemplateVaultAnalysis, errors.New("503")))
		env := svc.MarkVaultComplete(ctx, "loja", "brand", planning.Content{"x": 1}, meta)
		require.False(t, env.Success)
		assert.Equal(t, CodeCollaborator, env.Error.Code)
		assert.NotEmpty(t, env.Error.ExecutionID)
		assert.Equal(t, orchestrator.StepVaultAnalysis, env.Error.Details["step"])
	})

	t.Run("not found", func(t *testing.T) {
		svc := newService(t, fixtures())
		assert.Equal(t, CodeNotFound, svc.ApproveCommandCenter(ctx, "loja", "joana", meta).Error.Code)
		assert.Equal(t, CodeNotFound, svc.Recalibrate(ctx, "loja", meta).Error.Code)
		assert.Equal(t, CodeNotFound, svc.ApplyRecalibration(ctx, "loja", "plan-x", "joana", meta).Error.Code)
	})

	t.Run("invalid transition", func(t *testing.T) {
		svc := newService(t, fixtures())
		completeVaults(t, svc, "loja")
		require.True(t, svc.GenerateCommandCenter(ctx, "loja", meta).Success)
		assert.Equal(t, CodeInvalidTransition, svc.ActivateCommandCenter(ctx, "loja", meta).Error.Code)
	})
}

func TestService_RecoversPanics(t *testing.T) {
	reg := NewRegistry(func(context.Context, string) (*orchestrator.Orchestrator, error) {
		panic("factory exploded")
	}, nil)
	svc := NewService(reg, WithServiceClock(func() time.Time { return now }))

	env := svc.GetState(context.Background(), "loja")
	require.False(t, env.Success)
	assert.Equal(t, CodeInternal, env.Error.Code)
	assert.Equal(t, internalMessage, env.Error.Message)
	assert.NotContains(t, env.Error.Message, "exploded")
}
