package history

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robilabs/robi/internal/llm"
	"github.com/robilabs/robi/internal/storage/sqlite"
)

type stubLLM struct {
	summary string
	err     error
	prompts []string
}

func (s *stubLLM) Stream(ctx context.Context, req *llm.Request) (llm.Stream, error) {
	return nil, errors.New("not used")
}

func (s *stubLLM) Complete(ctx context.Context, req *llm.Request) (string, error) {
	if len(req.Messages) > 0 && len(req.Messages[0].Parts) > 0 {
		s.prompts = append(s.prompts, req.Messages[0].Parts[0].Text)
	}
	return s.summary, s.err
}

func newService(t *testing.T, provider llm.Provider) *Service {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return NewService(store, provider, 20, 6, nil)
}

func fill(t *testing.T, svc *Service, session string, n int) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < n; i++ {
		role := RoleUser
		if i%2 == 1 {
			role = RoleAssistant
		}
		require.NoError(t, svc.Add(ctx, session, role, "mensaje"))
	}
}

func TestCompactIfNeededBelowThresholdNoop(t *testing.T) {
	provider := &stubLLM{summary: "resumen"}
	svc := newService(t, provider)
	ctx := context.Background()

	fill(t, svc, "s1", 19)
	require.NoError(t, svc.CompactIfNeeded(ctx, "s1"))

	msgs, err := svc.Messages(ctx, "s1")
	require.NoError(t, err)
	assert.Len(t, msgs, 19)
	assert.Empty(t, provider.prompts)
}

func TestCompactIfNeededReplacesPrefix(t *testing.T) {
	provider := &stubLLM{summary: "hablaron de ajedrez y del tiempo"}
	svc := newService(t, provider)
	ctx := context.Background()

	fill(t, svc, "s1", 20)
	require.NoError(t, svc.CompactIfNeeded(ctx, "s1"))

	msgs, err := svc.Messages(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, msgs, 7)
	assert.Equal(t, RoleSystem, msgs[0].Role)
	assert.Equal(t, "hablaron de ajedrez y del tiempo", msgs[0].Content)
	assert.True(t, msgs[0].Compacted)
	for _, m := range msgs[1:] {
		assert.Equal(t, "mensaje", m.Content)
	}
}

func TestCompactIfNeededLLMFailureLeavesHistory(t *testing.T) {
	provider := &stubLLM{err: errors.New("backend down")}
	svc := newService(t, provider)
	ctx := context.Background()

	fill(t, svc, "s1", 20)
	require.NoError(t, svc.CompactIfNeeded(ctx, "s1"))

	msgs, err := svc.Messages(ctx, "s1")
	require.NoError(t, err)
	assert.Len(t, msgs, 20)
}

func TestCompactIfNeededEmptySummarySkips(t *testing.T) {
	provider := &stubLLM{summary: ""}
	svc := newService(t, provider)
	ctx := context.Background()

	fill(t, svc, "s1", 20)
	require.NoError(t, svc.CompactIfNeeded(ctx, "s1"))

	msgs, err := svc.Messages(ctx, "s1")
	require.NoError(t, err)
	assert.Len(t, msgs, 20)
}
