package services

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"osscprep/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitBatches(t *testing.T) {
	tests := []struct {
		total, size int
		want        []int
	}{
		{0, 20, nil},
		{5, 20, []int{5}},
		{20, 20, []int{20}},
		{45, 20, []int{20, 20, 5}},
		{25, 10, []int{10, 10, 5}},
		{7, 0, []int{7}},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d/%d", tt.total, tt.size), func(t *testing.T) {
			assert.Equal(t, tt.want, splitBatches(tt.total, tt.size))
		})
	}
}

var userCount = regexp.MustCompile(`^Generate (\d+) `)

// sizeTaggedGenerator answers with questions whose text records the size of
// the sub-batch that produced them. Sizes listed in fail get an error.
type sizeTaggedGenerator struct {
	mu    sync.Mutex
	sizes []int
	fail  map[int]bool
	delay map[int]time.Duration
}

func (g *sizeTaggedGenerator) Complete(ctx context.Context, _ string, messages []models.ChatMessage, _ Params) (string, error) {
	m := userCount.FindStringSubmatch(messages[1].Content)
	if m == nil {
		return "", fmt.Errorf("unexpected prompt %q", messages[1].Content)
	}
	n, _ := strconv.Atoi(m[1])

	g.mu.Lock()
	g.sizes = append(g.sizes, n)
	g.mu.Unlock()

	if d := g.delay[n]; d > 0 {
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if g.fail[n] {
		return "", statusError(500, "http://provider", []byte("boom"))
	}
	return aiQuestionsJSON(fmt.Sprintf("size%d", n), n), nil
}

func (g *sizeTaggedGenerator) Sizes() []int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]int(nil), g.sizes...)
}

func newBatchTestService(t *testing.T, client CompletionClient) (*QuestionSourcingService, *recordingSink) {
	t.Helper()
	s := &SourcingServiceTestSuite{}
	s.SetT(t)
	s.SetupTest()
	var racer *ModelRacer
	if client != nil {
		racer = s.aiRacer(client)
	}
	return s.newService(tsdCorpus(t, 3), racer), s.sink
}

func TestGenerateLarge_KeepsSubmissionOrder(t *testing.T) {
	gen := &sizeTaggedGenerator{delay: map[int]time.Duration{10: 20 * time.Millisecond}}
	svc, sink := newBatchTestService(t, gen)

	got := svc.Batch().GenerateLarge(context.Background(), models.SourcingRequest{SubjectID: "Quantitative Aptitude"}, 25, 10)

	require.Len(t, got, 25)
	for i, q := range got {
		want := "size10"
		if i >= 20 {
			want = "size5"
		}
		assert.True(t, strings.HasPrefix(q.QuestionText, want), "position %d: %s", i, q.QuestionText)
		assert.Equal(t, models.SourceAIGenerated, q.Source)
	}
	assert.ElementsMatch(t, []int{10, 10, 5}, gen.Sizes())

	events := sink.Events()
	require.Len(t, events, 1)
	assert.Equal(t, models.EventKindBatch, events[0].Kind)
	assert.Equal(t, 25, events[0].Requested)
	assert.Equal(t, 25, events[0].BySource[models.SourceAIGenerated])
}

func TestGenerateLarge_SubstitutesFailedBatch(t *testing.T) {
	gen := &sizeTaggedGenerator{fail: map[int]bool{5: true}}
	svc, _ := newBatchTestService(t, gen)

	got := svc.Batch().GenerateLarge(context.Background(), models.SourcingRequest{SubjectID: "Quantitative Aptitude"}, 25, 10)

	require.Len(t, got, 25)
	counts := models.CountBySource(got)
	assert.Equal(t, 20, counts[models.SourceAIGenerated])
	assert.Equal(t, 3, counts[models.SourceLocalBank])
	assert.Equal(t, 2, counts[models.SourceStaticFallback])

	seen := map[string]bool{}
	for _, q := range got {
		require.NoError(t, q.Validate())
		assert.False(t, seen[q.ID], q.ID)
		seen[q.ID] = true
	}
}

func TestGenerateLarge_WithoutAI(t *testing.T) {
	svc, _ := newBatchTestService(t, nil)

	got := svc.Batch().GenerateLarge(context.Background(), models.SourcingRequest{SubjectID: "Quantitative Aptitude"}, 150, 0)

	require.Len(t, got, 150)
	counts := models.CountBySource(got)
	assert.Equal(t, 3, counts[models.SourceLocalBank])
	assert.Equal(t, 147, counts[models.SourceStaticFallback])
	assert.Zero(t, counts[models.SourceAIGenerated])

	seen := map[string]bool{}
	for _, q := range got {
		assert.False(t, seen[q.ID], q.ID)
		seen[q.ID] = true
	}
}

func TestGenerateLarge_ZeroTarget(t *testing.T) {
	svc, sink := newBatchTestService(t, nil)
	assert.Empty(t, svc.Batch().GenerateLarge(context.Background(), models.SourcingRequest{}, 0, 10))
	assert.Empty(t, sink.Events())
}

func TestNewBatchGenerator_Defaults(t *testing.T) {
	g := newBatchGenerator(nil, 0, -time.Second)
	assert.Equal(t, 20, g.BatchSize())
	assert.Equal(t, time.Second, g.stagger)

	g = newBatchGenerator(nil, 5, 0)
	assert.Equal(t, 5, g.BatchSize())
	assert.Zero(t, g.stagger)
}
