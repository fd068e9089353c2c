package di

import (
	"context"
	"path/filepath"
	"testing"

	"osscprep/internal/bank"
	"osscprep/internal/config"
	"osscprep/internal/models"
	"osscprep/internal/observability"
	"osscprep/internal/services"
	contextutils "osscprep/internal/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticClient string

func (c staticClient) Complete(context.Context, string, []models.ChatMessage, services.Params) (string, error) {
	return string(c), nil
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.ApplyDefaults()
	return cfg
}

func testLogger() *observability.Logger {
	return observability.NewLogger(&config.OpenTelemetryConfig{})
}

func TestServiceContainer_InitializeWithDefaults(t *testing.T) {
	sc := NewServiceContainer(testConfig(), testLogger())
	require.NoError(t, sc.Initialize(context.Background()))
	defer func() { assert.NoError(t, sc.Shutdown(context.Background())) }()

	sourcing, err := sc.GetSourcingService()
	require.NoError(t, err)
	assert.False(t, sourcing.AIAvailable())

	_, err = sc.GetExamService()
	require.NoError(t, err)
	_, err = sc.GetTutorService()
	require.NoError(t, err)

	assert.NotNil(t, sc.GetResolver())
	assert.NotNil(t, sc.GetMetrics())
	assert.Nil(t, sc.GetDatabase())

	got := sourcing.GetQuestions(context.Background(), models.SourcingRequest{SubjectID: "ri-quantitative", SyllabusTopic: "ri-quant-time-distance", Count: 5})
	assert.Len(t, got, 5)
}

func TestServiceContainer_InjectedClient(t *testing.T) {
	metrics := observability.NewSourcingMetrics()
	sc := NewServiceContainer(testConfig(), testLogger(),
		WithCompletionClient(staticClient("a reply that is comfortably long enough")),
		WithMetrics(metrics),
	)
	require.NoError(t, sc.Initialize(context.Background()))
	defer func() { _ = sc.Shutdown(context.Background()) }()

	sourcing, err := sc.GetSourcingService()
	require.NoError(t, err)
	assert.True(t, sourcing.AIAvailable())
	assert.Same(t, metrics, sc.GetMetrics())

	racer, err := GetServiceAs[*services.ModelRacer](sc, "racer")
	require.NoError(t, err)
	assert.Equal(t, config.DefaultOpenRouterModels, racer.Models())
}

func TestServiceContainer_GetServiceErrors(t *testing.T) {
	sc := NewServiceContainer(testConfig(), testLogger())

	_, err := sc.GetService("sourcing")
	assert.Error(t, err, "nothing is registered before Initialize")

	sc.services["sourcing"] = "not a service"
	_, err = sc.GetSourcingService()
	assert.Error(t, err)
}

func TestServiceContainer_InitializeFailures(t *testing.T) {
	t.Run("bad redis url", func(t *testing.T) {
		cfg := testConfig()
		cfg.Redis.URL = "http://not-redis"
		err := NewServiceContainer(cfg, testLogger()).Initialize(context.Background())
		require.Error(t, err)
		assert.True(t, contextutils.IsError(err, contextutils.ErrCacheUnavailable))
	})

	t.Run("missing corpus", func(t *testing.T) {
		cfg := testConfig()
		cfg.Bank.CorpusPath = filepath.Join(t.TempDir(), "missing.json")
		err := NewServiceContainer(cfg, testLogger()).Initialize(context.Background())
		require.Error(t, err)
		assert.True(t, contextutils.IsError(err, contextutils.ErrInvalidInput))
	})
}

func TestServiceContainer_ShutdownOrder(t *testing.T) {
	sc := NewServiceContainer(testConfig(), testLogger())
	var order []int
	for i := 0; i < 3; i++ {
		sc.shutdownFuncs = append(sc.shutdownFuncs, func(context.Context) error {
			order = append(order, i)
			return nil
		})
	}
	require.NoError(t, sc.Shutdown(context.Background()))
	assert.Equal(t, []int{2, 1, 0}, order)
	require.NoError(t, sc.Shutdown(context.Background()), "second shutdown is a no-op")
	assert.Len(t, order, 3)
}

func TestServiceContainer_ExtraCorpora(t *testing.T) {
	dir := t.TempDir()
	generated := filepath.Join(dir, "generated.json")
	require.NoError(t, bank.SaveCorpus(generated, []*models.Question{{
		ID:           "ai_extra_1",
		QuestionText: "Which district of Odisha is home to Chilika?",
		Options:      []string{"Puri", "Cuttack", "Balasore", "Koraput"},
		Subject:      "Odisha GK",
		Topic:        "Geography",
		Difficulty:   models.DifficultyEasy,
		Language:     models.LanguageEnglish,
	}}))

	cfg := testConfig()
	cfg.Bank.ExtraPaths = []string{generated, filepath.Join(dir, "not-written-yet.json")}
	sc := NewServiceContainer(cfg, testLogger())
	require.NoError(t, sc.Initialize(context.Background()))
	defer func() { _ = sc.Shutdown(context.Background()) }()

	sourcing, err := sc.GetSourcingService()
	require.NoError(t, err)
	assert.Equal(t, 55, sourcing.GetStats(context.Background(), "").Total)
}
