package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BTreeMap/LeadPipe/internal/models"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, DefaultAPIAddr, cfg.Server.Addr)
	assert.Equal(t, DefaultDeliveryLatency, cfg.Automation.DeliveryLatency)
	assert.Equal(t, "leadpipe", filepath.Base(cfg.StateDir))
	assert.NoError(t, cfg.Validate())
}

func TestLoad_FileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "leadpipe.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
state_dir: /tmp/leadpipe-test
server:
  addr: ":9000"
automation:
  delivery_latency: 5s
  sweep_schedule: "*/5 * * * *"
`), 0o644))

	t.Setenv("API_ADDR", ":9100")
	t.Setenv("LEADPIPE_DURABLE_JOBS", "true")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/leadpipe-test", cfg.StateDir)
	assert.Equal(t, ":9100", cfg.Server.Addr, "env wins over file")
	assert.Equal(t, 5*time.Second, cfg.Automation.DeliveryLatency)
	assert.Equal(t, "*/5 * * * *", cfg.Automation.SweepSchedule)
	assert.True(t, cfg.Storage.DurableJobs)
	assert.Equal(t, DefaultCompanyFallback, cfg.Automation.CompanyFallback)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("automation:\n  delivery_latency: -1s\n"), 0o644))
	_, err = Load(path)
	assert.ErrorContains(t, err, "delivery_latency")
}

func TestStoreDSN(t *testing.T) {
	cfg := Default()
	cfg.StateDir = "/data"
	assert.Equal(t, "/data/leadpipe.db", cfg.StoreDSN())
	cfg.Storage.DatabaseURL = "memory"
	assert.Equal(t, "", cfg.StoreDSN())
	cfg.Storage.DatabaseURL = "postgres://u@localhost/db"
	assert.Equal(t, "postgres://u@localhost/db", cfg.StoreDSN())
}

func TestDefaultSeed(t *testing.T) {
	seed, err := DefaultSeed()
	require.NoError(t, err)

	require.Len(t, seed.Pipelines, 1)
	p := seed.Pipelines[0]
	assert.True(t, p.IsDefault)
	assert.Len(t, p.Stages, 5)
	assert.NoError(t, p.Validate())

	require.Len(t, seed.CustomFields, 3)
	for _, f := range seed.CustomFields {
		assert.NoError(t, f.Validate(), f.Name)
	}

	require.NotEmpty(t, seed.Agents)
	byID := map[string]models.AIAgent{}
	for _, a := range seed.Agents {
		assert.NoError(t, a.Validate(), a.Name)
		byID[a.ID] = a
	}
	stage := byID["agent-qualificacao"].Triggers[0]
	assert.Equal(t, models.TriggerStageChange, stage.Type)
	assert.Equal(t, models.StageChangeConditions{PipelineID: "pipeline-vendas", ToStageID: "stage-qualificado"}, stage.Conditions)
	assert.Equal(t, 5*time.Minute, stage.Delay())

	tb, ok := byID["agent-followup"].Triggers[0].Conditions.(models.TimeBasedConditions)
	require.True(t, ok)
	assert.Equal(t, 72*time.Hour, tb.Threshold())
	require.NotNil(t, tb.NoResponse)
	assert.True(t, *tb.NoResponse)

	assert.Equal(t, models.CustomConditions{"reply": true}, byID["agent-resposta"].Triggers[0].Conditions)
}

func TestParseSeed_InvalidTrigger(t *testing.T) {
	_, err := ParseSeed([]byte("agents:\n  - id: a\n    name: A\n    triggers:\n      - type: sometimes\n"))
	assert.ErrorIs(t, err, models.ErrInvalidTriggerType)
}
