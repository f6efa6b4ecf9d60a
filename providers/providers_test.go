package providers

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"fold-orchestrator/config"
	"fold-orchestrator/core/models"
	"fold-orchestrator/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimulatedPredictorIsDeterministic(t *testing.T) {
	p := NewSimulatedPredictor()
	req := PredictRequest{JobName: "A_and_B", Mode: models.ModeMultimer, ModelName: "model_1_multimer_v3", Seed: 4}

	first, err := p.Predict(context.Background(), req)
	require.NoError(t, err)
	second, err := p.Predict(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	metric, score, err := models.ScoreFromPayload(first.Payload)
	require.NoError(t, err)
	assert.Equal(t, models.MetricIPTMPTM, metric)
	assert.True(t, score > 0 && score < 1)
	assert.NoError(t, storage.ValidatePDB(first.Structure))

	req.Seed = 5
	other, err := p.Predict(context.Background(), req)
	require.NoError(t, err)
	assert.NotEqual(t, first.Payload, other.Payload)
}

func TestSimulatedPredictorMonomer(t *testing.T) {
	resp, err := NewSimulatedPredictor().Predict(context.Background(), PredictRequest{JobName: "A", Mode: models.ModeMonomer, ModelName: "model_1"})
	require.NoError(t, err)

	metric, score, err := models.ScoreFromPayload(resp.Payload)
	require.NoError(t, err)
	assert.Equal(t, models.MetricPLDDT, metric)
	assert.True(t, score >= 50 && score <= 95)
}

func TestSimulatedPredictorHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewSimulatedPredictor().Predict(ctx, PredictRequest{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSimulatedRelaxer(t *testing.T) {
	r := NewSimulatedRelaxer()
	resp, err := r.Relax(context.Background(), RelaxRequest{SlotName: "s", Structure: models.Structure("ATOM  1\nEND\n")})
	require.NoError(t, err)
	assert.Contains(t, string(resp.Structure), "RELAXED")
	assert.NoError(t, storage.ValidatePDB(resp.Structure))

	_, err = r.Relax(context.Background(), RelaxRequest{SlotName: "s", Structure: models.Structure("END\n")})
	assert.Error(t, err)
}

func TestBackendSelection(t *testing.T) {
	p, err := NewPredictor(config.BackendConfig{Kind: config.BackendSimulated})
	require.NoError(t, err)
	assert.IsType(t, &SimulatedPredictor{}, p)

	p, err = NewPredictor(config.BackendConfig{Kind: config.BackendCommand, Command: []string{"/bin/true"}})
	require.NoError(t, err)
	assert.IsType(t, &CommandPredictor{}, p)

	_, err = NewPredictor(config.BackendConfig{Kind: config.BackendCommand})
	assert.Error(t, err)
	_, err = NewRelaxer(config.BackendConfig{Kind: "grpc"})
	assert.Error(t, err)
}

func writeScript(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts not supported")
	}
	path := filepath.Join(t.TempDir(), "backend.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755))
	return path
}

func TestCommandPredictor(t *testing.T) {
	script := writeScript(t, `
for arg in "$@"; do
  case "$arg" in
    --random_seed=*) seed="${arg#--random_seed=}" ;;
  esac
done
printf '{"payload":{"plddt":[%s]},"structure":"ATOM      1  CA  ALA A   1\\nEND\\n"}' "$seed"
`)
	p, err := NewCommandPredictor([]string{script})
	require.NoError(t, err)

	resp, err := p.Predict(context.Background(), PredictRequest{ModelName: "model_1", Seed: 77})
	require.NoError(t, err)

	_, score, err := models.ScoreFromPayload(resp.Payload)
	require.NoError(t, err)
	assert.Equal(t, 77.0, score)
	assert.NoError(t, storage.ValidatePDB(resp.Structure))
}

func TestCommandPredictorFailureIncludesStderr(t *testing.T) {
	script := writeScript(t, "echo 'CUDA error: out of memory' >&2\nexit 3\n")
	p, err := NewCommandPredictor([]string{script})
	require.NoError(t, err)

	_, err = p.Predict(context.Background(), PredictRequest{ModelName: "model_1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CUDA error: out of memory")
}

func TestCommandRelaxerReadsStdin(t *testing.T) {
	script := writeScript(t, `
input=$(cat)
case "$input" in
  ATOM*) printf '{"structure":"REMARK RELAXED\\nATOM  1\\n","metrics":{"violations":0}}' ;;
  *) echo "bad input" >&2; exit 1 ;;
esac
`)
	r, err := NewCommandRelaxer([]string{script})
	require.NoError(t, err)

	resp, err := r.Relax(context.Background(), RelaxRequest{SlotName: "s", Structure: models.Structure("ATOM  1\n")})
	require.NoError(t, err)
	assert.Contains(t, string(resp.Structure), "RELAXED")
	assert.Equal(t, float64(0), resp.Metrics["violations"])
}

func TestCommandBackendsRejectEmptyArgv(t *testing.T) {
	_, err := NewCommandPredictor(nil)
	assert.Error(t, err)
	_, err = NewCommandRelaxer([]string{""})
	assert.Error(t, err)
}
