package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testJob(mode Mode, models []string, predictions int) *Job {
	return &Job{
		Name:                "complex",
		OutputDir:           "/tmp/complex",
		Mode:                mode,
		ModelNames:          models,
		PredictionsPerModel: predictions,
		RandomSeed:          7,
	}
}

func TestSlotsAreModelMajor(t *testing.T) {
	job := testJob(ModeMultimer, []string{"model_1_multimer_v3", "model_2_multimer_v3"}, 2)

	slots := job.Slots()
	require.Len(t, slots, 4)
	assert.Equal(t, 4, job.SlotCount())

	names := make([]string, len(slots))
	for i, s := range slots {
		assert.Equal(t, i, s.Index)
		names[i] = s.Name
	}
	assert.Equal(t, []string{
		"model_1_multimer_v3_pred_0",
		"model_1_multimer_v3_pred_1",
		"model_2_multimer_v3_pred_0",
		"model_2_multimer_v3_pred_1",
	}, names)
	assert.Equal(t, "model_2_multimer_v3", slots[3].ModelName)
	assert.Equal(t, 1, slots[3].PredictionIndex)
}

func TestSlotSeed(t *testing.T) {
	job := testJob(ModeMonomer, []string{"model_1", "model_2"}, 3)
	slots := job.Slots()

	assert.Equal(t, int64(42), job.SlotSeed(slots[0]))
	assert.Equal(t, int64(47), job.SlotSeed(slots[5]))
}

func TestJobMetric(t *testing.T) {
	assert.Equal(t, MetricIPTMPTM, testJob(ModeMultimer, []string{"m"}, 1).Metric())
	assert.Equal(t, MetricPLDDT, testJob(ModeMonomer, []string{"m"}, 1).Metric())
}

func TestDefaultModelNames(t *testing.T) {
	assert.Equal(t, "model_1_multimer_v3", DefaultModelNames(ModeMultimer)[0])
	assert.Equal(t, "model_5", DefaultModelNames(ModeMonomer)[4])
}

func TestJobValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Job)
		wantErr bool
	}{
		{"valid", func(*Job) {}, false},
		{"no name", func(j *Job) { j.Name = "" }, true},
		{"no output dir", func(j *Job) { j.OutputDir = "" }, true},
		{"no models", func(j *Job) { j.ModelNames = nil }, true},
		{"zero predictions", func(j *Job) { j.PredictionsPerModel = 0 }, true},
		{"duplicate models", func(j *Job) { j.ModelNames = []string{"a", "a"} }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job := testJob(ModeMonomer, []string{"model_1", "model_2"}, 1)
			tt.mutate(job)
			err := job.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestParseRelaxPolicy(t *testing.T) {
	for input, want := range map[string]RelaxPolicy{
		"":          RelaxNone,
		"none":      RelaxNone,
		"Best":      RelaxBest,
		"best-only": RelaxBest,
		"all":       RelaxAll,
	} {
		got, err := ParseRelaxPolicy(input)
		require.NoError(t, err, input)
		assert.Equal(t, want, got, input)
	}
	_, err := ParseRelaxPolicy("some")
	assert.Error(t, err)
}

func TestParseMode(t *testing.T) {
	mode, err := ParseMode(" Multimer ")
	require.NoError(t, err)
	assert.Equal(t, ModeMultimer, mode)

	_, err = ParseMode("dimer")
	assert.Error(t, err)
}

func TestFinalSummaryJSONShape(t *testing.T) {
	summary := FinalSummary{
		Metric: MetricIPTMPTM,
		Scores: map[string]float64{"A": 0.7, "B": 0.9},
		Order:  []string{"B", "A"},
	}
	data, err := json.Marshal(summary)
	require.NoError(t, err)
	assert.JSONEq(t, `{"iptm+ptm":{"A":0.7,"B":0.9},"order":["B","A"]}`, string(data))

	var decoded FinalSummary
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, summary, decoded)
}

func TestRunningSummaryJSONShape(t *testing.T) {
	data, err := json.Marshal(NewRunningSummary(MetricPLDDT))
	require.NoError(t, err)
	assert.JSONEq(t, `{"plddt":{}}`, string(data))
}

func TestSummaryDecodeRejectsMalformedDocuments(t *testing.T) {
	tests := map[string]string{
		"two metrics":    `{"plddt":{},"iptm+ptm":{}}`,
		"unknown metric": `{"ptm":{"A":1}}`,
		"no metric":      `{}`,
		"bad scores":     `{"plddt":{"A":"high"}}`,
		"truncated":      `{"plddt":{"A":1`,
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			var s RunningSummary
			assert.Error(t, json.Unmarshal([]byte(doc), &s))
		})
	}

	var final FinalSummary
	assert.Error(t, json.Unmarshal([]byte(`{"plddt":{"A":1}}`), &final), "final summary needs an order")
}

func TestScoreFromPayload(t *testing.T) {
	tests := []struct {
		name       string
		payload    string
		wantMetric Metric
		wantScore  float64
		wantErr    bool
	}{
		{"ranking confidence wins", `{"iptm":0.5,"ptm":0.5,"ranking_confidence":0.77}`, MetricIPTMPTM, 0.77, false},
		{"weighted iptm and ptm", `{"iptm":0.5,"ptm":1.0}`, MetricIPTMPTM, 0.6, false},
		{"iptm without ptm", `{"iptm":0.5}`, "", 0, true},
		{"mean plddt", `{"plddt":[80,90,100]}`, MetricPLDDT, 90, false},
		{"monomer ranking confidence", `{"plddt":[1],"ranking_confidence":88.5}`, MetricPLDDT, 88.5, false},
		{"empty", `{}`, "", 0, true},
		{"not json", `nope`, "", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			metric, score, err := ScoreFromPayload([]byte(tt.payload))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantMetric, metric)
			assert.InDelta(t, tt.wantScore, score, 1e-9)
		})
	}
}
