package models

import "fmt"

// ModelSlot identifies one (model configuration, prediction index) unit of work
type ModelSlot struct {
	Index           int
	Name            string
	ModelName       string
	PredictionIndex int
}

// SlotName builds the canonical slot name, e.g. model_1_multimer_v3_pred_0
func SlotName(modelName string, predictionIndex int) string {
	return fmt.Sprintf("%s_pred_%d", modelName, predictionIndex)
}

// Structure is a PDB-formatted model structure
type Structure []byte

// ModelResult is the committed output of one slot
type ModelResult struct {
	Slot      ModelSlot
	Metric    Metric
	Score     float64
	Structure Structure
	Payload   []byte // Raw result document as produced by the predictor
}
