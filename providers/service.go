package providers

import (
	"context"
	"fmt"

	"fold-orchestrator/config"
	"fold-orchestrator/core/models"
)

// PredictRequest is the input of one structure prediction
type PredictRequest struct {
	JobName   string
	Mode      models.Mode
	Features  []string
	DataDir   string
	ModelName string
	NumCycle  int
	Seed      int64
}

// PredictResponse carries the raw result document and the predicted structure.
// The score is derived from the payload by the caller.
type PredictResponse struct {
	Payload   []byte
	Structure models.Structure
}

// Predictor runs the structure prediction model for one slot
type Predictor interface {
	Predict(ctx context.Context, req PredictRequest) (*PredictResponse, error)
}

// RelaxRequest is the input of one relaxation
type RelaxRequest struct {
	JobName   string
	SlotName  string
	Structure models.Structure
}

// RelaxResponse carries the relaxed structure and optional relaxer statistics
type RelaxResponse struct {
	Structure models.Structure
	Metrics   map[string]interface{}
}

// Relaxer refines a predicted structure
type Relaxer interface {
	Relax(ctx context.Context, req RelaxRequest) (*RelaxResponse, error)
}

// NewPredictor selects the prediction backend named by the configuration
func NewPredictor(cfg config.BackendConfig) (Predictor, error) {
	switch cfg.Kind {
	case config.BackendSimulated, "":
		return NewSimulatedPredictor(), nil
	case config.BackendCommand:
		return NewCommandPredictor(cfg.Command)
	default:
		return nil, fmt.Errorf("unsupported predictor backend: %s", cfg.Kind)
	}
}

// NewRelaxer selects the relaxation backend named by the configuration
func NewRelaxer(cfg config.BackendConfig) (Relaxer, error) {
	switch cfg.Kind {
	case config.BackendSimulated, "":
		return NewSimulatedRelaxer(), nil
	case config.BackendCommand:
		return NewCommandRelaxer(cfg.Command)
	default:
		return nil, fmt.Errorf("unsupported relaxer backend: %s", cfg.Kind)
	}
}
