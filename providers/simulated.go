package providers

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"math/rand"
	"strings"

	"fold-orchestrator/core/models"
)

// simulatedResidues is the chain length of simulated structures
const simulatedResidues = 24

// SimulatedPredictor produces deterministic results without running a model.
// Used for dry runs and for exercising the orchestration end to end.
type SimulatedPredictor struct{}

// NewSimulatedPredictor creates a simulated prediction backend
func NewSimulatedPredictor() *SimulatedPredictor {
	return &SimulatedPredictor{}
}

// Predict derives scores and coordinates from the request's model name and seed
func (p *SimulatedPredictor) Predict(ctx context.Context, req PredictRequest) (*PredictResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	h := fnv.New64a()
	fmt.Fprintf(h, "%s/%s/%d", req.JobName, req.ModelName, req.Seed)
	rng := rand.New(rand.NewSource(int64(h.Sum64())))

	chains := 1
	if req.Mode == models.ModeMultimer {
		chains = 2
	}

	plddt := make([]float64, simulatedResidues*chains)
	var sum float64
	for i := range plddt {
		plddt[i] = 50 + rng.Float64()*45
		sum += plddt[i]
	}
	meanPLDDT := sum / float64(len(plddt))

	payload := map[string]interface{}{
		"model_name":   req.ModelName,
		"seed":         req.Seed,
		"num_recycles": req.NumCycle,
		"plddt":        plddt,
	}
	if req.Mode == models.ModeMultimer {
		iptm := 0.3 + rng.Float64()*0.6
		ptm := 0.4 + rng.Float64()*0.5
		payload["iptm"] = iptm
		payload["ptm"] = ptm
		payload["ranking_confidence"] = 0.8*iptm + 0.2*ptm
	} else {
		payload["ranking_confidence"] = meanPLDDT
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal simulated payload: %w", err)
	}

	return &PredictResponse{
		Payload:   data,
		Structure: simulatedStructure(rng, chains, plddt),
	}, nil
}

// simulatedStructure lays CA atoms along a helix, with pLDDT as B-factor
func simulatedStructure(rng *rand.Rand, chains int, plddt []float64) models.Structure {
	var buf bytes.Buffer
	serial := 1
	for c := 0; c < chains; c++ {
		chainID := string(rune('A' + c))
		for r := 0; r < simulatedResidues; r++ {
			x := 2.3*float64(r%4) + rng.Float64()*0.1 + float64(c)*12
			y := 2.3*float64((r+1)%4) + rng.Float64()*0.1
			z := 1.5 * float64(r)
			fmt.Fprintf(&buf, "ATOM  %5d  CA  ALA %s%4d    %8.3f%8.3f%8.3f%6.2f%6.2f           C\n",
				serial, chainID, r+1, x, y, z, 1.0, plddt[c*simulatedResidues+r])
			serial++
		}
		fmt.Fprintf(&buf, "TER   %5d      ALA %s%4d\n", serial, chainID, simulatedResidues)
		serial++
	}
	buf.WriteString("END\n")
	return buf.Bytes()
}

// SimulatedRelaxer marks structures as relaxed without changing coordinates
type SimulatedRelaxer struct{}

// NewSimulatedRelaxer creates a simulated relaxation backend
func NewSimulatedRelaxer() *SimulatedRelaxer {
	return &SimulatedRelaxer{}
}

// Relax prepends a remark to the structure and reports zero violations
func (r *SimulatedRelaxer) Relax(ctx context.Context, req RelaxRequest) (*RelaxResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	buf.WriteString("REMARK   1 RELAXED\n")
	atoms := 0
	sc := bufio.NewScanner(bytes.NewReader(req.Structure))
	for sc.Scan() {
		line := sc.Text()
		if strings.HasPrefix(line, "ATOM") || strings.HasPrefix(line, "HETATM") {
			atoms++
		}
		buf.WriteString(line)
		buf.WriteByte('\n')
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read structure of %s: %w", req.SlotName, err)
	}
	if atoms == 0 {
		return nil, fmt.Errorf("structure of %s has no atoms", req.SlotName)
	}

	return &RelaxResponse{
		Structure: buf.Bytes(),
		Metrics: map[string]interface{}{
			"remaining_violations":       []int{},
			"remaining_violations_count": 0,
			"atoms":                      atoms,
		},
	}, nil
}
