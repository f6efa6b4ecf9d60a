package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"fold-orchestrator/core/models"
)

// maxStderrTail bounds how much of a failed command's stderr ends up in errors
const maxStderrTail = 2048

// commandOutput is the JSON document a backend command prints on stdout
type commandOutput struct {
	Payload   json.RawMessage        `json:"payload"`
	Structure string                 `json:"structure"`
	Metrics   map[string]interface{} `json:"metrics"`
}

// CommandPredictor runs an external program for every prediction. The
// program receives the slot parameters as flags and prints
// {"payload": {...}, "structure": "<pdb>"} on stdout.
type CommandPredictor struct {
	argv []string
}

// NewCommandPredictor creates a predictor backed by argv
func NewCommandPredictor(argv []string) (*CommandPredictor, error) {
	if len(argv) == 0 || argv[0] == "" {
		return nil, fmt.Errorf("predictor command is empty")
	}
	return &CommandPredictor{argv: argv}, nil
}

// Predict runs the command and decodes its output
func (p *CommandPredictor) Predict(ctx context.Context, req PredictRequest) (*PredictResponse, error) {
	args := append([]string{}, p.argv[1:]...)
	args = append(args,
		"--job_name="+req.JobName,
		"--mode="+string(req.Mode),
		"--model_name="+req.ModelName,
		"--num_cycle="+strconv.Itoa(req.NumCycle),
		"--random_seed="+strconv.FormatInt(req.Seed, 10),
		"--data_dir="+req.DataDir,
		"--features="+strings.Join(req.Features, ","),
	)

	out, err := runCommand(ctx, p.argv[0], args, nil)
	if err != nil {
		return nil, fmt.Errorf("predict %s: %w", req.ModelName, err)
	}
	if len(out.Payload) == 0 {
		return nil, fmt.Errorf("predict %s: command returned no payload", req.ModelName)
	}
	return &PredictResponse{
		Payload:   []byte(out.Payload),
		Structure: models.Structure(out.Structure),
	}, nil
}

// CommandRelaxer pipes a structure through an external program that prints
// {"structure": "<pdb>", "metrics": {...}} on stdout.
type CommandRelaxer struct {
	argv []string
}

// NewCommandRelaxer creates a relaxer backed by argv
func NewCommandRelaxer(argv []string) (*CommandRelaxer, error) {
	if len(argv) == 0 || argv[0] == "" {
		return nil, fmt.Errorf("relaxer command is empty")
	}
	return &CommandRelaxer{argv: argv}, nil
}

// Relax runs the command with the structure on stdin
func (r *CommandRelaxer) Relax(ctx context.Context, req RelaxRequest) (*RelaxResponse, error) {
	args := append([]string{}, r.argv[1:]...)
	args = append(args, "--slot_name="+req.SlotName)

	out, err := runCommand(ctx, r.argv[0], args, req.Structure)
	if err != nil {
		return nil, fmt.Errorf("relax %s: %w", req.SlotName, err)
	}
	if out.Structure == "" {
		return nil, fmt.Errorf("relax %s: command returned no structure", req.SlotName)
	}
	return &RelaxResponse{
		Structure: models.Structure(out.Structure),
		Metrics:   out.Metrics,
	}, nil
}

func runCommand(ctx context.Context, name string, args []string, stdin []byte) (*commandOutput, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if stdin != nil {
		cmd.Stdin = bytes.NewReader(stdin)
	}

	if err := cmd.Run(); err != nil {
		tail := stderr.String()
		if len(tail) > maxStderrTail {
			tail = tail[len(tail)-maxStderrTail:]
		}
		return nil, fmt.Errorf("run %s: %w: %s", name, err, strings.TrimSpace(tail))
	}

	var out commandOutput
	if err := json.Unmarshal(stdout.Bytes(), &out); err != nil {
		return nil, fmt.Errorf("decode output of %s: %w", name, err)
	}
	return &out, nil
}
