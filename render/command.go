package render

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/onnwee/snitchvis/backend/telemetry"
)

// CommandRenderer shells out to an external renderer binary. The job is
// written as JSON to a file in DataDir and the command is invoked as
//
//	<command> <job.json> <output path>
//
// The command must write the artifact to the output path and exit zero.
type CommandRenderer struct {
	Command string
	DataDir string
}

func (r *CommandRenderer) Render(ctx context.Context, job Job) (string, error) {
	if r.Command == "" {
		return "", fmt.Errorf("no renderer command configured")
	}
	if err := os.MkdirAll(r.DataDir, 0o755); err != nil {
		return "", fmt.Errorf("create render data dir: %w", err)
	}

	id := uuid.NewString()
	jobPath := filepath.Join(r.DataDir, id+".job.json")
	outPath := filepath.Join(r.DataDir, id+".mp4")

	payload, err := json.Marshal(job)
	if err != nil {
		return "", fmt.Errorf("marshal render job: %w", err)
	}
	if err := os.WriteFile(jobPath, payload, 0o644); err != nil {
		return "", fmt.Errorf("write render job file: %w", err)
	}
	defer os.Remove(jobPath)

	cmd := exec.CommandContext(ctx, r.Command, jobPath, outPath)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	telemetry.LoggerWithCorr(ctx).Info("invoking renderer",
		"command", r.Command, "job_id", id, "events", len(job.Events))
	if err := cmd.Run(); err != nil {
		msg := stderr.String()
		if len(msg) > 500 {
			msg = msg[:500]
		}
		return "", fmt.Errorf("renderer %s failed: %w (stderr: %s)", r.Command, err, msg)
	}
	if _, err := os.Stat(outPath); err != nil {
		return "", fmt.Errorf("renderer exited cleanly but produced no output: %w", err)
	}
	return outPath, nil
}
