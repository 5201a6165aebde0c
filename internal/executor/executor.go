// Package executor runs a job's payload. The only implementation is a
// simulated executor (spec §4: no real work is dispatched), but it is kept
// behind an interface so a real dispatcher can be swapped in without
// touching internal/scheduler.
package executor

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cronkit/scheduler/internal/model"
)

// Result is what an Executor returns for one attempt.
type Result struct {
	Output json.RawMessage
}

// Executor runs a single job attempt. Implementations must respect ctx
// cancellation/deadline — the scheduler enforces the job's timeout_ms only
// by cancelling ctx, so an executor that ignores ctx runs past the deadline.
type Executor interface {
	Execute(ctx context.Context, job model.Job) (Result, error)
}

// Simulated is the only Executor the control plane ships: it echoes the
// job's payload back labeled with its job type, standing in for whatever
// real dispatch (HTTP callback, message queue publish, subprocess) a given
// deployment would wire in its place.
type Simulated struct{}

func (Simulated) Execute(ctx context.Context, job model.Job) (Result, error) {
	select {
	case <-ctx.Done():
		return Result{}, ctx.Err()
	default:
	}

	out := map[string]any{
		"jobType": job.JobType,
		"payload": json.RawMessage(jsonOrEmpty(job.Payload)),
		"message": fmt.Sprintf("simulated execution of job %s", job.ID),
	}
	b, err := json.Marshal(out)
	if err != nil {
		return Result{}, err
	}
	return Result{Output: TruncateOutput(b)}, nil
}

func jsonOrEmpty(data json.RawMessage) json.RawMessage {
	if len(data) == 0 {
		return json.RawMessage("{}")
	}
	return data
}
