// Package stage defines what the workflow manager expects from a pipeline
// stage and how stages report readiness.
package stage

import (
	"context"
	"os/exec"
	"strings"

	"echvid/internal/queue"
)

// Handler is one step of the dubbing pipeline. Execute reads the artifact the
// previous step recorded on the job and records its own output path. Status
// transitions belong to the workflow manager.
type Handler interface {
	Prepare(context.Context, *queue.Job) error
	Execute(context.Context, *queue.Job) error
	HealthCheck(context.Context) Health
}

// Health is a stage readiness report.
type Health struct {
	Name   string
	Ready  bool
	Detail string
}

func Healthy(name string) Health {
	return Health{Name: name, Ready: true}
}

func Unhealthy(name, detail string) Health {
	return Health{Name: name, Detail: detail}
}

// RequireBinaries reports the stage unhealthy when any executable is missing
// from PATH. All missing names are listed.
func RequireBinaries(name string, binaries ...string) Health {
	var missing []string
	for _, bin := range binaries {
		if strings.TrimSpace(bin) == "" {
			continue
		}
		if _, err := exec.LookPath(bin); err != nil {
			missing = append(missing, bin)
		}
	}
	if len(missing) > 0 {
		return Unhealthy(name, strings.Join(missing, ", ")+" not found on PATH")
	}
	return Healthy(name)
}
