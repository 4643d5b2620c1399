package worker

import (
	"context"
	"testing"

	"noisemap/internal/noisemap"
	"noisemap/internal/service/result"

	"github.com/stretchr/testify/assert"
)

func TestLogProgress(t *testing.T) {
	results := result.NewResultService(nil, nil)
	assert.Zero(t, logProgress(results))

	running := results.StartRun()
	running.Progress(1, 4)
	done := results.StartRun()
	results.Finish(&noisemap.RunResult{RunID: done.ID, CellsDone: 4, CellsTotal: 4, Complete: true})

	assert.Equal(t, 1, logProgress(results))
}

func TestStartAllWorkers_Stops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	StartAllWorkers(ctx, result.NewResultService(nil, nil))
	cancel()
}
