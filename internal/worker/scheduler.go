package worker

import (
	"context"
	"log"

	"noisemap/internal/service/result"
)

// StartAllWorkers initializes and starts all background workers
func StartAllWorkers(ctx context.Context, results *result.ResultService) {
	log.Println("Starting all workers...")

	StartProgressWorker(ctx, results)
	StartMemoryReporter(ctx)
	results.StartPersistenceWorkers(ctx)

	log.Println("All workers started")
}
