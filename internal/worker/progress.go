package worker

import (
	"context"
	"log"
	"time"

	"noisemap/internal/config"
	"noisemap/internal/service/result"
)

// StartProgressWorker logs the progress of unfinished runs until ctx is done
func StartProgressWorker(ctx context.Context, results *result.ResultService) {
	ticker := time.NewTicker(config.ProgressLogInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				logProgress(results)
			}
		}
	}()

	log.Println("Progress worker started with interval:", config.ProgressLogInterval)
}

// logProgress logs every unfinished run and returns how many there are
func logProgress(results *result.ResultService) int {
	active := 0
	for _, st := range results.Runs() {
		if st.Finished {
			continue
		}
		active++
		pct := 0.0
		if st.CellsTotal > 0 {
			pct = float64(st.CellsDone) / float64(st.CellsTotal) * 100
		}
		log.Printf("Run %s: %d/%d cells (%.1f%%) after %v",
			st.ID, st.CellsDone, st.CellsTotal, pct, time.Since(st.StartedAt).Round(time.Second))
	}
	return active
}
