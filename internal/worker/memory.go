package worker

import (
	"context"
	"log"
	"runtime"
	"time"
)

// MemoryReportInterval defines how often memory statistics are logged
const MemoryReportInterval = 30 * time.Second

// StartMemoryReporter logs heap statistics until ctx is done
func StartMemoryReporter(ctx context.Context) {
	ticker := time.NewTicker(MemoryReportInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				var m runtime.MemStats
				runtime.ReadMemStats(&m)
				log.Printf("Alloc = %v MiB, TotalAlloc = %v MiB, Sys = %v MiB, NumGC = %v",
					m.Alloc/1024/1024, m.TotalAlloc/1024/1024, m.Sys/1024/1024, m.NumGC)
			}
		}
	}()
}
