package main

import (
	"context"
	"flag"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"noisemap/internal/api"
	"noisemap/internal/config"
	"noisemap/internal/export"
	"noisemap/internal/metrics"
	"noisemap/internal/noisemap"
	"noisemap/internal/postgres"
	"noisemap/internal/redis"
	"noisemap/internal/service/result"
	"noisemap/internal/service/scene"
	"noisemap/internal/worker"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"
)

// Command line flags
var (
	evaluateOnce bool
	outputPath   string
	logPath      string
)

func init() {
	flag.BoolVar(&evaluateOnce, "evaluate", false, "Evaluate the whole grid once, export the levels and exit")
	flag.StringVar(&outputPath, "out", "levels.geojson", "GeoJSON output of -evaluate")
	flag.StringVar(&logPath, "log", "noisemap.log", "Log file, empty to log to the terminal only")
}

func main() {
	flag.Parse()
	setupLogging()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	initializeDatabaseAndCache(cfg)
	defer closeConnections()

	collector, err := metrics.NewCollector(prometheus.DefaultRegisterer)
	if err != nil {
		log.Fatalf("Failed to register metrics: %v", err)
	}

	noise := initializeNoiseMap(ctx, cfg, collector)
	results := result.GetResultService()

	if evaluateOnce {
		runEvaluation(ctx, noise, results)
		return
	}

	worker.StartAllWorkers(ctx, results)
	runAPIServer(ctx, cfg, noise, results, collector)
}

func setupLogging() {
	if logPath == "" {
		return
	}
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		log.Fatalf("Failed to open log file: %v", err)
	}

	// Use MultiWriter to output logs to both terminal and file
	log.SetOutput(io.MultiWriter(os.Stdout, logFile))
}

func initializeDatabaseAndCache(cfg config.Config) {
	if cfg.DBUrl != "" {
		postgres.Init(cfg.DBUrl)
	}
	if cfg.RedisUrl != "" {
		redis.Init(cfg.RedisUrl)
	}
}

// dataSource prefers a scene file and falls back to the database
func dataSource(cfg config.Config) noisemap.DataSource {
	if cfg.SceneFile != "" {
		s := scene.NewSceneService(cfg.HeightField)
		if err := s.LoadFile(cfg.SceneFile); err != nil {
			log.Fatalf("Failed to load scene: %v", err)
		}
		return s
	}
	if db := postgres.GetDB(); db != nil {
		p, err := postgres.NewProvider(db, cfg.Propagation)
		if err != nil {
			log.Fatalf("Invalid database options: %v", err)
		}
		return p
	}
	log.Fatal("Either SCENE_FILE or DB_URL must be set")
	return nil
}

func initializeNoiseMap(ctx context.Context, cfg config.Config, collector *metrics.Collector) *noisemap.PointNoiseMap {
	var materials map[string][]float64
	if cfg.MaterialsFile != "" {
		m, err := config.LoadMaterials(cfg.MaterialsFile)
		if err != nil {
			log.Fatalf("Failed to load materials: %v", err)
		}
		materials = m
	}

	noise := noisemap.New(dataSource(cfg), cfg.Propagation, materials)
	noise.SetMetrics(collector)
	if err := noise.Initialize(ctx); err != nil {
		log.Fatalf("Failed to initialize noise map: %v", err)
	}
	return noise
}

func runEvaluation(ctx context.Context, noise *noisemap.PointNoiseMap, results *result.ResultService) {
	run := results.StartRun()
	res, err := noise.EvaluateRun(ctx, run.ID, run)
	if err != nil {
		log.Fatalf("Evaluation failed: %v", err)
	}
	results.Finish(res)

	if err := export.WriteFile(outputPath, export.Levels(res.Levels)); err != nil {
		log.Fatalf("Failed to export levels: %v", err)
	}
	if err := results.SaveAllLevelsToPG(context.Background()); err != nil {
		log.Printf("ERROR: saving levels to PostgreSQL: %v", err)
	}
	log.Printf("Wrote %d levels to %s (complete: %v)", len(res.Levels), outputPath, res.Complete)
}

func runAPIServer(ctx context.Context, cfg config.Config, noise *noisemap.PointNoiseMap, results *result.ResultService, collector *metrics.Collector) {
	r := gin.Default()

	// Configure API routes
	routeConfig := map[string]string{
		"port":      cfg.Port,
		"dbUrl":     cfg.DBUrl,
		"redisUrl":  cfg.RedisUrl,
		"sceneFile": cfg.SceneFile,
	}
	api.SetupRouter(ctx, r, routeConfig, noise, results, collector.Gatherer())

	go func() {
		<-ctx.Done()
		log.Println("Shutdown signal received, closing connections...")
		closeConnections()
		os.Exit(0)
	}()

	if err := r.Run(cfg.Port); err != nil {
		log.Fatalf("Server stopped: %v", err)
	}
}

func closeConnections() {
	err := multierr.Combine(postgres.Close(), redis.Close())
	if err != nil {
		log.Printf("Error closing connections: %v", err)
		return
	}
	log.Println("PostgreSQL and Redis connections closed successfully")
}
