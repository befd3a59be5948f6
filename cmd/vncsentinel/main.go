package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"vncsentinel/config"
	"vncsentinel/internal/anomaly"
	"vncsentinel/internal/engine"
	inputredis "vncsentinel/internal/input/redis"
	"vncsentinel/internal/logger"
	"vncsentinel/internal/metrics"
	"vncsentinel/internal/output/resultclickhouse"
	"vncsentinel/internal/output/resulthttp"
	"vncsentinel/internal/output/resultjson"
	"vncsentinel/internal/output/resultpg"
	"vncsentinel/internal/pipeline"
	"vncsentinel/internal/risk"
	"vncsentinel/internal/rules"
	"vncsentinel/internal/sessionstate"
	"vncsentinel/internal/transform/telemetry"
	"vncsentinel/pkg/models"
)

func findConfigFile(configArg string) string {
	if configArg != "" {
		path := configArg
		if _, err := os.Stat(path); err == nil {
			return path
		}
		log.Printf("Warning: config file not found at %s, trying default locations", path)
	}

	if _, err := os.Stat("vncsentinel.yml"); err == nil {
		return "vncsentinel.yml"
	}

	exePath, err := os.Executable()
	if err == nil {
		exeDir := filepath.Dir(exePath)
		path := filepath.Join(exeDir, "vncsentinel.yml")
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return "vncsentinel.yml"
}

func applyDefaults(cfg *config.Config) {
	if cfg.VNCSentinel.Input.Redis.Addr == "" {
		cfg.VNCSentinel.Input.Redis.Addr = "127.0.0.1:6379"
	}
	if cfg.VNCSentinel.Input.Redis.Key == "" {
		cfg.VNCSentinel.Input.Redis.Key = "vnc_session_windows"
	}
	if cfg.VNCSentinel.Input.Redis.BlockTimeout == 0 {
		cfg.VNCSentinel.Input.Redis.BlockTimeout = 5 * time.Second
	}

	if cfg.VNCSentinel.Pipeline.Workers <= 0 {
		cfg.VNCSentinel.Pipeline.Workers = 8
	}
	if cfg.VNCSentinel.Pipeline.BatchSize <= 0 {
		cfg.VNCSentinel.Pipeline.BatchSize = 500
	}
	if cfg.VNCSentinel.Pipeline.FlushInterval <= 0 {
		cfg.VNCSentinel.Pipeline.FlushInterval = 2 * time.Second
	}

	if cfg.VNCSentinel.Anomaly.TopK <= 0 {
		cfg.VNCSentinel.Anomaly.TopK = anomaly.DefaultTopK
	}

	if cfg.VNCSentinel.Risk.MediumBand <= 0 && cfg.VNCSentinel.Risk.HighBand <= 0 {
		bands := risk.DefaultBands()
		cfg.VNCSentinel.Risk.MediumBand = bands.Medium
		cfg.VNCSentinel.Risk.HighBand = bands.High
	}

	if cfg.VNCSentinel.Output.Mode == "" {
		cfg.VNCSentinel.Output.Mode = "file"
	}
	if cfg.VNCSentinel.Output.File.Path == "" {
		cfg.VNCSentinel.Output.File.Path = "output/detections.jsonl"
	}
	if cfg.VNCSentinel.Output.ClickHouse.Database == "" {
		cfg.VNCSentinel.Output.ClickHouse.Database = "vncsentinel"
	}
	if cfg.VNCSentinel.Output.ClickHouse.Table == "" {
		cfg.VNCSentinel.Output.ClickHouse.Table = "vnc_detections"
	}

	if cfg.VNCSentinel.Metrics.Addr == "" {
		cfg.VNCSentinel.Metrics.Addr = ":9204"
	}

	if cfg.VNCSentinel.Logging.Level == "" {
		cfg.VNCSentinel.Logging.Level = "info"
	}
}

// buildEngine assembles a detection engine snapshot from configuration.
func buildEngine(cfg *config.Config) (*engine.Engine, error) {
	descriptors := rules.DefaultDescriptors()
	if strings.TrimSpace(cfg.VNCSentinel.Rules.Path) != "" {
		loaded, err := rules.LoadRuleFile(cfg.VNCSentinel.Rules.Path)
		if err != nil {
			return nil, fmt.Errorf("load rule file %s: %w", cfg.VNCSentinel.Rules.Path, err)
		}
		descriptors = loaded
	}
	thresholdEngine, err := rules.NewThresholdEngine(descriptors)
	if err != nil {
		return nil, fmt.Errorf("build threshold engine: %w", err)
	}
	logger.Infof("Threshold rules loaded: %d", thresholdEngine.Len())

	var sigmaEngine rules.Engine
	if strings.TrimSpace(cfg.VNCSentinel.Rules.SigmaPath) != "" {
		eng, stats, err := rules.NewSigmaEngine(cfg.VNCSentinel.Rules.SigmaPath)
		if err != nil {
			return nil, fmt.Errorf("load sigma rules from %s: %w", cfg.VNCSentinel.Rules.SigmaPath, err)
		}
		sigmaEngine = eng
		logger.Infof("Sigma rules loaded: loaded=%d skipped_complex=%d skipped_invalid=%d files=%d",
			stats.Loaded, stats.SkippedComplex, stats.SkippedInvalid, stats.TotalFiles)
		if stats.Loaded == 0 {
			logger.Warnf("No compatible Sigma rules loaded from %s", cfg.VNCSentinel.Rules.SigmaPath)
		}
	}

	var artifact *anomaly.Artifact
	if strings.TrimSpace(cfg.VNCSentinel.Anomaly.ModelPath) != "" {
		artifact, err = anomaly.LoadArtifact(cfg.VNCSentinel.Anomaly.ModelPath)
		if err != nil {
			return nil, fmt.Errorf("load anomaly model %s: %w", cfg.VNCSentinel.Anomaly.ModelPath, err)
		}
		logger.Infof("Anomaly model loaded: %s", cfg.VNCSentinel.Anomaly.ModelPath)
	} else {
		logger.Warnf("No anomaly model configured; scoring runs degraded (rule-only)")
	}
	scorer := anomaly.NewScorer(artifact, anomaly.Config{
		TopK:              cfg.VNCSentinel.Anomaly.TopK,
		DecisionThreshold: cfg.VNCSentinel.Anomaly.DecisionThreshold,
	})

	bands := risk.Bands{
		Medium: cfg.VNCSentinel.Risk.MediumBand,
		High:   cfg.VNCSentinel.Risk.HighBand,
	}
	if err := bands.Validate(); err != nil {
		return nil, fmt.Errorf("validate risk bands: %w", err)
	}

	remediation := risk.DefaultTable()
	if strings.TrimSpace(cfg.VNCSentinel.Remediation.Path) != "" {
		remediation, err = risk.LoadTableFile(cfg.VNCSentinel.Remediation.Path)
		if err != nil {
			return nil, fmt.Errorf("load remediation table %s: %w", cfg.VNCSentinel.Remediation.Path, err)
		}
	}

	return engine.New(&engine.Snapshot{
		Version:     "v1",
		Rules:       thresholdEngine,
		Sigma:       sigmaEngine,
		Scorer:      scorer,
		Bands:       bands,
		Remediation: remediation,
	})
}

func runServe(args []string) {
	configArg := ""
	if len(args) > 0 {
		configArg = args[0]
	}

	configPath := findConfigFile(configArg)

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	applyDefaults(cfg)

	if err := logger.Init(cfg.VNCSentinel.Logging.Enabled, cfg.VNCSentinel.Logging.Level, cfg.VNCSentinel.Logging.File, cfg.VNCSentinel.Logging.Console); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	logger.Infof("VNCSentinel starting")
	logger.Infof("Config loaded from: %s", configPath)

	eng, err := buildEngine(cfg)
	if err != nil {
		logger.Errorf("Failed to build detection engine: %v", err)
		log.Fatalf("Failed to build detection engine: %v", err)
	}

	consumer, err := inputredis.NewConsumer(inputredis.Config{
		Addr:         cfg.VNCSentinel.Input.Redis.Addr,
		Password:     cfg.VNCSentinel.Input.Redis.Password,
		DB:           cfg.VNCSentinel.Input.Redis.DB,
		Key:          cfg.VNCSentinel.Input.Redis.Key,
		BlockTimeout: cfg.VNCSentinel.Input.Redis.BlockTimeout,
	})
	if err != nil {
		logger.Errorf("Failed to create Redis consumer: %v", err)
		log.Fatalf("Failed to create Redis consumer: %v", err)
	}

	var writer pipeline.ResultWriter
	switch cfg.VNCSentinel.Output.Mode {
	case "file":
		w, err := resultjson.NewWriter(cfg.VNCSentinel.Output.File.Path)
		if err != nil {
			logger.Errorf("Failed to create file writer: %v", err)
			log.Fatalf("Failed to create file writer: %v", err)
		}
		writer = w
		logger.Infof("Output mode: file (%s)", cfg.VNCSentinel.Output.File.Path)
	case "http":
		w, err := resulthttp.NewWriter(resulthttp.Config{
			URL:     cfg.VNCSentinel.Output.HTTP.URL,
			Timeout: cfg.VNCSentinel.Output.HTTP.Timeout,
			Headers: cfg.VNCSentinel.Output.HTTP.Headers,
		})
		if err != nil {
			logger.Errorf("Failed to create HTTP writer: %v", err)
			log.Fatalf("Failed to create HTTP writer: %v", err)
		}
		writer = w
		logger.Infof("Output mode: http (%s)", cfg.VNCSentinel.Output.HTTP.URL)
	case "clickhouse":
		w, err := resultclickhouse.NewWriter(resultclickhouse.Config{
			URL:      cfg.VNCSentinel.Output.ClickHouse.URL,
			Database: cfg.VNCSentinel.Output.ClickHouse.Database,
			Table:    cfg.VNCSentinel.Output.ClickHouse.Table,
			Username: cfg.VNCSentinel.Output.ClickHouse.Username,
			Password: cfg.VNCSentinel.Output.ClickHouse.Password,
			Timeout:  cfg.VNCSentinel.Output.ClickHouse.Timeout,
			Headers:  cfg.VNCSentinel.Output.ClickHouse.Headers,
		})
		if err != nil {
			logger.Errorf("Failed to create ClickHouse writer: %v", err)
			log.Fatalf("Failed to create ClickHouse writer: %v", err)
		}
		writer = w
		logger.Infof("Output mode: clickhouse (%s/%s.%s)", cfg.VNCSentinel.Output.ClickHouse.URL, cfg.VNCSentinel.Output.ClickHouse.Database, cfg.VNCSentinel.Output.ClickHouse.Table)
	case "postgres":
		w, err := resultpg.NewWriter(resultpg.Config{
			DSN:   cfg.VNCSentinel.Output.Postgres.DSN,
			Table: cfg.VNCSentinel.Output.Postgres.Table,
		})
		if err != nil {
			logger.Errorf("Failed to create Postgres writer: %v", err)
			log.Fatalf("Failed to create Postgres writer: %v", err)
		}
		writer = w
		logger.Infof("Output mode: postgres (table=%s)", cfg.VNCSentinel.Output.Postgres.Table)
	default:
		log.Fatalf("Unknown output mode: %s", cfg.VNCSentinel.Output.Mode)
	}

	var stateStore *sessionstate.RedisStore
	if cfg.VNCSentinel.SessionState.Enabled {
		stateStore, err = sessionstate.NewRedisStore(sessionstate.RedisConfig{
			Addr:      cfg.VNCSentinel.SessionState.Addr,
			Password:  cfg.VNCSentinel.SessionState.Password,
			DB:        cfg.VNCSentinel.SessionState.DB,
			KeyPrefix: cfg.VNCSentinel.SessionState.KeyPrefix,
		})
		if err != nil {
			logger.Errorf("Failed to create session-state store: %v", err)
			log.Fatalf("Failed to create session-state store: %v", err)
		}
		logger.Infof("Session-state store enabled (%s)", cfg.VNCSentinel.SessionState.Addr)
	}

	var m *metrics.Metrics
	var metricsServer *metrics.Server
	if cfg.VNCSentinel.Metrics.Enabled {
		m = metrics.Get()
		m.SetDegraded(!eng.Snapshot().Scorer.Ready())
		metricsServer = metrics.NewServer(cfg.VNCSentinel.Metrics.Addr)
		metricsServer.Start()
	}

	pipe := pipeline.NewDetectionPipeline(
		consumer,
		eng,
		writer,
		stateStore,
		m,
		cfg.VNCSentinel.Pipeline.Workers,
		cfg.VNCSentinel.Pipeline.BatchSize,
		cfg.VNCSentinel.Pipeline.FlushInterval,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := pipe.Run(ctx); err != nil && err != context.Canceled {
			logger.Errorf("Pipeline error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Infof("Shutting down")
	cancel()
	time.Sleep(1 * time.Second)

	if metricsServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Errorf("Error shutting down metrics server: %v", err)
		}
		shutdownCancel()
	}

	if err := pipe.Close(); err != nil {
		logger.Errorf("Error closing pipeline: %v", err)
	}

	logger.Infof("VNCSentinel stopped")
}

// runDetect scores a JSONL file of session windows offline and writes
// detection records as JSONL.
func runDetect(args []string) int {
	fs := flag.NewFlagSet("detect", flag.ContinueOnError)
	input := fs.String("input", "", "Session window JSONL input path")
	output := fs.String("output", "output/detections.jsonl", "Detection record JSONL output path")
	configArg := fs.String("config", "", "Optional config file path")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if strings.TrimSpace(*input) == "" {
		fmt.Fprintln(os.Stderr, "detect: -input is required")
		return 2
	}

	cfg := &config.Config{}
	if strings.TrimSpace(*configArg) != "" {
		loaded, err := config.LoadConfig(findConfigFile(*configArg))
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
			return 1
		}
		cfg = loaded
	}
	applyDefaults(cfg)

	if err := logger.Init(cfg.VNCSentinel.Logging.Enabled, cfg.VNCSentinel.Logging.Level, cfg.VNCSentinel.Logging.File, cfg.VNCSentinel.Logging.Console); err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		return 1
	}

	eng, err := buildEngine(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build detection engine: %v\n", err)
		return 1
	}

	f, err := os.Open(*input)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open input: %v\n", err)
		return 1
	}
	defer f.Close()

	var records []*models.DetectionRecord
	scanned, rejected := 0, 0
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 1024*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		scanned++

		snap, err := telemetry.Parse([]byte(line))
		if err != nil {
			logger.Warnf("Skipping malformed window at line %d: %v", scanned, err)
			rejected++
			continue
		}
		result, err := eng.DetectFields(snap.Features)
		if err != nil {
			logger.Warnf("Rejected window for session %s: %v", snap.SessionID, err)
			rejected++
			continue
		}

		observed := snap.ObservedAt
		if observed.IsZero() {
			observed = time.Now().UTC()
		}
		records = append(records, &models.DetectionRecord{
			RecordID:   uuid.NewString(),
			SessionID:  snap.SessionID,
			ObservedAt: observed,
			Result:     result,
		})
	}
	if err := scanner.Err(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to read input: %v\n", err)
		return 1
	}

	if err := writeJSONLines(*output, records); err != nil {
		fmt.Fprintf(os.Stderr, "failed to write detection records: %v\n", err)
		return 1
	}

	fmt.Printf("scored windows=%d rejected=%d detections=%d output=%s\n", scanned, rejected, len(records), *output)
	return 0
}

func writeJSONLines[T any](path string, rows []T) error {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create output file: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	for _, item := range rows {
		if err := enc.Encode(item); err != nil {
			return fmt.Errorf("encode row: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("flush output: %w", err)
	}
	return nil
}

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "serve":
			runServe(os.Args[2:])
			return
		case "detect":
			os.Exit(runDetect(os.Args[2:]))
		default:
			// Backward-compatible mode: first arg is config path.
			runServe(os.Args[1:])
			return
		}
	}

	runServe(nil)
}
