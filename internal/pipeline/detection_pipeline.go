package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"vncsentinel/internal/engine"
	inputredis "vncsentinel/internal/input/redis"
	"vncsentinel/internal/logger"
	"vncsentinel/internal/metrics"
	"vncsentinel/internal/sessionstate"
	"vncsentinel/internal/transform/telemetry"
	"vncsentinel/pkg/models"
)

// DetectionPipeline consumes session telemetry from Redis, runs the
// detection engine and fans detection records out to the configured
// sinks.
type DetectionPipeline struct {
	consumer      *inputredis.Consumer
	engine        *engine.Engine
	writer        ResultWriter
	stateStore    *sessionstate.RedisStore
	metrics       *metrics.Metrics
	workers       int
	batchSize     int
	flushInterval time.Duration
}

// NewDetectionPipeline creates a pipeline. The state store is optional.
func NewDetectionPipeline(consumer *inputredis.Consumer, eng *engine.Engine, writer ResultWriter, stateStore *sessionstate.RedisStore, m *metrics.Metrics, workers, batchSize int, flushInterval time.Duration) *DetectionPipeline {
	return &DetectionPipeline{
		consumer:      consumer,
		engine:        eng,
		writer:        writer,
		stateStore:    stateStore,
		metrics:       m,
		workers:       workers,
		batchSize:     batchSize,
		flushInterval: flushInterval,
	}
}

// Run starts the pipeline loop and blocks until the context is done.
func (p *DetectionPipeline) Run(ctx context.Context) error {
	logger.Infof("Detection pipeline started")

	if p.workers <= 0 {
		p.workers = 8
	}
	if p.batchSize <= 0 {
		p.batchSize = 500
	}
	if p.flushInterval <= 0 {
		p.flushInterval = 2 * time.Second
	}

	msgCh := make(chan []byte, p.workers*4)
	recordCh := make(chan *models.DetectionRecord, p.workers*4)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		p.readLoop(ctx, msgCh)
		close(msgCh)
	}()

	var workerWg sync.WaitGroup
	for i := 0; i < p.workers; i++ {
		workerWg.Add(1)
		go func() {
			defer workerWg.Done()
			p.workerLoop(msgCh, recordCh)
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		p.writeLoop(ctx, recordCh)
	}()

	<-ctx.Done()
	workerWg.Wait()
	close(recordCh)
	wg.Wait()
	return ctx.Err()
}

// Close releases pipeline resources.
func (p *DetectionPipeline) Close() error {
	if p.stateStore != nil {
		if err := p.stateStore.Close(); err != nil {
			logger.Errorf("Failed to close session-state store: %v", err)
		}
	}
	if p.writer != nil {
		if err := p.writer.Close(); err != nil {
			logger.Errorf("Failed to close result writer: %v", err)
		}
	}
	if p.consumer != nil {
		return p.consumer.Close()
	}
	return nil
}

func (p *DetectionPipeline) readLoop(ctx context.Context, out chan<- []byte) {
	for {
		payload, err := p.consumer.Pop(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Errorf("Failed to pop telemetry message: %v", err)
			time.Sleep(500 * time.Millisecond)
			continue
		}
		if payload == nil {
			continue
		}
		out <- payload
	}
}

func (p *DetectionPipeline) workerLoop(in <-chan []byte, out chan<- *models.DetectionRecord) {
	for payload := range in {
		snap, err := telemetry.Parse(payload)
		if err != nil {
			logger.Warnf("Failed to parse telemetry payload: %v", err)
			continue
		}

		started := time.Now()
		result, err := p.engine.DetectFields(snap.Features)
		if err != nil {
			// Incomplete vectors are an input error, not a verdict.
			logger.Warnf("Rejected telemetry for session %s: %v", snap.SessionID, err)
			continue
		}
		if p.metrics != nil {
			p.metrics.ObserveDetection(result, time.Since(started))
		}

		observed := snap.ObservedAt
		if observed.IsZero() {
			observed = started.UTC()
		}
		out <- &models.DetectionRecord{
			RecordID:   uuid.NewString(),
			SessionID:  snap.SessionID,
			ObservedAt: observed,
			Result:     result,
		}
	}
}

func (p *DetectionPipeline) writeLoop(ctx context.Context, in <-chan *models.DetectionRecord) {
	ticker := time.NewTicker(p.flushInterval)
	defer ticker.Stop()

	var batch []*models.DetectionRecord

	flush := func() {
		if len(batch) == 0 {
			return
		}
		for {
			if err := p.writer.WriteResults(batch); err != nil {
				logger.Errorf("Failed to write detection records: %v", err)
				if p.metrics != nil {
					p.metrics.IncrementSinkError("result")
				}
				select {
				case <-ctx.Done():
					return
				case <-time.After(1 * time.Second):
				}
				continue
			}
			break
		}
		if p.stateStore != nil {
			// Session state is advisory; a failed update never blocks
			// the primary sink.
			if err := p.stateStore.WriteRecords(batch); err != nil {
				logger.Warnf("Failed to update session state: %v", err)
				if p.metrics != nil {
					p.metrics.IncrementSinkError("session_state")
				}
			}
		}
		batch = nil
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return
		case <-ticker.C:
			flush()
		case record, ok := <-in:
			if !ok {
				flush()
				return
			}
			batch = append(batch, record)
			if len(batch) >= p.batchSize {
				flush()
			}
		}
	}
}
