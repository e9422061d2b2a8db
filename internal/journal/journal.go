package journal

import (
	"context"
	"log/slog"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/voxmetric/pulse/internal/wire"
)

// Journal pumps the manager's frame tap through the buffer into the
// batch writer.
type Journal struct {
	cfg    Config
	logger *slog.Logger

	frames <-chan wire.Envelope
	buf    *Buffer[Entry]
	writer *Writer

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Stats combines buffer and writer counters.
type Stats struct {
	Buffer BufferStats
	Writer Metrics
}

// New builds a journal over a frame tap. A nil pool disables
// persistence but keeps the pipeline running.
func New(cfg Config, frames <-chan wire.Envelope, db *pgxpool.Pool, logger *slog.Logger) *Journal {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 250
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1024
	}

	buf := NewBuffer[Entry](cfg.BufferSize)
	return &Journal{
		cfg:    cfg,
		logger: logger,
		frames: frames,
		buf:    buf,
		writer: NewWriter(cfg, buf, db, logger),
	}
}

// Start launches the pump and the writer.
func (j *Journal) Start(ctx context.Context) error {
	j.ctx, j.cancel = context.WithCancel(ctx)

	if err := j.writer.Start(ctx); err != nil {
		return err
	}

	j.wg.Add(1)
	go j.pump()

	return nil
}

// Stop halts the pump, then the writer. The writer's final flush drains
// everything still buffered.
func (j *Journal) Stop(ctx context.Context) error {
	if j.cancel != nil {
		j.cancel()
	}
	j.wg.Wait()
	j.buf.Close()

	return j.writer.Stop(ctx)
}

// Stats returns a snapshot of the pipeline counters.
func (j *Journal) Stats() Stats {
	return Stats{
		Buffer: j.buf.Stats(),
		Writer: j.writer.Stats(),
	}
}

// pump moves frames from the tap into the buffer until the tap closes
// or the journal stops.
func (j *Journal) pump() {
	defer j.wg.Done()

	for {
		select {
		case <-j.ctx.Done():
			return
		case env, ok := <-j.frames:
			if !ok {
				j.logger.Debug("frame tap closed")
				return
			}
			if !j.buf.Send(NewEntry(env)) {
				return
			}
		}
	}
}
