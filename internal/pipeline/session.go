package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/retroscale/retroscale/internal/frame"
)

// Stage identifies where a running enhancement currently is.
type Stage string

const (
	StageDetect    Stage = "detect"
	StageLoad      Stage = "load"
	StageTransform Stage = "transform"
	StageExport    Stage = "export"
	StageDone      Stage = "done"
)

// Progress percentages reported at each stage boundary. The export stage
// advances smoothly from its base to 100 as frames are delivered.
const (
	progressDetect     = 0.0
	progressLoad       = 10.0
	progressTransform  = 20.0
	progressExportBase = 80.0
	progressDone       = 100.0
)

// ProgressFunc receives stage transitions and percentage updates. Callbacks
// come from the worker goroutine running the job; implementations must not
// block.
type ProgressFunc func(stage Stage, percent float64)

// safeProgress guards the pipeline against a panicking callback: reporting
// must never take the export down.
func safeProgress(logger *slog.Logger, fn ProgressFunc, stage Stage, percent float64) {
	if fn == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			logger.Warn("progress callback panicked",
				slog.String("stage", string(stage)),
				slog.Any("panic", r))
		}
	}()
	fn(stage, percent)
}

// FrameSink receives normalized frame bytes in order, then an end-of-stream
// signal. The encoder streamer is the production implementation.
type FrameSink interface {
	Write(buf []byte) error
	Finish() error
}

// ExportSession drives one clip through normalization into a sink, frame by
// frame in order. One session per output file; it is not reusable.
type ExportSession struct {
	id     string
	clip   frame.Clip
	sink   FrameSink
	logger *slog.Logger
}

// NewExportSession binds a clip to a sink under a fresh correlation ID.
func NewExportSession(clip frame.Clip, sink FrameSink, logger *slog.Logger) *ExportSession {
	if logger == nil {
		logger = slog.Default()
	}
	id := uuid.NewString()
	return &ExportSession{
		id:     id,
		clip:   clip,
		sink:   sink,
		logger: logger.With(slog.String("session_id", id)),
	}
}

// ID returns the session correlation ID carried through logs.
func (s *ExportSession) ID() string { return s.id }

// Run delivers every frame to the sink and finalizes it. Progress is
// reported from the export base up to 100 as frames complete. A frame or
// sink failure aborts immediately; nothing retries inside a session.
func (s *ExportSession) Run(ctx context.Context, progress ProgressFunc) (int, error) {
	total := s.clip.NumFrames()
	if total <= 0 {
		return 0, fmt.Errorf("clip reports no frames")
	}

	s.logger.Debug("export started", slog.Int("frames", total))

	for i := 0; i < total; i++ {
		if err := ctx.Err(); err != nil {
			return i, err
		}

		f, err := s.clip.GetFrame(ctx, i)
		if err != nil {
			return i, fmt.Errorf("decoding frame %d: %w", i, err)
		}
		buf, err := frame.Normalize(f)
		if err != nil {
			return i, fmt.Errorf("normalizing frame %d: %w", i, err)
		}
		if err := s.sink.Write(buf); err != nil {
			return i, fmt.Errorf("writing frame %d: %w", i, err)
		}

		// Progress counts completed frames, so the last frame lands
		// exactly on 100.
		done := float64(i+1) / float64(total)
		safeProgress(s.logger, progress, StageExport, progressExportBase+done*(progressDone-progressExportBase))
	}

	if err := s.sink.Finish(); err != nil {
		return total, err
	}

	s.logger.Debug("export finished", slog.Int("frames", total))
	return total, nil
}
