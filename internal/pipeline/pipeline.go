package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/retroscale/retroscale/internal/config"
	"github.com/retroscale/retroscale/internal/decoder"
	"github.com/retroscale/retroscale/internal/ffmpeg"
	"github.com/retroscale/retroscale/internal/frame"
)

// Detector probes input files; satisfied by ffmpeg.Detector.
type Detector interface {
	Detect(ctx context.Context, path string) (*ffmpeg.Properties, error)
}

// ClipOpener opens probed files as clips; satisfied by decoder.Chain.
type ClipOpener interface {
	Open(ctx context.Context, path string, props *ffmpeg.Properties) (frame.Clip, error)
}

// SinkFactory creates the output sink for one export. The production
// implementation launches the encoder subprocess.
type SinkFactory func(opts ffmpeg.EncodeOptions, geom ffmpeg.Geometry, outputPath string) (FrameSink, error)

// Result summarizes one completed enhancement.
type Result struct {
	Input      string
	Output     string
	Properties *ffmpeg.Properties
	Frames     int
}

// Pipeline runs the full enhancement flow for single files. It is stateless
// across runs and safe for concurrent use by multiple workers.
type Pipeline struct {
	detector Detector
	opener   ClipOpener
	sink     SinkFactory
	caps     ffmpeg.Capabilities
	filters  config.FiltersConfig
	encoder  config.EncoderConfig
	logger   *slog.Logger
}

// New assembles a pipeline from its collaborators.
func New(detector Detector, opener ClipOpener, sink SinkFactory, caps ffmpeg.Capabilities,
	filters config.FiltersConfig, encoder config.EncoderConfig, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		detector: detector,
		opener:   opener,
		sink:     sink,
		caps:     caps,
		filters:  filters,
		encoder:  encoder,
		logger:   logger,
	}
}

// NewDefault assembles the production pipeline: ffprobe detection, the
// decode chain (hardware first when available), and the encoder streamer.
func NewDefault(cfg *config.Config, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	caps := ffmpeg.NewHostCapabilities(cfg.Encoder.BinaryPath, logger)
	chain := decoder.NewChain(logger,
		decoder.NewHardwarePipeOpener(cfg.Encoder.BinaryPath, caps, logger),
		decoder.NewPipeOpener(cfg.Encoder.BinaryPath, logger),
	)
	sink := func(opts ffmpeg.EncodeOptions, geom ffmpeg.Geometry, outputPath string) (FrameSink, error) {
		return ffmpeg.NewStreamer(cfg.Encoder.BinaryPath, opts, geom, outputPath, cfg.Encoder.WriteBuffer.Int(), logger)
	}
	return New(
		ffmpeg.NewDetector(cfg.Encoder.ProbePath, logger),
		chain,
		sink,
		caps,
		cfg.Filters,
		cfg.Encoder,
		logger,
	)
}

// Process enhances one file end to end. The context cancels the run between
// frames; a cancelled run leaves no usable output.
func (p *Pipeline) Process(ctx context.Context, inputPath, outputPath string, progress ProgressFunc) (*Result, error) {
	logger := p.logger.With(slog.String("input", inputPath))

	safeProgress(logger, progress, StageDetect, progressDetect)
	props, err := p.detector.Detect(ctx, inputPath)
	if err != nil {
		return nil, err
	}
	if !ffmpeg.IsSDResolution(props.Width, props.Height) {
		logger.Warn("input is above SD resolution, enhancing anyway",
			slog.Int("width", props.Width), slog.Int("height", props.Height))
	}

	safeProgress(logger, progress, StageLoad, progressLoad)
	clip, err := p.opener.Open(ctx, inputPath, props)
	if err != nil {
		return nil, err
	}
	defer clip.Close()

	safeProgress(logger, progress, StageTransform, progressTransform)
	chain := BuildChain(p.filters, props.Interlaced)
	filtered := ApplyChain(clip, chain)

	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}

	opts := ffmpeg.EncodeOptions{
		Codec:             p.encoder.Codec,
		CRF:               p.encoder.CRF,
		Preset:            p.encoder.Preset,
		UseGPU:            p.encoder.UseGPU && p.caps != nil && p.caps.HasNVENC(ctx),
		OutputPixelFormat: p.encoder.OutputPixelFormat,
	}
	num, den := filtered.FPS()
	geom := ffmpeg.Geometry{
		Width:  filtered.Width(),
		Height: filtered.Height(),
		FPSNum: num,
		FPSDen: den,
	}

	safeProgress(logger, progress, StageExport, progressExportBase)
	sink, err := p.sink(opts, geom, outputPath)
	if err != nil {
		return nil, err
	}

	session := NewExportSession(filtered, sink, logger)
	frames, err := session.Run(ctx, progress)
	if err != nil {
		return nil, err
	}

	safeProgress(logger, progress, StageDone, progressDone)
	logger.Info("enhancement complete",
		slog.String("output", outputPath),
		slog.Int("frames", frames),
		slog.String("encoder", ffmpeg.EncoderName(opts.Codec, opts.UseGPU)),
	)

	return &Result{
		Input:      inputPath,
		Output:     outputPath,
		Properties: props,
		Frames:     frames,
	}, nil
}
