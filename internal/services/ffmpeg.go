package services

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/bobarin/lessoncast/internal/logger"
	"github.com/bobarin/lessoncast/internal/models"
)

// Output / rendering constants
const (
	videoFPS        = 30
	audioSampleRate = 44100
	stderrTailBytes = 2048
)

// Resolution returns the output size for a quality preset. Unknown presets
// fall back to 1080p; portrait swaps the edges.
func Resolution(settings models.VideoSettings) (int, int) {
	var w, h int
	switch settings.Quality {
	case models.Quality720p:
		w, h = 1280, 720
	case models.Quality4K:
		w, h = 3840, 2160
	default:
		w, h = 1920, 1080
	}
	if settings.Portrait() {
		return h, w
	}
	return w, h
}

// AudioSegment is one slide's narration and the span it must fill.
type AudioSegment struct {
	Path     string
	Duration float64
}

// FrameSegment is one slide's still frame and how long it is held.
type FrameSegment struct {
	Path     string
	Duration float64
}

type MuxRequest struct {
	Frames       []FrameSegment
	AudioPath    string
	ManifestPath string // concat demuxer list, written by Mux
	OutputPath   string
	Width        int
	Height       int
}

// ---------------------------------------------------------------------------
// FFmpegService
// ---------------------------------------------------------------------------

type FFmpegService struct {
	ffmpegBin  string
	ffprobeBin string
	log        *logger.Logger
}

func NewFFmpegService(log *logger.Logger) *FFmpegService {
	if log == nil {
		log = logger.Nop()
	}
	return &FFmpegService{
		ffmpegBin:  "ffmpeg",
		ffprobeBin: "ffprobe",
		log:        log.With("component", "FFmpeg"),
	}
}

// ConcatAudio joins the narration segments back to back. Each segment is
// resampled to a common format, padded with silence and trimmed so it lasts
// exactly its slide's duration.
func (s *FFmpegService) ConcatAudio(ctx context.Context, segments []AudioSegment, outputPath string) error {
	if len(segments) == 0 {
		return fmt.Errorf("no audio segments to concatenate")
	}

	args := make([]string, 0, len(segments)*2+10)
	for _, seg := range segments {
		args = append(args, "-i", seg.Path)
	}
	args = append(args,
		"-filter_complex", buildAudioConcatFilter(segments),
		"-map", "[aout]",
		"-c:a", "libmp3lame",
		"-b:a", "192k",
		"-y",
		outputPath,
	)

	s.log.Debug("concatenating audio", "segments", len(segments), "output", outputPath)
	if err := s.run(ctx, s.ffmpegBin, args...); err != nil {
		return fmt.Errorf("ffmpeg concat audio failed: %w", err)
	}
	return nil
}

// Mux holds each frame for its duration over the concatenated narration and
// encodes an H.264/AAC MP4 at the requested resolution.
func (s *FFmpegService) Mux(ctx context.Context, req MuxRequest) error {
	if len(req.Frames) == 0 {
		return fmt.Errorf("no frames to mux")
	}

	if err := os.WriteFile(req.ManifestPath, []byte(buildConcatManifest(req.Frames)), 0o644); err != nil {
		return fmt.Errorf("failed to write concat manifest: %w", err)
	}

	args := []string{
		"-f", "concat",
		"-safe", "0",
		"-i", req.ManifestPath, // Input 0: frames held for their slide durations
		"-i", req.AudioPath, // Input 1: concatenated narration
		"-map", "0:v",
		"-map", "1:a",
		"-vf", buildScaleFilter(req.Width, req.Height),
		"-r", strconv.Itoa(videoFPS),
		"-c:v", "libx264",
		"-pix_fmt", "yuv420p",
		"-c:a", "aac",
		"-b:a", "192k",
		"-shortest",
		"-movflags", "+faststart",
		"-y",
		req.OutputPath,
	}

	s.log.Debug("muxing video", "frames", len(req.Frames), "width", req.Width, "height", req.Height)
	if err := s.run(ctx, s.ffmpegBin, args...); err != nil {
		return fmt.Errorf("ffmpeg mux failed: %w", err)
	}
	return nil
}

// Thumbnail converts a frame into a JPEG preview.
func (s *FFmpegService) Thumbnail(ctx context.Context, framePath, outputPath string) error {
	args := []string{
		"-i", framePath,
		"-vframes", "1",
		"-q:v", "2",
		"-y",
		outputPath,
	}
	if err := s.run(ctx, s.ffmpegBin, args...); err != nil {
		return fmt.Errorf("ffmpeg thumbnail failed: %w", err)
	}
	return nil
}

// ProbeDuration returns the duration of a media file in seconds using ffprobe.
func (s *FFmpegService) ProbeDuration(ctx context.Context, path string) (float64, error) {
	args := []string{
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	}

	cmd := exec.CommandContext(ctx, s.ffprobeBin, args...)
	output, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe failed: %w", err)
	}

	durationSec, err := strconv.ParseFloat(strings.TrimSpace(string(output)), 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse duration: %w", err)
	}
	return durationSec, nil
}

func (s *FFmpegService) run(ctx context.Context, bin string, args ...string) error {
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		tail := stderr.Bytes()
		if len(tail) > stderrTailBytes {
			tail = tail[len(tail)-stderrTailBytes:]
		}
		return fmt.Errorf("%w: %s", err, strings.TrimSpace(string(tail)))
	}
	return nil
}

func formatSeconds(d float64) string {
	return strconv.FormatFloat(d, 'f', 3, 64)
}

// buildAudioConcatFilter normalizes every input to 44.1 kHz stereo, fits it
// to its segment duration and concatenates the results into [aout].
func buildAudioConcatFilter(segments []AudioSegment) string {
	var b strings.Builder
	for i, seg := range segments {
		d := formatSeconds(seg.Duration)
		fmt.Fprintf(&b, "[%d:a]aresample=%d,aformat=sample_fmts=fltp:channel_layouts=stereo,apad=whole_dur=%s,atrim=duration=%s[a%d];",
			i, audioSampleRate, d, d, i)
	}
	for i := range segments {
		fmt.Fprintf(&b, "[a%d]", i)
	}
	fmt.Fprintf(&b, "concat=n=%d:v=0:a=1[aout]", len(segments))
	return b.String()
}

// buildConcatManifest renders the concat demuxer list. The last file is
// repeated because the demuxer ignores the final duration directive.
func buildConcatManifest(frames []FrameSegment) string {
	var b strings.Builder
	for _, f := range frames {
		fmt.Fprintf(&b, "file '%s'\nduration %s\n", escapeConcatPath(f.Path), formatSeconds(f.Duration))
	}
	fmt.Fprintf(&b, "file '%s'\n", escapeConcatPath(frames[len(frames)-1].Path))
	return b.String()
}

// escapeConcatPath quotes a path for a single-quoted concat manifest entry.
func escapeConcatPath(path string) string {
	return strings.ReplaceAll(path, "'", `'\''`)
}

// buildScaleFilter letterboxes the frame into the output size.
func buildScaleFilter(w, h int) string {
	return fmt.Sprintf("scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2,setsar=1,format=yuv420p",
		w, h, w, h)
}
