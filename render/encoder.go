package render

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"StoryReel-server/errs"
	"StoryReel-server/models"
)

// ExportQuality is the caller's resolution/bitrate choice for one render.
type ExportQuality struct {
	Width   int `json:"width"`
	Height  int `json:"height"`
	Bitrate int `json:"bitrate"` // kbit/s, 0 = encoder default
}

type EncodeJob struct {
	Manifest   *models.Manifest
	Quality    ExportQuality
	OutputPath string
}

// Encoder turns a manifest into a video file. Tests substitute a mock; the
// production implementation shells out to ffmpeg.
type Encoder interface {
	Encode(ctx context.Context, job EncodeJob) error
}

type FFmpegEncoder struct {
	Bin       string
	ExtraArgs []string
}

func NewFFmpegEncoder(bin string, extraArgs []string) *FFmpegEncoder {
	if bin == "" {
		bin = "ffmpeg"
	}
	return &FFmpegEncoder{Bin: bin, ExtraArgs: extraArgs}
}

func (e *FFmpegEncoder) Encode(ctx context.Context, job EncodeJob) error {
	args, err := buildFFmpegArgs(job)
	if err != nil {
		return err
	}
	args = append(args, e.ExtraArgs...)
	args = append(args, job.OutputPath)

	cmd := exec.CommandContext(ctx, e.Bin, args...)
	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output

	if err := cmd.Run(); err != nil {
		tail := output.String()
		if len(tail) > 2000 {
			tail = tail[len(tail)-2000:]
		}
		return errs.Wrap(errs.EncodeFailure, err, fmt.Sprintf("ffmpeg failed: %s", tail))
	}
	return nil
}

// buildFFmpegArgs assembles the input list and filter graph: one looped image
// input per scene, zoompan for the scene's motion effect, xfade joins with
// the manifest's transition duration, and concatenated narration audio.
func buildFFmpegArgs(job EncodeJob) ([]string, error) {
	m := job.Manifest
	n := len(m.Scenes)
	if n == 0 {
		return nil, errs.New(errs.InvalidState, "manifest has no scenes")
	}

	w, h := job.Quality.Width, job.Quality.Height
	if w <= 0 || h <= 0 {
		w, h = m.Width, m.Height
	}

	args := []string{"-y"}
	// scene image inputs: 0..n-1
	for _, scene := range m.Scenes {
		args = append(args,
			"-loop", "1",
			"-t", fmt.Sprintf("%.3f", scene.DurationSec),
			"-i", scene.ImagePath,
		)
	}
	// audio inputs: n..2n-1, silence where a scene has no narration
	for _, scene := range m.Scenes {
		if scene.AudioPath != "" {
			args = append(args, "-i", scene.AudioPath)
		} else {
			args = append(args,
				"-f", "lavfi",
				"-t", fmt.Sprintf("%.3f", scene.DurationSec),
				"-i", "anullsrc=channel_layout=stereo:sample_rate=44100",
			)
		}
	}

	var filter strings.Builder
	for i, scene := range m.Scenes {
		frames := int(scene.DurationSec * float64(m.FPS))
		if frames < 1 {
			frames = 1
		}
		fmt.Fprintf(&filter,
			"[%d:v]scale=%d:%d:force_original_aspect_ratio=increase,crop=%d:%d,%s,setsar=1,fps=%d[v%d];",
			i, w, h, w, h, motionFilter(scene.Motion, frames, w, h), m.FPS, i)
	}

	// chain xfade joins; offsets follow the deterministic timeline
	last := "v0"
	offset := 0.0
	for i := 1; i < n; i++ {
		k := transitionOverlap(m, i-1)
		offset += m.Scenes[i-1].DurationSec - k
		out := fmt.Sprintf("vx%d", i)
		if k > 0 {
			fmt.Fprintf(&filter, "[%s][v%d]xfade=transition=%s:duration=%.3f:offset=%.3f[%s];",
				last, i, xfadeName(m.Scenes[i-1].Transition), k, offset, out)
		} else {
			fmt.Fprintf(&filter, "[%s][v%d]concat=n=2:v=1:a=0[%s];", last, i, out)
		}
		last = out
	}

	for i := range m.Scenes {
		fmt.Fprintf(&filter, "[%d:a]", n+i)
	}
	fmt.Fprintf(&filter, "concat=n=%d:v=0:a=1[aout]", n)

	args = append(args,
		"-filter_complex", filter.String(),
		"-map", "["+last+"]",
		"-map", "[aout]",
		"-c:v", "libx264",
		"-pix_fmt", "yuv420p",
		"-r", fmt.Sprintf("%d", m.FPS),
		"-c:a", "aac",
	)
	if job.Quality.Bitrate > 0 {
		args = append(args, "-b:v", fmt.Sprintf("%dk", job.Quality.Bitrate))
	}
	return args, nil
}

// motionFilter maps a scene motion effect onto a zoompan expression that
// interpolates linearly across the scene's frames.
func motionFilter(motion string, frames, w, h int) string {
	base := fmt.Sprintf("zoompan=d=%d:s=%dx%d:fps=0", frames, w, h)
	switch motion {
	case models.MotionZoomIn:
		return fmt.Sprintf("zoompan=z='1+0.2*on/%d':x='iw/2-(iw/zoom/2)':y='ih/2-(ih/zoom/2)':d=%d:s=%dx%d", frames, frames, w, h)
	case models.MotionZoomOut:
		return fmt.Sprintf("zoompan=z='1.2-0.2*on/%d':x='iw/2-(iw/zoom/2)':y='ih/2-(ih/zoom/2)':d=%d:s=%dx%d", frames, frames, w, h)
	case models.MotionPanLeft:
		return fmt.Sprintf("zoompan=z=1.2:x='(iw-iw/zoom)*(1-on/%d)':y='ih/2-(ih/zoom/2)':d=%d:s=%dx%d", frames, frames, w, h)
	case models.MotionPanRight:
		return fmt.Sprintf("zoompan=z=1.2:x='(iw-iw/zoom)*on/%d':y='ih/2-(ih/zoom/2)':d=%d:s=%dx%d", frames, frames, w, h)
	case models.MotionPanUp:
		return fmt.Sprintf("zoompan=z=1.2:x='iw/2-(iw/zoom/2)':y='(ih-ih/zoom)*(1-on/%d)':d=%d:s=%dx%d", frames, frames, w, h)
	case models.MotionPanDown:
		return fmt.Sprintf("zoompan=z=1.2:x='iw/2-(iw/zoom/2)':y='(ih-ih/zoom)*on/%d':d=%d:s=%dx%d", frames, frames, w, h)
	}
	return base
}

func xfadeName(transition string) string {
	switch transition {
	case models.TransitionDissolve:
		return "dissolve"
	case models.TransitionWipeL:
		return "wipeleft"
	case models.TransitionWipeR:
		return "wiperight"
	case models.TransitionWipeU:
		return "wipeup"
	case models.TransitionWipeD:
		return "wipedown"
	default:
		return "fade"
	}
}
