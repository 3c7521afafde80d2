package video

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"
)

// ErrEncoderBusy is returned by Start while a previous capture is running.
var ErrEncoderBusy = errors.New("encoder already running")

// FFmpegConfig describes the capture device and the ffmpeg binary.
type FFmpegConfig struct {
	Path        string // defaults to "ffmpeg"
	InputFormat string // e.g. v4l2, avfoundation, dshow
	Input       string
	FrameRate   int
	// KillTimeout bounds how long Stop waits for a graceful exit before killing.
	KillTimeout time.Duration
}

// FFmpegEncoder records a capture device with an ffmpeg child process.
// Stop asks ffmpeg to finish by writing "q" to its stdin so the container
// trailer is written.
type FFmpegEncoder struct {
	cfg FFmpegConfig
	log *slog.Logger

	mu     sync.Mutex
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stderr *tailBuffer
	path   string
	exited chan struct{}
	err    error
}

// NewFFmpegEncoder creates an encoder. A nil logger uses slog.Default.
func NewFFmpegEncoder(cfg FFmpegConfig, log *slog.Logger) *FFmpegEncoder {
	if cfg.Path == "" {
		cfg.Path = "ffmpeg"
	}
	if cfg.FrameRate <= 0 {
		cfg.FrameRate = 30
	}
	if cfg.KillTimeout <= 0 {
		cfg.KillTimeout = 10 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	return &FFmpegEncoder{cfg: cfg, log: log.With("component", "ffmpeg")}
}

// Args returns the ffmpeg arguments used to record into path.
func (f *FFmpegEncoder) Args(path string, at time.Time) []string {
	args := []string{"-hide_banner", "-loglevel", "error", "-y"}
	if f.cfg.InputFormat != "" {
		args = append(args, "-f", f.cfg.InputFormat)
	}
	args = append(args,
		"-framerate", strconv.Itoa(f.cfg.FrameRate),
		"-i", f.cfg.Input,
		"-c:v", "libx264",
		"-preset", "veryfast",
		"-pix_fmt", "yuv420p",
		"-metadata", "creation_time="+at.UTC().Format(time.RFC3339Nano),
		path,
	)
	return args
}

func (f *FFmpegEncoder) Start(path string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cmd != nil {
		return ErrEncoderBusy
	}

	cmd := exec.Command(f.cfg.Path, f.Args(path, at)...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("ffmpeg stdin: %w", err)
	}
	stderr := &tailBuffer{max: 4096}
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("starting ffmpeg: %w", err)
	}

	f.cmd = cmd
	f.stdin = stdin
	f.stderr = stderr
	f.path = path
	f.exited = make(chan struct{})
	f.err = nil

	go f.wait(cmd, f.exited)

	f.log.Debug("ffmpeg started", "pid", cmd.Process.Pid, "path", path)
	return nil
}

func (f *FFmpegEncoder) wait(cmd *exec.Cmd, exited chan struct{}) {
	err := cmd.Wait()
	f.mu.Lock()
	if err != nil {
		f.err = fmt.Errorf("ffmpeg exited: %w: %s", err, strings.TrimSpace(f.stderr.String()))
	}
	f.mu.Unlock()
	close(exited)
}

// Stop writes "q" to ffmpeg and returns immediately. The returned channel
// yields the exit error, if any, once the process has gone.
func (f *FFmpegEncoder) Stop() (<-chan error, error) {
	f.mu.Lock()
	cmd, stdin, exited := f.cmd, f.stdin, f.exited
	f.mu.Unlock()
	if cmd == nil {
		return nil, ErrNotRecording
	}

	if _, err := io.WriteString(stdin, "q"); err != nil {
		f.log.Debug("ffmpeg stdin write failed", "error", err)
	}
	_ = stdin.Close()

	done := make(chan error, 1)
	go func() {
		defer close(done)
		select {
		case <-exited:
		case <-time.After(f.cfg.KillTimeout):
			f.log.Warn("ffmpeg did not exit in time, killing", "timeout", f.cfg.KillTimeout)
			_ = cmd.Process.Kill()
			<-exited
		}

		f.mu.Lock()
		err := f.err
		f.cmd = nil
		f.mu.Unlock()
		done <- err
	}()
	return done, nil
}

// Cancel kills ffmpeg and removes the partial output.
func (f *FFmpegEncoder) Cancel() error {
	f.mu.Lock()
	cmd, exited, path := f.cmd, f.exited, f.path
	f.mu.Unlock()
	if cmd == nil {
		return ErrNotRecording
	}

	_ = f.stdin.Close()
	if err := cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("killing ffmpeg: %w", err)
	}
	<-exited

	f.mu.Lock()
	f.cmd = nil
	f.mu.Unlock()

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	mu  sync.Mutex
	buf []byte
	max int
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.max; over > 0 {
		t.buf = t.buf[over:]
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return string(t.buf)
}
