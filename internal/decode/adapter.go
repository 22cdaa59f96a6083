package decode

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strconv"
	"sync"
	"time"
)

// ErrProbeFailed indicates the external decoder binary is unavailable.
// The probe runs exactly once per process; every later call observes the
// same result without re-checking.
var ErrProbeFailed = errors.New("external decoder unavailable")

// SpawnError reports a failure to launch the external decoder process
// for a specific track
type SpawnError struct {
	Binary string
	Path   string
	Err    error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("failed to spawn decoder %s for %s: %v", e.Binary, e.Path, e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }

// TruncatedError reports that the decoder process terminated before
// producing the expected amount of data. BytesProduced and ExitCode let
// the caller distinguish a corrupt file from an environment problem.
type TruncatedError struct {
	Path          string
	BytesProduced int64
	ExitCode      int
	Stderr        string
}

func (e *TruncatedError) Error() string {
	return fmt.Sprintf("decoder stream truncated for %s: %d bytes produced, exit code %d",
		e.Path, e.BytesProduced, e.ExitCode)
}

// AdapterConfig configures the external decoder invocation
type AdapterConfig struct {
	Binary      string // decoder binary name, default "ffmpeg"
	Channels    int    // output channel count, default 2
	SampleRate  int    // output sample rate, default 44100
	ChunkFrames int    // frames per emitted chunk, default 1024
}

// Adapter wraps an external decoding process (ffmpeg) that emits raw
// s16le PCM on stdout for a given input file. The binary's presence and
// basic functioning are probed once at first use, not once per track.
type Adapter struct {
	binary      string
	channels    int
	sampleRate  int
	chunkFrames int

	probeOnce sync.Once
	probeErr  error

	// test seams
	lookPath   func(string) (string, error)
	runVersion func(ctx context.Context, binary string) error
	argv       func(path string) []string
}

// NewAdapter creates an adapter for the configured decoder binary
func NewAdapter(cfg AdapterConfig) *Adapter {
	if cfg.Binary == "" {
		cfg.Binary = "ffmpeg"
	}
	if cfg.Channels <= 0 {
		cfg.Channels = 2
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 44100
	}
	if cfg.ChunkFrames <= 0 {
		cfg.ChunkFrames = 1024
	}

	slog.Debug("creating decode adapter",
		"binary", cfg.Binary,
		"channels", cfg.Channels,
		"sample_rate", cfg.SampleRate,
		"chunk_frames", cfg.ChunkFrames)

	a := &Adapter{
		binary:      cfg.Binary,
		channels:    cfg.Channels,
		sampleRate:  cfg.SampleRate,
		chunkFrames: cfg.ChunkFrames,
		lookPath:    exec.LookPath,
	}
	a.runVersion = a.versionCheck
	a.argv = a.defaultArgv
	return a
}

// Channels returns the channel count of emitted chunks
func (a *Adapter) Channels() int { return a.channels }

// SampleRate returns the sample rate of emitted chunks
func (a *Adapter) SampleRate() int { return a.sampleRate }

// Probe verifies the decoder binary once per process lifetime: the
// binary must resolve on PATH and exit zero for a version check. All
// subsequent calls return the cached result.
func (a *Adapter) Probe() error {
	a.probeOnce.Do(func() {
		path, err := a.lookPath(a.binary)
		if err != nil {
			slog.Warn("decoder binary not found", "binary", a.binary, "error", err)
			a.probeErr = fmt.Errorf("%w: %s not on PATH", ErrProbeFailed, a.binary)
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()

		if err := a.runVersion(ctx, path); err != nil {
			slog.Warn("decoder version check failed", "binary", path, "error", err)
			a.probeErr = fmt.Errorf("%w: version check failed: %v", ErrProbeFailed, err)
			return
		}

		slog.Info("decoder capability probe succeeded", "binary", path)
	})
	return a.probeErr
}

func (a *Adapter) versionCheck(ctx context.Context, binary string) error {
	return exec.CommandContext(ctx, binary, "-version").Run()
}

// defaultArgv builds the ffmpeg invocation emitting raw s16le PCM on stdout
func (a *Adapter) defaultArgv(path string) []string {
	return []string{
		"-hide_banner",
		"-loglevel", "error",
		"-i", path,
		"-f", "s16le",
		"-acodec", "pcm_s16le",
		"-ac", strconv.Itoa(a.channels),
		"-ar", strconv.Itoa(a.sampleRate),
		"-",
	}
}

// Open spawns the decoder for the given file and returns a lazy, finite,
// non-restartable chunk stream. The context cancels the subprocess.
func (a *Adapter) Open(ctx context.Context, path string) (*Stream, error) {
	if err := a.Probe(); err != nil {
		return nil, err
	}

	cmd := exec.CommandContext(ctx, a.binary, a.argv(path)...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, &SpawnError{Binary: a.binary, Path: path, Err: err}
	}

	if err := cmd.Start(); err != nil {
		return nil, &SpawnError{Binary: a.binary, Path: path, Err: err}
	}

	slog.Debug("decoder process started",
		"binary", a.binary,
		"path", path,
		"pid", cmd.Process.Pid)

	return &Stream{
		path:       path,
		cmd:        cmd,
		stdout:     stdout,
		channels:   a.channels,
		chunkBytes: a.chunkFrames * a.channels * 2,
		frameBytes: a.channels * 2,
	}, nil
}

// Stream yields the chunk sequence produced by one decoder invocation
type Stream struct {
	path       string
	cmd        *exec.Cmd
	stdout     io.ReadCloser
	channels   int
	chunkBytes int
	frameBytes int

	seq      uint64
	produced int64
	finalErr error
	done     bool
}

// Next returns the next chunk of decoded samples, io.EOF after the last
// one, or a TruncatedError if the process died mid-stream
func (s *Stream) Next() (Chunk, error) {
	if s.done {
		if s.finalErr != nil {
			err := s.finalErr
			s.finalErr = nil
			return Chunk{}, err
		}
		return Chunk{}, io.EOF
	}

	buf := make([]byte, s.chunkBytes)
	n, err := io.ReadFull(s.stdout, buf)
	s.produced += int64(n)

	if err == nil {
		return s.emit(buf[:n]), nil
	}

	// Short read: the process is finishing or died. Settle its exit
	// status before deciding between clean EOF and truncation.
	s.done = true
	exitCode := 0
	if werr := s.cmd.Wait(); werr != nil {
		var exitErr *exec.ExitError
		if errors.As(werr, &exitErr) {
			exitCode = exitErr.ExitCode()
		} else {
			exitCode = -1
		}
	}

	truncated := exitCode != 0 || n%s.frameBytes != 0 || s.produced == 0
	if truncated {
		s.finalErr = &TruncatedError{
			Path:          s.path,
			BytesProduced: s.produced,
			ExitCode:      exitCode,
		}
	}

	if n >= s.frameBytes {
		// Deliver the trailing complete frames first; the stored error,
		// if any, surfaces on the following call.
		return s.emit(buf[:n-n%s.frameBytes]), nil
	}

	if s.finalErr != nil {
		err := s.finalErr
		s.finalErr = nil
		return Chunk{}, err
	}
	return Chunk{}, io.EOF
}

func (s *Stream) emit(raw []byte) Chunk {
	samples := make([]int16, len(raw)/2)
	for i := range samples {
		samples[i] = int16(raw[2*i]) | int16(raw[2*i+1])<<8
	}
	s.seq++
	return Chunk{
		Samples: samples,
		Frames:  len(samples) / s.channels,
		Seq:     s.seq,
	}
}

// BytesProduced returns the number of PCM bytes read from the decoder so far
func (s *Stream) BytesProduced() int64 {
	return s.produced
}

// Close terminates the decoder process if it is still running and
// releases the pipe. Safe to call after Next returned io.EOF.
func (s *Stream) Close() error {
	s.stdout.Close()
	if !s.done {
		s.done = true
		if s.cmd.Process != nil {
			s.cmd.Process.Kill()
		}
		s.cmd.Wait()
	}
	return nil
}
