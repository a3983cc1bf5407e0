// Package device provides the host audio devices used by the live session:
// a microphone backed by a capture subprocess and speakers backed by oto or
// a paced discard sink.
package device

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/MrWong99/aura/pkg/audio"
)

// ErrMicrophoneUnavailable wraps every failure to acquire the microphone.
var ErrMicrophoneUnavailable = errors.New("device: microphone unavailable")

// DefaultCaptureCommand records mono float32 little-endian PCM to stdout via
// ALSA. The "{rate}" placeholder is replaced with the requested sample rate.
var DefaultCaptureCommand = []string{"arecord", "-q", "-t", "raw", "-f", "FLOAT_LE", "-c", "1", "-r", "{rate}"}

// blockSamples is the number of samples read from the subprocess per block.
const blockSamples = 1024

// startTimeout bounds how long Open waits for the recorder's first block.
// A recorder still silent after it is assumed to be warming up.
const startTimeout = 2 * time.Second

var _ audio.Microphone = (*CommandMicrophone)(nil)

// CommandMicrophone captures audio by running an external recorder (arecord,
// ffmpeg, sox, ...) that writes raw f32le mono samples to stdout.
type CommandMicrophone struct {
	// Command is the argv of the recorder. Empty uses DefaultCaptureCommand.
	Command []string
}

// NewCommandMicrophone returns a microphone running argv. An empty argv uses
// [DefaultCaptureCommand].
func NewCommandMicrophone(argv []string) *CommandMicrophone {
	return &CommandMicrophone{Command: argv}
}

// Open implements [audio.Microphone].
func (m *CommandMicrophone) Open(ctx context.Context, sampleRate int) (audio.InputStream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	argv := m.Command
	if len(argv) == 0 {
		argv = DefaultCaptureCommand
	}
	args := make([]string, len(argv))
	for i, a := range argv {
		args[i] = strings.ReplaceAll(a, "{rate}", strconv.Itoa(sampleRate))
	}

	cmd := exec.Command(args[0], args[1:]...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMicrophoneUnavailable, err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: start %s: %v", ErrMicrophoneUnavailable, args[0], err)
	}

	s := &commandStream{
		cmd:   cmd,
		rate:  sampleRate,
		ch:    make(chan []float32, 16),
		done:  make(chan struct{}),
		ready: make(chan struct{}),
	}
	go s.read(stdout)

	timer := time.NewTimer(startTimeout)
	defer timer.Stop()
	select {
	case <-s.ready:
	case <-timer.C:
		slog.Warn("device: recorder slow to start", "command", args[0], "timeout", startTimeout)
	case <-ctx.Done():
		_ = s.Close()
		return nil, ctx.Err()
	}
	if err := s.startErr(); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("%w: %v", ErrMicrophoneUnavailable, err)
	}
	slog.Debug("device: microphone opened", "command", args[0], "sample_rate", sampleRate)
	return s, nil
}

type commandStream struct {
	cmd  *exec.Cmd
	rate int
	ch   chan []float32
	done chan struct{}

	// ready is closed once the first block is read or the recorder exits.
	ready     chan struct{}
	readyOnce sync.Once

	mu       sync.Mutex
	err      error
	closed   bool
	gotAudio bool
	once     sync.Once
}

func (s *commandStream) markReady() { s.readyOnce.Do(func() { close(s.ready) }) }

func (s *commandStream) Samples() <-chan []float32 { return s.ch }
func (s *commandStream) SampleRate() int           { return s.rate }

func (s *commandStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// startErr reports a recorder that exited before delivering any audio.
func (s *commandStream) startErr() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gotAudio {
		return nil
	}
	return s.err
}

// Close kills the recorder. The samples channel closes once its stdout is
// drained.
func (s *commandStream) Close() error {
	s.once.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		close(s.done)
		if s.cmd.Process != nil {
			_ = s.cmd.Process.Kill()
		}
	})
	return nil
}

func (s *commandStream) read(r io.Reader) {
	defer close(s.ch)
	defer s.markReady()
	br := bufio.NewReaderSize(r, blockSamples*4)
	buf := make([]byte, blockSamples*4)
	for {
		n, err := io.ReadFull(br, buf)
		if n >= 4 {
			s.mu.Lock()
			s.gotAudio = true
			s.mu.Unlock()
			block := make([]float32, n/4)
			for i := range block {
				block[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
			}
			s.markReady()
			select {
			case s.ch <- block:
			case <-s.done:
			}
		}
		if err != nil {
			werr := s.cmd.Wait()
			s.mu.Lock()
			switch {
			case s.closed:
			case werr != nil:
				s.err = fmt.Errorf("device: recorder exited: %w", werr)
			case !s.gotAudio:
				s.err = errors.New("device: recorder exited without audio")
			}
			s.mu.Unlock()
			return
		}
	}
}
