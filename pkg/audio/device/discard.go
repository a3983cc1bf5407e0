package device

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/MrWong99/aura/pkg/audio"
)

var _ audio.Speaker = (*Discard)(nil)

// Discard is a headless speaker. It pulls audio from the source at real-time
// pace and throws it away, so clocked sources such as playback.Timeline keep
// advancing without a sound card.
type Discard struct {
	// Tick is the pull interval. Zero means 20ms.
	Tick time.Duration
}

// Open implements [audio.Speaker].
func (d *Discard) Open(_ context.Context, sampleRate int, src io.Reader) (audio.Sink, error) {
	tick := d.Tick
	if tick <= 0 {
		tick = 20 * time.Millisecond
	}
	samples := max(1, int(int64(sampleRate)*int64(tick)/int64(time.Second)))
	k := &discardSink{done: make(chan struct{}), exited: make(chan struct{})}
	go k.pump(src, make([]byte, samples*2), tick)
	return k, nil
}

type discardSink struct {
	done   chan struct{}
	exited chan struct{}
	once   sync.Once
}

func (k *discardSink) pump(src io.Reader, buf []byte, tick time.Duration) {
	defer close(k.exited)
	t := time.NewTicker(tick)
	defer t.Stop()
	for {
		select {
		case <-k.done:
			return
		case <-t.C:
			if _, err := src.Read(buf); err != nil {
				return
			}
		}
	}
}

func (k *discardSink) Close() error {
	k.once.Do(func() {
		close(k.done)
		<-k.exited
	})
	return nil
}
