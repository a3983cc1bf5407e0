package notify

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
)

// startNATS runs an embedded NATS server on a random port.
func startNATS(t *testing.T) string {
	t.Helper()
	ns, err := server.NewServer(&server.Options{Host: "127.0.0.1", Port: -1, NoLog: true, NoSigs: true})
	if err != nil {
		t.Fatalf("create nats server: %v", err)
	}
	go ns.Start()
	if !ns.ReadyForConnections(5 * time.Second) {
		ns.Shutdown()
		t.Fatal("nats server not ready")
	}
	t.Cleanup(ns.Shutdown)
	return ns.ClientURL()
}

func subscribe(t *testing.T, url, subject string) *nats.Subscription {
	t.Helper()
	nc, err := nats.Connect(url)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(nc.Close)
	sub, err := nc.SubscribeSync(subject)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if err := nc.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}
	return sub
}

func nextEvent(t *testing.T, sub *nats.Subscription) (string, Event) {
	t.Helper()
	msg, err := sub.NextMsg(2 * time.Second)
	if err != nil {
		t.Fatalf("next msg: %v", err)
	}
	var ev Event
	if err := json.Unmarshal(msg.Data, &ev); err != nil {
		t.Fatalf("unmarshal %s: %v", msg.Data, err)
	}
	return msg.Subject, ev
}

func TestPublisher_PublishesEvents(t *testing.T) {
	url := startNATS(t)
	sub := subscribe(t, url, "aura.events.>")

	p, err := ConnectPublisher(url, WithVolumeInterval(0))
	if err != nil {
		t.Fatalf("ConnectPublisher: %v", err)
	}
	t.Cleanup(func() { _ = p.Close() })
	if !p.Healthy() {
		t.Fatal("publisher not healthy after connect")
	}

	p.Volume(0.25)
	p.MemoryUpdated()
	p.Error("Connection error occurred.")
	p.Closed()

	want := []struct {
		subject string
		typ     string
	}{
		{"aura.events.volume", EventVolume},
		{"aura.events.memory", EventMemoryUpdated},
		{"aura.events.error", EventError},
		{"aura.events.closed", EventClosed},
	}
	for _, w := range want {
		subj, ev := nextEvent(t, sub)
		if subj != w.subject || ev.Type != w.typ {
			t.Errorf("got %s/%s, want %s/%s", subj, ev.Type, w.subject, w.typ)
		}
		switch ev.Type {
		case EventVolume:
			if ev.Volume != 0.25 {
				t.Errorf("volume = %v, want 0.25", ev.Volume)
			}
		case EventError:
			if ev.Message != "Connection error occurred." {
				t.Errorf("message = %q", ev.Message)
			}
		}
	}
}

func TestPublisher_ThrottlesVolume(t *testing.T) {
	url := startNATS(t)
	sub := subscribe(t, url, "test.volume")

	nc, err := nats.Connect(url)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(nc.Close)

	now := time.Unix(0, 0)
	p := NewPublisher(nc, WithSubjectPrefix("test"), WithVolumeInterval(100*time.Millisecond))
	p.now = func() time.Time { return now }

	p.Volume(0.1)
	now = now.Add(50 * time.Millisecond)
	p.Volume(0.2) // throttled
	now = now.Add(60 * time.Millisecond)
	p.Volume(0.3)
	if err := nc.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}

	_, first := nextEvent(t, sub)
	_, second := nextEvent(t, sub)
	if first.Volume != 0.1 || second.Volume != 0.3 {
		t.Errorf("volumes = %v, %v; want 0.1, 0.3", first.Volume, second.Volume)
	}
	if _, err := sub.NextMsg(100 * time.Millisecond); err == nil {
		t.Error("unexpected third volume event")
	}

	// Close must leave a borrowed connection open.
	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !nc.IsConnected() {
		t.Error("borrowed connection closed by Publisher.Close")
	}
}
