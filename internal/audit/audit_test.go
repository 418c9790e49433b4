package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
)

type gateSink struct {
	gate chan struct{}
	mu   sync.Mutex
	got  []Event
}

func (s *gateSink) Emit(_ context.Context, e Event) {
	<-s.gate
	s.mu.Lock()
	s.got = append(s.got, e)
	s.mu.Unlock()
}

func TestDispatcherDisabledIsNil(t *testing.T) {
	d := NewDispatcher(Config{Enabled: false}, NoOpSink{})
	if d != nil {
		t.Fatal("disabled dispatcher must be nil")
	}
	d.Emit(context.Background(), Event{Action: "LOGIN"})
	d.Close()
	if d.Dropped() != 0 {
		t.Fatal("nil dispatcher must report zero drops")
	}
}

func TestDispatcherDropIfFull(t *testing.T) {
	sink := &gateSink{gate: make(chan struct{})}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 1, DropIfFull: true}, sink)

	for i := 0; i < 10; i++ {
		d.Emit(context.Background(), Event{Action: "LOGIN"})
	}
	if d.Dropped() == 0 {
		t.Fatal("expected drops with a blocked sink")
	}
	close(sink.gate)
	d.Close()

	sink.mu.Lock()
	defer sink.mu.Unlock()
	for _, e := range sink.got {
		if e.Timestamp.IsZero() {
			t.Fatal("dispatcher must stamp events")
		}
	}
}

func TestDispatcherNeverDropsCriticalEvents(t *testing.T) {
	sink := &gateSink{gate: make(chan struct{})}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 1, DropIfFull: true}, sink)

	for i := 0; i < 5; i++ {
		d.Emit(context.Background(), Event{Action: "LOGIN"})
	}
	dropped := d.Dropped()

	emitted := make(chan struct{})
	go func() {
		defer close(emitted)
		d.Emit(context.Background(), Event{
			Action:   "EMERGENCY_ACCESS",
			Category: CategoryDataAccess,
			Critical: true,
		})
	}()

	close(sink.gate)
	<-emitted
	d.Close()

	if d.Dropped() != dropped {
		t.Fatalf("critical event counted as dropped: %d -> %d", dropped, d.Dropped())
	}
	sink.mu.Lock()
	defer sink.mu.Unlock()
	found := false
	for _, e := range sink.got {
		if e.Action == "EMERGENCY_ACCESS" {
			found = true
		}
	}
	if !found {
		t.Fatal("emergency access event was not delivered")
	}
}

func TestDispatcherBlockingEmitHonorsContext(t *testing.T) {
	sink := &gateSink{gate: make(chan struct{})}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 1}, sink)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	for i := 0; i < 10; i++ {
		d.Emit(ctx, Event{Action: "TOKEN_REFRESH", Category: CategoryAuthentication})
	}
	// One event can sit in the sink and one in the queue.
	if got := d.Dropped(); got < 8 {
		t.Fatalf("dropped = %d, want at least 8", got)
	}
	close(sink.gate)
	d.Close()
}

func TestDispatcherCloseDrains(t *testing.T) {
	ch := NewChannelSink(8)
	d := NewDispatcher(Config{Enabled: true, BufferSize: 8}, ch)
	for i := 0; i < 5; i++ {
		d.Emit(context.Background(), Event{Action: "LOGOUT", Category: CategoryAuthentication})
	}
	d.Close()
	if got := len(ch.Events()); got != 5 {
		t.Fatalf("delivered %d events, want 5", got)
	}
	d.Emit(context.Background(), Event{Action: "LATE"})
	if got := len(ch.Events()); got != 5 {
		t.Fatal("emit after close must be ignored")
	}
	if got := d.Dropped(); got != 1 {
		t.Fatalf("dropped = %d, want the late event counted", got)
	}
}

func TestDispatcherAccountsForEveryEventAcrossClose(t *testing.T) {
	const emitters, perEmitter = 8, 50
	ch := NewChannelSink(emitters * perEmitter)
	d := NewDispatcher(Config{Enabled: true, BufferSize: 4}, ch)

	var wg sync.WaitGroup
	for i := 0; i < emitters; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perEmitter; j++ {
				d.Emit(context.Background(), Event{Action: "LOGIN", Category: CategoryAuthentication})
			}
		}()
	}
	time.Sleep(time.Millisecond)
	d.Close()
	wg.Wait()

	delivered := uint64(len(ch.Events()))
	if delivered+d.Dropped() != emitters*perEmitter {
		t.Fatalf("delivered %d + dropped %d != %d", delivered, d.Dropped(), emitters*perEmitter)
	}
}

func TestJSONWriterSinkOneObjectPerLine(t *testing.T) {
	var buf bytes.Buffer
	sink := NewJSONWriterSink(&buf)
	sink.Emit(context.Background(), Event{ID: "01", Action: "LOGIN", Category: CategoryAuthentication, Success: true})
	sink.Emit(context.Background(), Event{ID: "02", Action: "LOGIN_FAILED", Metadata: map[string]string{"reason": "INVALID_PASSWORD"}})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("lines = %d", len(lines))
	}
	var e Event
	if err := json.Unmarshal([]byte(lines[1]), &e); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if e.Metadata["reason"] != "INVALID_PASSWORD" {
		t.Fatalf("metadata lost: %+v", e)
	}
}

func TestCategoryValid(t *testing.T) {
	if !CategoryDataAccess.Valid() {
		t.Fatal("DATA_ACCESS must be valid")
	}
	if Category("BILLING").Valid() {
		t.Fatal("unknown category must be invalid")
	}
}

type fakeProducer struct {
	mu      sync.Mutex
	records []*kgo.Record
	err     error
	flushed bool
}

func (p *fakeProducer) Produce(_ context.Context, r *kgo.Record, promise func(*kgo.Record, error)) {
	p.mu.Lock()
	p.records = append(p.records, r)
	p.mu.Unlock()
	promise(r, p.err)
}

func (p *fakeProducer) Flush(context.Context) error {
	p.flushed = true
	return nil
}

func TestKafkaSinkKeysByUser(t *testing.T) {
	p := &fakeProducer{}
	sink, err := NewKafkaSink(p, "medauth.audit", nil)
	if err != nil {
		t.Fatalf("NewKafkaSink: %v", err)
	}
	sink.Emit(context.Background(), Event{ID: "01", Action: "LOGIN", UserID: "u-1", Category: CategoryAuthentication, Timestamp: time.Now()})
	if err := sink.Flush(context.Background()); err != nil {
		t.Fatalf("flush: %v", err)
	}

	if len(p.records) != 1 {
		t.Fatalf("records = %d", len(p.records))
	}
	rec := p.records[0]
	if rec.Topic != "medauth.audit" || string(rec.Key) != "u-1" {
		t.Fatalf("unexpected record routing: topic=%q key=%q", rec.Topic, rec.Key)
	}
	var e Event
	if err := json.Unmarshal(rec.Value, &e); err != nil || e.Action != "LOGIN" {
		t.Fatalf("record value = %s (%v)", rec.Value, err)
	}
	if !p.flushed {
		t.Fatal("flush not forwarded")
	}
}

func TestKafkaSinkReportsDeliveryFailure(t *testing.T) {
	p := &fakeProducer{err: errors.New("broker down")}
	var failed []string
	sink, err := NewKafkaSink(p, "medauth.audit", func(e Event, err error) {
		failed = append(failed, e.Action)
	})
	if err != nil {
		t.Fatalf("NewKafkaSink: %v", err)
	}
	sink.Emit(context.Background(), Event{Action: "LOGOUT"})
	if len(failed) != 1 || failed[0] != "LOGOUT" {
		t.Fatalf("failures = %v", failed)
	}
	if _, err := NewKafkaSink(p, "", nil); err == nil {
		t.Fatal("empty topic must be rejected")
	}
}
