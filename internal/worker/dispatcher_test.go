package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/talgya/galaxymorph/internal/galaxy"
)

var testGen = galaxy.NewGenerator(galaxy.GenConfig{ParticleCount: 200})

func testConfig() Config {
	return Config{Workers: 2, Timeout: time.Second, BootTimeout: time.Second, QueueSize: 4}
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before deadline")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestGenerateMatchesSync(t *testing.T) {
	d := New(testConfig(), testGen.Generate)
	defer d.Close()
	if !d.Ready() {
		t.Fatal("dispatcher not ready")
	}

	for _, typ := range galaxy.Types {
		desc := galaxy.Descriptor{Type: typ, Seed: 4242}
		got, err := d.Generate(context.Background(), desc)
		if err != nil {
			t.Fatalf("%s: %v", desc, err)
		}
		if !got.Equal(testGen.Generate(desc)) {
			t.Errorf("%s: worker output differs from synchronous generation", desc)
		}
	}
	if s := d.Stats(); s.Completed != 3 || s.InFlight != 0 {
		t.Errorf("stats = %+v", s)
	}
}

func TestConcurrentRequests(t *testing.T) {
	d := New(testConfig(), testGen.Generate)
	defer d.Close()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			desc := galaxy.Descriptor{Type: galaxy.Types[seed%3], Seed: seed}
			got, err := d.Generate(context.Background(), desc)
			if err != nil {
				t.Error(err)
				return
			}
			if !got.Equal(testGen.Generate(desc)) {
				t.Errorf("%s: response routed to the wrong caller", desc)
			}
		}(int64(i))
	}
	wg.Wait()
	if n := d.InFlight(); n != 0 {
		t.Errorf("InFlight = %d after all requests resolved", n)
	}
}

func TestDisabledWhenNoWorkers(t *testing.T) {
	d := New(Config{Workers: 0}, testGen.Generate)
	defer d.Close()
	if d.Ready() {
		t.Fatal("zero-worker dispatcher reports ready")
	}
	if _, err := d.Generate(context.Background(), galaxy.Descriptor{}); !errors.Is(err, ErrNotReady) {
		t.Errorf("err = %v, want ErrNotReady", err)
	}
}

func TestBootFailure(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"init error", Config{Workers: 2, BootTimeout: time.Second, Init: func() error { return errors.New("no context") }}},
		{"boot timeout", Config{Workers: 1, BootTimeout: 5 * time.Millisecond, Init: func() error {
			time.Sleep(50 * time.Millisecond)
			return nil
		}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := New(tt.cfg, testGen.Generate)
			defer d.Close()
			if d.Ready() {
				t.Error("dispatcher ready after failed boot")
			}
			if _, err := d.Generate(context.Background(), galaxy.Descriptor{}); !errors.Is(err, ErrNotReady) {
				t.Errorf("err = %v, want ErrNotReady", err)
			}
		})
	}
}

func TestCloseAfterHungInit(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	d := New(Config{Workers: 2, BootTimeout: 50 * time.Millisecond, Init: func() error {
		<-release
		return nil
	}}, testGen.Generate)
	if d.Ready() {
		t.Fatal("dispatcher ready while Init is blocked")
	}

	closed := make(chan struct{})
	go func() {
		d.Close()
		close(closed)
	}()
	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("Close blocked on a worker stuck in Init")
	}
}

func TestTimeoutDiscardsLateResponse(t *testing.T) {
	release := make(chan struct{})
	slow := func(desc galaxy.Descriptor) *galaxy.Buffer {
		<-release
		return testGen.Generate(desc)
	}
	cfg := testConfig()
	cfg.Workers = 1
	cfg.Timeout = 20 * time.Millisecond
	d := New(cfg, slow)
	defer d.Close()

	_, err := d.Generate(context.Background(), galaxy.Descriptor{Seed: 1})
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("err = %v, want ErrTimeout", err)
	}
	if d.InFlight() != 0 {
		t.Error("timed-out slot was not removed")
	}

	close(release)
	waitFor(t, func() bool { return d.Stats().Orphaned == 1 })
	if s := d.Stats(); s.TimedOut != 1 || s.Completed != 0 {
		t.Errorf("stats = %+v", s)
	}
}

func TestContextCancel(t *testing.T) {
	release := make(chan struct{})
	d := New(testConfig(), func(desc galaxy.Descriptor) *galaxy.Buffer {
		<-release
		return testGen.Generate(desc)
	})
	defer d.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := d.Generate(ctx, galaxy.Descriptor{}); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want context.DeadlineExceeded", err)
	}
	if d.InFlight() != 0 {
		t.Error("cancelled slot was not removed")
	}
}

func TestCloseRejectsPending(t *testing.T) {
	release := make(chan struct{})
	d := New(testConfig(), func(desc galaxy.Descriptor) *galaxy.Buffer {
		<-release
		return testGen.Generate(desc)
	})

	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() {
			_, err := d.Generate(context.Background(), galaxy.Descriptor{})
			errs <- err
		}()
	}
	waitFor(t, func() bool { return d.InFlight() == 2 })

	closed := make(chan struct{})
	go func() {
		d.Close()
		close(closed)
	}()
	for i := 0; i < 2; i++ {
		if err := <-errs; !errors.Is(err, ErrTerminated) {
			t.Errorf("err = %v, want ErrTerminated", err)
		}
	}
	close(release)
	<-closed

	if d.Ready() {
		t.Error("closed dispatcher reports ready")
	}
	if _, err := d.Generate(context.Background(), galaxy.Descriptor{}); !errors.Is(err, ErrTerminated) {
		t.Errorf("after Close err = %v, want ErrTerminated", err)
	}
	d.Close() // idempotent
}

func TestRunnerPanicBecomesError(t *testing.T) {
	d := New(testConfig(), func(galaxy.Descriptor) *galaxy.Buffer { panic("out of memory") })
	defer d.Close()

	_, err := d.Generate(context.Background(), galaxy.Descriptor{})
	if !errors.Is(err, ErrWorker) {
		t.Fatalf("err = %v, want ErrWorker", err)
	}
	if d.Stats().Failed != 1 {
		t.Errorf("Failed = %d", d.Stats().Failed)
	}
	// The worker survives and keeps answering.
	if _, err := d.Generate(context.Background(), galaxy.Descriptor{}); !errors.Is(err, ErrWorker) {
		t.Errorf("second request err = %v, want ErrWorker", err)
	}
}

func TestHandleRejectsBadRequests(t *testing.T) {
	d := &Dispatcher{run: testGen.Generate}
	tests := []struct {
		name string
		req  Request
	}{
		{"unknown type", Request{ID: "a", Type: "explode", Data: RequestData{GalaxyType: "spiral"}}},
		{"unknown galaxy", Request{ID: "b", Type: TypeGenerate, Data: RequestData{GalaxyType: "lenticular"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := d.handle(tt.req)
			if resp.Type != TypeError || resp.ID != tt.req.ID || resp.Data.Error == "" {
				t.Errorf("resp = %+v", resp)
			}
			if _, err := resp.buffer(); !errors.Is(err, ErrWorker) {
				t.Errorf("buffer err = %v", err)
			}
		})
	}
}

func TestResponseBufferValidation(t *testing.T) {
	tests := []struct {
		name string
		resp Response
		ok   bool
	}{
		{"good", Response{Type: TypeGenerated, Data: ResponseData{Positions: make([]float32, 6), Colors: make([]float32, 6)}}, true},
		{"empty", Response{Type: TypeGenerated}, false},
		{"mismatch", Response{Type: TypeGenerated, Data: ResponseData{Positions: make([]float32, 6), Colors: make([]float32, 3)}}, false},
		{"ragged", Response{Type: TypeGenerated, Data: ResponseData{Positions: make([]float32, 4), Colors: make([]float32, 4)}}, false},
		{"unknown", Response{Type: "progress"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf, err := tt.resp.buffer()
			if (err == nil) != tt.ok {
				t.Fatalf("err = %v, want ok=%v", err, tt.ok)
			}
			if tt.ok && buf.Len() != 2 {
				t.Errorf("Len = %d", buf.Len())
			}
		})
	}
}
