package formula

import (
	"context"
	"testing"
	"time"

	"tonic"
)

// brewAndWait runs Brew on its own goroutine and fails the test if it does
// not return within the deadline.
func brewAndWait(t *testing.T, ctx context.Context, f *Formula) error {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- f.Brew(ctx) }()
	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("Brew() did not return")
		return nil
	}
}

func TestBrewRunsSpawnCatalyst(t *testing.T) {
	started := make(chan tonic.Params, 1)
	flash := &tonic.Class{
		Name: "flash",
		OnStart: func(r tonic.Registrant, _ any) error {
			started <- r.Core().Params()
			r.Finish()
			return nil
		},
	}
	f, err := Parse([]byte(`
catalysts:
  - name: work
    policy: spawn
brews:
  - class: flash
    catalyst: work
    params:
      port: ${BREW_TEST_PORT:-8080}
`), Registry{"flash": flash})
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if err := brewAndWait(t, context.Background(), f); err != nil {
		t.Fatalf("Brew() error = %v", err)
	}
	params := <-started
	if got := params["port"]; got != 8080 {
		t.Fatalf("port param = %v (%T), want 8080", got, got)
	}
}

func TestBrewInlineCatalystRunsToCompletion(t *testing.T) {
	finished := make(chan struct{}, 1)
	flash := &tonic.Class{
		Name: "flash",
		OnStart: func(r tonic.Registrant, _ any) error {
			r.Finish()
			return nil
		},
		OnFinished: func(tonic.Registrant, any) error {
			finished <- struct{}{}
			return nil
		},
	}
	f, err := Parse([]byte(`
brews:
  - class: flash
`), Registry{"flash": flash})
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if err := brewAndWait(t, context.Background(), f); err != nil {
		t.Fatalf("Brew() error = %v", err)
	}
	select {
	case <-finished:
	default:
		t.Fatal("finished hook never ran")
	}
}

func TestBrewCancellationFinishesRoots(t *testing.T) {
	started := make(chan struct{}, 1)
	finished := make(chan struct{}, 1)
	clinger := &tonic.Class{
		Name: "clinger",
		OnStart: func(tonic.Registrant, any) error {
			started <- struct{}{}
			return nil
		},
		OnFinished: func(tonic.Registrant, any) error {
			finished <- struct{}{}
			return nil
		},
	}
	f, err := Parse([]byte(`
catalysts:
  - name: work
    policy: spawn
brews:
  - class: clinger
    catalyst: work
`), Registry{"clinger": clinger})
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()
	if err := brewAndWait(t, ctx, f); err != nil {
		t.Fatalf("Brew() error = %v", err)
	}
	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("cancellation did not finish the root brew")
	}
}

func TestBrewStopsUnusedCatalysts(t *testing.T) {
	flash := &tonic.Class{
		Name: "flash",
		OnStart: func(r tonic.Registrant, _ any) error {
			r.Finish()
			return nil
		},
	}
	f, err := Parse([]byte(`
catalysts:
  - name: work
    policy: spawn
  - name: extra
    policy: spawn
brews:
  - class: flash
    catalyst: work
`), Registry{"flash": flash})
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if err := brewAndWait(t, context.Background(), f); err != nil {
		t.Fatalf("Brew() error = %v", err)
	}
}
