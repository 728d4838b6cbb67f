package plugin

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"lchbot/internal/event"
)

func messageEvent() *event.Event {
	return &event.Event{Kind: event.KindMessage, GroupID: 1, UserID: 2}
}

func TestDispatcher_FirstHandlerWins(t *testing.T) {
	m := NewManager(nil)
	d := NewDispatcher(m)
	ctx := context.Background()

	first := newTestPlugin("first", 1)
	first.onMessage = func(ctx context.Context, ev *event.Event) (bool, error) {
		return true, nil
	}

	var secondSaw int
	second := newTestPlugin("second", 2)
	second.onMessage = func(ctx context.Context, ev *event.Event) (bool, error) {
		secondSaw++
		return true, nil
	}

	if err := m.Register(ctx, first); err != nil {
		t.Fatal(err)
	}
	if err := m.Register(ctx, second); err != nil {
		t.Fatal(err)
	}

	if !d.Dispatch(ctx, messageEvent()) {
		t.Error("expected event to be handled")
	}
	if secondSaw != 0 {
		t.Errorf("lower-priority plugin must never see a consumed event, saw %d", secondSaw)
	}
}

func TestDispatcher_UnhandledIsNotAnError(t *testing.T) {
	m := NewManager(nil)
	d := NewDispatcher(m)
	ctx := context.Background()

	if err := m.Register(ctx, newTestPlugin("noop", 1)); err != nil {
		t.Fatal(err)
	}
	if d.Dispatch(ctx, messageEvent()) {
		t.Error("expected handled=false when no plugin consumes the event")
	}

	info, _ := m.GetByID("noop")
	if info.State != StateActive {
		t.Errorf("a normal handled=false result must not change state, got %s", info.State)
	}
}

func TestDispatcher_FailingPluginIsIsolated(t *testing.T) {
	m := NewManager(nil)
	d := NewDispatcher(m)
	ctx := context.Background()

	var failures int
	failing := newTestPlugin("failing", 1)
	failing.onMessage = func(ctx context.Context, ev *event.Event) (bool, error) {
		failures++
		return false, errors.New("boom")
	}

	var healthySaw int
	healthy := newTestPlugin("healthy", 2)
	healthy.onMessage = func(ctx context.Context, ev *event.Event) (bool, error) {
		healthySaw++
		return true, nil
	}

	if err := m.Register(ctx, failing); err != nil {
		t.Fatal(err)
	}
	if err := m.Register(ctx, healthy); err != nil {
		t.Fatal(err)
	}

	const n = 5
	for i := 0; i < n; i++ {
		if !d.Dispatch(ctx, messageEvent()) {
			t.Fatal("healthy plugin must still handle every event")
		}
	}

	if failures != n {
		t.Errorf("failing plugin must keep receiving events, got %d of %d", failures, n)
	}
	if healthySaw != n {
		t.Errorf("healthy plugin must receive every event, got %d of %d", healthySaw, n)
	}

	info, _ := m.GetByID("failing")
	if info.State != StateError || info.Error != "boom" {
		t.Errorf("expected recorded error state, got %+v", info)
	}
}

func TestDispatcher_PanicRecovered(t *testing.T) {
	m := NewManager(nil)
	d := NewDispatcher(m)
	ctx := context.Background()

	panicking := newTestPlugin("panicking", 1)
	panicking.onMessage = func(ctx context.Context, ev *event.Event) (bool, error) {
		panic("handler bug")
	}

	var healthySaw int
	healthy := newTestPlugin("healthy", 2)
	healthy.onMessage = func(ctx context.Context, ev *event.Event) (bool, error) {
		healthySaw++
		return false, nil
	}

	if err := m.Register(ctx, panicking); err != nil {
		t.Fatal(err)
	}
	if err := m.Register(ctx, healthy); err != nil {
		t.Fatal(err)
	}

	if d.Dispatch(ctx, messageEvent()) {
		t.Error("expected handled=false")
	}
	if healthySaw != 1 {
		t.Errorf("dispatch must continue past a panic, healthy saw %d", healthySaw)
	}

	info, _ := m.GetByID("panicking")
	if info.State != StateError {
		t.Errorf("expected error state after panic, got %s", info.State)
	}
}

func TestDispatcher_RoutesByKind(t *testing.T) {
	m := NewManager(nil)
	d := NewDispatcher(m)
	ctx := context.Background()

	var messages, notices int
	p := &kindPlugin{
		meta:     Meta{ID: "kinds", Name: "kinds", Priority: 1},
		messages: &messages,
		notices:  &notices,
	}
	if err := m.Register(ctx, p); err != nil {
		t.Fatal(err)
	}

	d.Dispatch(ctx, &event.Event{Kind: event.KindMessage, UserID: 1})
	d.Dispatch(ctx, &event.Event{Kind: event.KindNotice, GroupID: 1})
	d.Dispatch(ctx, &event.Event{Kind: event.KindNotice, GroupID: 1})

	if messages != 1 || notices != 2 {
		t.Errorf("expected 1 message / 2 notices, got %d / %d", messages, notices)
	}
}

func TestDispatcher_ConcurrentWithLifecycleChanges(t *testing.T) {
	m := NewManager(nil)
	d := NewDispatcher(m)
	ctx := context.Background()

	var handled int64
	sink := newTestPlugin("sink", 100)
	sink.onMessage = func(ctx context.Context, ev *event.Event) (bool, error) {
		atomic.AddInt64(&handled, 1)
		return true, nil
	}
	if err := m.Register(ctx, sink); err != nil {
		t.Fatal(err)
	}

	const dispatchers = 4
	const perDispatcher = 200

	var wg sync.WaitGroup
	for i := 0; i < dispatchers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perDispatcher; j++ {
				if !d.Dispatch(ctx, messageEvent()) {
					t.Error("sink plugin must handle every event")
					return
				}
			}
		}()
	}

	// Registry churn while dispatches run: register, toggle, unregister.
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			id := fmt.Sprintf("churn-%d", i)
			if err := m.Register(ctx, newTestPlugin(id, 1)); err != nil {
				t.Errorf("register %s: %v", id, err)
				return
			}
			if err := m.Disable(id); err != nil {
				t.Errorf("disable %s: %v", id, err)
				return
			}
			if err := m.Enable(id); err != nil {
				t.Errorf("enable %s: %v", id, err)
				return
			}
			m.Unregister(id)
		}
	}()
	wg.Wait()

	if got := atomic.LoadInt64(&handled); got != dispatchers*perDispatcher {
		t.Errorf("expected %d handled events, got %d", dispatchers*perDispatcher, got)
	}
	if m.Count() != 1 {
		t.Errorf("expected only the sink plugin to remain, got %d", m.Count())
	}
}

type kindPlugin struct {
	Base
	meta     Meta
	messages *int
	notices  *int
}

func (p *kindPlugin) Meta() Meta { return p.meta }

func (p *kindPlugin) HandleMessage(ctx context.Context, ev *event.Event) (bool, error) {
	*p.messages++
	return false, nil
}

func (p *kindPlugin) HandleNotice(ctx context.Context, ev *event.Event) (bool, error) {
	*p.notices++
	return false, nil
}
