package companion

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SanjoDeundiak/distro-launcher/pkg/lib/fsm"
	"github.com/SanjoDeundiak/distro-launcher/pkg/lib/window"
)

type fakeChild struct {
	mu           sync.Mutex
	startErr     error
	env          []string
	listener     func(int)
	unsubscribed bool
	terminated   bool
	exited       bool
}

func (c *fakeChild) Start() error { return c.startErr }
func (c *fakeChild) SetListener(fn func(int)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listener = fn
}
func (c *fakeChild) Unsubscribe() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.unsubscribed = true
	c.listener = nil
}
func (c *fakeChild) Terminate() error {
	c.Unsubscribe()
	c.terminated = true
	return nil
}
func (c *fakeChild) Valid() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.terminated && !c.exited
}
func (c *fakeChild) ThreadID() uint32 { return 1234 }
func (c *fakeChild) PID() int         { return 4321 }

// exit simulates the process dying on its own.
func (c *fakeChild) exit(code int) {
	c.mu.Lock()
	fn := c.listener
	c.listener = nil
	c.exited = true
	c.mu.Unlock()
	if fn != nil {
		fn(code)
	}
}

type call struct {
	op      string
	h, peer window.Handle
}

type fakeWindows struct {
	found   window.Handle
	findErr error
	onFind  func()
	calls   []call
}

func (w *fakeWindows) Show(h window.Handle) bool {
	w.calls = append(w.calls, call{op: "show", h: h})
	return true
}
func (w *fakeWindows) Hide(h window.Handle) bool {
	w.calls = append(w.calls, call{op: "hide", h: h})
	return true
}
func (w *fakeWindows) PlaceBehind(h, front window.Handle) bool {
	w.calls = append(w.calls, call{op: "behind", h: h, peer: front})
	return true
}
func (w *fakeWindows) Close(h window.Handle) bool {
	w.calls = append(w.calls, call{op: "close", h: h})
	return true
}
func (w *fakeWindows) Quit(h window.Handle) bool {
	w.calls = append(w.calls, call{op: "quit", h: h})
	return true
}
func (w *fakeWindows) Find(string, string) (window.Handle, error) { return 0, window.ErrNotFound }
func (w *fakeWindows) FindOnThread(threadID uint32, class string) (window.Handle, error) {
	w.calls = append(w.calls, call{op: "enumerate"})
	if w.onFind != nil {
		w.onFind()
	}
	if w.findErr != nil {
		return 0, w.findErr
	}
	if threadID != 1234 || class != WindowClass || w.found == 0 {
		return 0, window.ErrNotFound
	}
	return w.found, nil
}

type fakeHandshake struct {
	handle window.Handle
	err    error
	closed bool
}

func (h *fakeHandshake) Address() string { return "fake-address" }
func (h *fakeHandshake) Receive(context.Context) (window.Handle, error) {
	return h.handle, h.err
}
func (h *fakeHandshake) Close() error {
	h.closed = true
	return nil
}

type fixture struct {
	ctrl     *Controller
	child    *fakeChild
	children int
	wins     *fakeWindows
	hs       *fakeHandshake
}

func newFixture(t *testing.T, hs *fakeHandshake, wins *fakeWindows) *fixture {
	t.Helper()
	f := &fixture{child: &fakeChild{}, wins: wins, hs: hs}
	opts := []Option{
		WithWindowOps(wins),
		WithTimeouts(10*time.Millisecond, time.Millisecond),
		WithChildFactory(func(env []string) Child {
			f.children++
			f.child.env = env
			return f.child
		}),
	}
	if hs != nil {
		opts = append(opts, WithHandshake(func() (Handshake, error) { return hs, nil }))
	} else {
		opts = append(opts, WithHandshake(nil))
	}
	f.ctrl = NewController("companion.exe", nil, opts...)
	return f
}

func TestRunWithHandshake(t *testing.T) {
	f := newFixture(t, &fakeHandshake{handle: 42}, &fakeWindows{})

	st, err := f.ctrl.AddEvent(Run{})
	require.NoError(t, err)
	assert.Equal(t, Visible{Window: 42}, st)
	assert.Equal(t, window.Handle(42), f.ctrl.Window())
	assert.Equal(t, []string{HandshakeEnv + "=fake-address"}, f.child.env)
	assert.True(t, f.hs.closed)
	assert.Empty(t, f.wins.calls, "no enumeration needed")
}

func TestRunFallsBackToEnumeration(t *testing.T) {
	f := newFixture(t, &fakeHandshake{err: ErrNoHandshake}, &fakeWindows{found: 7})

	st, err := f.ctrl.AddEvent(Run{})
	require.NoError(t, err)
	assert.Equal(t, Visible{Window: 7}, st)
	assert.Equal(t, []call{{op: "enumerate"}}, f.wins.calls)
}

func TestRunWithoutHandshake(t *testing.T) {
	f := newFixture(t, nil, &fakeWindows{found: 7})

	st, err := f.ctrl.AddEvent(Run{})
	require.NoError(t, err)
	assert.Equal(t, Visible{Window: 7}, st)
	assert.Empty(t, f.child.env)
}

func TestRunFailureStaysClosedAndCanRetry(t *testing.T) {
	f := newFixture(t, nil, &fakeWindows{})

	st, err := f.ctrl.AddEvent(Run{})
	require.NoError(t, err)
	assert.Equal(t, Closed{}, st)
	assert.True(t, f.child.terminated, "a companion without a window is killed")

	f.wins.found = 9
	f.child = &fakeChild{}
	st, err = f.ctrl.AddEvent(Run{})
	require.NoError(t, err)
	assert.Equal(t, Visible{Window: 9}, st)
	assert.Equal(t, 2, f.children)
}

func TestExitDuringDiscoveryIsDropped(t *testing.T) {
	wins := &fakeWindows{}
	f := newFixture(t, nil, wins)
	wins.onFind = func() { f.child.exit(1) }

	st, err := f.ctrl.AddEvent(Run{})
	require.NoError(t, err)
	assert.Equal(t, Closed{}, st)
	assert.True(t, f.child.unsubscribed)
	assert.False(t, f.child.terminated, "a dead companion needs no kill")

	wins.onFind = nil
	wins.found = 9
	f.child = &fakeChild{}
	st, err = f.ctrl.AddEvent(Run{})
	require.NoError(t, err)
	assert.Equal(t, Visible{Window: 9}, st)

	select {
	case ex := <-f.ctrl.Exits():
		t.Fatalf("stale exit notice %+v", ex)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestRunStartFailure(t *testing.T) {
	f := newFixture(t, nil, &fakeWindows{found: 7})
	f.child.startErr = errors.New("no such file")

	st, err := f.ctrl.AddEvent(Run{})
	require.NoError(t, err)
	assert.Equal(t, Closed{}, st)
	assert.True(t, f.child.unsubscribed)
}

func TestVisibilityTransitions(t *testing.T) {
	f := newFixture(t, &fakeHandshake{handle: 5}, &fakeWindows{})
	_, err := f.ctrl.AddEvent(Run{})
	require.NoError(t, err)

	st, err := f.ctrl.AddEvent(ToggleVisibility{})
	require.NoError(t, err)
	assert.Equal(t, Hidden{Window: 5}, st)

	st, err = f.ctrl.AddEvent(ToggleVisibility{})
	require.NoError(t, err)
	assert.Equal(t, Visible{Window: 5}, st)

	_, err = f.ctrl.AddEvent(PlaceBehind{Front: 8})
	require.ErrorIs(t, err, fsm.ErrInvalidTransition, "only a hidden window can be placed behind")

	_, err = f.ctrl.AddEvent(ToggleVisibility{})
	require.NoError(t, err)
	st, err = f.ctrl.AddEvent(PlaceBehind{Front: 8})
	require.NoError(t, err)
	assert.Equal(t, Visible{Window: 5}, st)

	assert.Equal(t, []call{
		{op: "hide", h: 5},
		{op: "show", h: 5},
		{op: "hide", h: 5},
		{op: "behind", h: 5, peer: 8},
	}, f.wins.calls)
}

func TestCloseFromVisibleIsGraceful(t *testing.T) {
	f := newFixture(t, &fakeHandshake{handle: 5}, &fakeWindows{})
	_, err := f.ctrl.AddEvent(Run{})
	require.NoError(t, err)

	st, err := f.ctrl.AddEvent(Close{})
	require.NoError(t, err)
	assert.Equal(t, ShouldBeClosed{}, st)
	assert.True(t, f.child.unsubscribed)
	assert.Equal(t, []call{{op: "close", h: 5}}, f.wins.calls)
}

func TestCloseFromHiddenIsForced(t *testing.T) {
	f := newFixture(t, &fakeHandshake{handle: 5}, &fakeWindows{})
	_, err := f.ctrl.AddEvent(Run{})
	require.NoError(t, err)
	_, err = f.ctrl.AddEvent(ToggleVisibility{})
	require.NoError(t, err)

	_, err = f.ctrl.AddEvent(Close{})
	require.NoError(t, err)
	assert.Equal(t, call{op: "quit", h: 5}, f.wins.calls[len(f.wins.calls)-1])
}

func TestShouldBeClosedRejectsEverything(t *testing.T) {
	f := newFixture(t, &fakeHandshake{handle: 5}, &fakeWindows{})
	_, err := f.ctrl.AddEvent(Run{})
	require.NoError(t, err)
	_, err = f.ctrl.AddEvent(Close{})
	require.NoError(t, err)

	for _, ev := range []Event{Close{}, Run{}, ToggleVisibility{}, PlaceBehind{Front: 1}} {
		st, err := f.ctrl.AddEvent(ev)
		require.ErrorIs(t, err, fsm.ErrInvalidTransition)
		assert.Equal(t, ShouldBeClosed{}, st)
		assert.Equal(t, ShouldBeClosed{}, f.ctrl.State())
	}
	assert.Zero(t, f.ctrl.Window())
	assert.Equal(t, 1, f.children)
}

func TestEveryUnlistedPairIsRejected(t *testing.T) {
	events := []Event{Run{}, ToggleVisibility{}, PlaceBehind{Front: 1}, Close{}}
	states := []struct {
		name     string
		reach    []Event
		accepted []Event
	}{
		{name: "Closed", accepted: []Event{Run{}}},
		{name: "Visible", reach: []Event{Run{}}, accepted: []Event{ToggleVisibility{}, Close{}}},
		{name: "Hidden", reach: []Event{Run{}, ToggleVisibility{}}, accepted: []Event{ToggleVisibility{}, PlaceBehind{}, Close{}}},
		{name: "ShouldBeClosed", reach: []Event{Run{}, Close{}}},
	}

	for _, st := range states {
		for _, ev := range events {
			accepted := false
			for _, a := range st.accepted {
				accepted = accepted || fmt.Sprintf("%T", a) == fmt.Sprintf("%T", ev)
			}
			if accepted {
				continue
			}
			t.Run(fmt.Sprintf("%s+%T", st.name, ev), func(t *testing.T) {
				f := newFixture(t, &fakeHandshake{handle: 5}, &fakeWindows{})
				for _, r := range st.reach {
					_, err := f.ctrl.AddEvent(r)
					require.NoError(t, err)
				}
				before := f.ctrl.State()
				require.Equal(t, "companion."+st.name, fmt.Sprintf("%T", before))
				calls, children := len(f.wins.calls), f.children

				got, err := f.ctrl.AddEvent(ev)
				require.ErrorIs(t, err, fsm.ErrInvalidTransition)
				assert.Equal(t, before, got)
				assert.Equal(t, before, f.ctrl.State())
				assert.Len(t, f.wins.calls, calls, "a rejected event touched the window")
				assert.Equal(t, children, f.children)
			})
		}
	}
}

func TestRunAcceptedOnlyFromClosed(t *testing.T) {
	f := newFixture(t, &fakeHandshake{handle: 5}, &fakeWindows{})
	_, err := f.ctrl.AddEvent(Run{})
	require.NoError(t, err)

	_, err = f.ctrl.AddEvent(Run{})
	require.ErrorIs(t, err, fsm.ErrInvalidTransition)
	_, err = f.ctrl.AddEvent(ToggleVisibility{})
	require.NoError(t, err)
	_, err = f.ctrl.AddEvent(Run{})
	require.ErrorIs(t, err, fsm.ErrInvalidTransition)
	assert.Equal(t, 1, f.children)
}

func TestUnexpectedExitIsDelivered(t *testing.T) {
	f := newFixture(t, &fakeHandshake{handle: 5}, &fakeWindows{})
	_, err := f.ctrl.AddEvent(Run{})
	require.NoError(t, err)

	f.child.exit(3)
	select {
	case ex := <-f.ctrl.Exits():
		assert.Equal(t, Exit{PID: 4321, ExitCode: 3}, ex)
	case <-time.After(time.Second):
		t.Fatal("exit was not delivered")
	}
}

func TestExitAfterCloseIsSilent(t *testing.T) {
	f := newFixture(t, &fakeHandshake{handle: 5}, &fakeWindows{})
	_, err := f.ctrl.AddEvent(Run{})
	require.NoError(t, err)
	_, err = f.ctrl.AddEvent(Close{})
	require.NoError(t, err)

	f.child.exit(0)
	select {
	case ex := <-f.ctrl.Exits():
		t.Fatalf("unexpected exit notice %+v", ex)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestShutdownTerminatesChild(t *testing.T) {
	f := newFixture(t, &fakeHandshake{handle: 5}, &fakeWindows{})
	require.NoError(t, f.ctrl.Shutdown())

	_, err := f.ctrl.AddEvent(Run{})
	require.NoError(t, err)
	require.NoError(t, f.ctrl.Shutdown())
	assert.True(t, f.child.terminated)
}
