package strategy

import (
	"bytes"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SanjoDeundiak/distro-launcher/pkg/lib/companion"
	"github.com/SanjoDeundiak/distro-launcher/pkg/lib/config"
	"github.com/SanjoDeundiak/distro-launcher/pkg/lib/fsm"
	"github.com/SanjoDeundiak/distro-launcher/pkg/lib/installer"
	"github.com/SanjoDeundiak/distro-launcher/pkg/lib/window"
)

// scriptedInstaller answers each event with the next scripted state; a nil state rejects.
type scriptedInstaller struct {
	states   []installer.State
	received []installer.Event
}

func (f *scriptedInstaller) AddEvent(e installer.Event) (installer.State, error) {
	f.received = append(f.received, e)
	if len(f.states) == 0 {
		return installer.Closed{}, &fsm.Rejection[installer.State, installer.Event]{Current: installer.Closed{}, Received: e}
	}
	next := f.states[0]
	f.states = f.states[1:]
	if next == nil {
		return installer.Closed{}, &fsm.Rejection[installer.State, installer.Event]{Current: installer.Closed{}, Received: e}
	}
	return next, nil
}

type fakeCompanion struct {
	mu        sync.Mutex
	runState  companion.State
	events    []companion.Event
	exits     chan companion.Exit
	shutdowns int
}

func newFakeCompanion(run companion.State) *fakeCompanion {
	return &fakeCompanion{runState: run, exits: make(chan companion.Exit, 1)}
}

func (f *fakeCompanion) AddEvent(e companion.Event) (companion.State, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, e)
	if _, ok := e.(companion.Run); ok {
		return f.runState, nil
	}
	return companion.ShouldBeClosed{}, nil
}

func (f *fakeCompanion) Exits() <-chan companion.Exit { return f.exits }

func (f *fakeCompanion) Shutdown() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.shutdowns++
	return nil
}

func (f *fakeCompanion) received() []companion.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]companion.Event(nil), f.events...)
}

type fakeConsole struct {
	mu          sync.Mutex
	redirectErr error
	redirected  bool
	hidden      bool
	restores    int
	detaches    int
	pending     int
	shownBehind []window.Handle
}

func (f *fakeConsole) Redirect() (uintptr, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.redirectErr != nil {
		return 0, f.redirectErr
	}
	f.redirected = true
	return 3, nil
}

func (f *fakeConsole) Restore() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.restores++
	f.redirected = false
	return nil
}

func (f *fakeConsole) Detach() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.detaches++
	f.redirected = false
	return nil
}

func (f *fakeConsole) Pending() (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pending, nil
}

func (f *fakeConsole) IsRedirected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.redirected
}

func (f *fakeConsole) HideWindow() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hidden = true
	return true
}

func (f *fakeConsole) ShowWindow(behind window.Handle) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hidden = false
	f.shownBehind = append(f.shownBehind, behind)
	return true
}

func (f *fakeConsole) snapshot() (redirected bool, restores int, behind []window.Handle) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.redirected, f.restores, append([]window.Handle(nil), f.shownBehind...)
}

type fixture struct {
	inst    *scriptedInstaller
	comp    *fakeCompanion
	console *fakeConsole
	read    *os.File
	write   *os.File
}

func newFixture(t *testing.T, run companion.State, states ...installer.State) *fixture {
	t.Helper()
	r, w, err := os.Pipe()
	require.NoError(t, err)
	t.Cleanup(func() {
		r.Close()
		w.Close()
	})
	return &fixture{
		inst:    &scriptedInstaller{states: states},
		comp:    newFakeCompanion(run),
		console: &fakeConsole{},
		read:    r,
		write:   w,
	}
}

func (fx *fixture) strategy(opts ...Option) *Strategy {
	opts = append([]Option{
		WithCompanion(
			func() (Console, *os.File, error) { return fx.console, fx.read, nil },
			func(*os.File) Companion { return fx.comp },
		),
		WithGuardTimeout(time.Second),
	}, opts...)
	return New(fx.inst, opts...)
}

func TestInstallWithoutCompanion(t *testing.T) {
	inst := &scriptedInstaller{states: []installer.State{
		installer.PreparedGui{CLI: "x"},
		installer.Ready{Timeout: time.Second},
		installer.Success{},
	}}
	s := New(inst)
	require.NoError(t, s.Install(installer.ModeAutoDetect))
	require.Len(t, inst.received, 3)
	assert.Equal(t, installer.InteractiveInstall{Mode: installer.ModeAutoDetect}, inst.received[0])
	assert.Equal(t, installer.StartInstaller{}, inst.received[1])
	assert.Equal(t, installer.BlockOnInstaller{}, inst.received[2])
}

func TestInstallForceMode(t *testing.T) {
	cases := []struct {
		force config.ForceMode
		asked installer.Mode
		want  installer.Mode
	}{
		{config.ForceModeUnset, installer.ModeAutoDetect, installer.ModeAutoDetect},
		{config.ForceModeText, installer.ModeAutoDetect, installer.ModeText},
		{config.ForceModeGui, installer.ModeAutoDetect, installer.ModeGui},
		{config.ForceModeGui, installer.ModeText, installer.ModeText},
		{config.ForceModeInvalid, installer.ModeAutoDetect, installer.ModeAutoDetect},
	}
	for _, tc := range cases {
		t.Run(tc.force.String(), func(t *testing.T) {
			inst := &scriptedInstaller{}
			s := New(inst, WithForceMode(tc.force))
			_ = s.Install(tc.asked)
			require.NotEmpty(t, inst.received)
			assert.Equal(t, installer.InteractiveInstall{Mode: tc.want}, inst.received[0])
		})
	}
}

func TestInstallGuiWithCompanion(t *testing.T) {
	fx := newFixture(t, companion.Visible{Window: 7},
		installer.PreparedGui{CLI: "x"},
		installer.Ready{Window: 11},
		installer.Success{},
	)
	s := fx.strategy()
	s.RunCompanion(false)

	redirected, _, _ := fx.console.snapshot()
	require.True(t, redirected)

	require.NoError(t, s.Install(installer.ModeGui))
	assert.Equal(t, []companion.Event{companion.Run{}, companion.ToggleVisibility{}, companion.Close{}}, fx.comp.received())

	redirected, restores, _ := fx.console.snapshot()
	assert.False(t, redirected)
	assert.Equal(t, 1, restores)

	require.NoError(t, s.Close())
	assert.Equal(t, 1, fx.comp.shutdowns)
}

func TestInstallTextShowsConsole(t *testing.T) {
	fx := newFixture(t, companion.Visible{Window: 7},
		installer.PreparedTui{CLI: "x"},
		installer.Ready{},
		installer.Success{},
	)
	s := fx.strategy()
	s.RunCompanion(true)

	require.NoError(t, s.Install(installer.ModeText))
	_, restores, behind := fx.console.snapshot()
	assert.GreaterOrEqual(t, restores, 1)
	require.NotEmpty(t, behind)
	assert.Equal(t, window.Handle(7), behind[0])
	require.NoError(t, s.Close())
}

func TestInstallUpstream(t *testing.T) {
	fx := newFixture(t, companion.Visible{Window: 7}, installer.UpstreamDefaultInstall{Code: installer.ENotImpl})
	s := fx.strategy()
	s.RunCompanion(false)

	// the upstream state accepts nothing else, its code is kept
	err := s.Install(installer.ModeAutoDetect)
	assert.Equal(t, installer.ENotImpl, err)
	assert.Contains(t, fx.comp.received(), companion.Event(companion.Close{}))
	require.NoError(t, s.Close())
}

func TestInstallResults(t *testing.T) {
	cases := map[string]struct {
		states []installer.State
		want   error
	}{
		"success": {
			states: []installer.State{installer.PreparedGui{}, installer.Ready{}, installer.Success{}},
		},
		"crash while ready": {
			states: []installer.State{installer.PreparedGui{}, installer.Ready{}, installer.UpstreamDefaultInstall{Code: installer.EAbort}},
			want:   installer.EAbort,
		},
		"unexpected final state": {
			states: []installer.State{installer.PreparedGui{}, installer.Ready{}, installer.Closed{}},
			want:   installer.EUnexpected,
		},
		"rejected at start": {
			states: []installer.State{nil},
			want:   installer.EFail,
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			s := New(&scriptedInstaller{states: tc.states})
			assert.Equal(t, tc.want, s.Install(installer.ModeAutoDetect))
		})
	}
}

func TestReconfigure(t *testing.T) {
	cases := map[string]struct {
		states []installer.State
		want   error
		events int
	}{
		"text completes at once": {
			states: []installer.State{installer.Success{}},
			events: 1,
		},
		"gui goes through ready": {
			states: []installer.State{installer.PreparedGui{}, installer.Ready{}, installer.Success{}},
			events: 3,
		},
		"text failure": {
			states: []installer.State{installer.UpstreamDefaultInstall{Code: installer.EFail}},
			want:   installer.EFail,
			events: 1,
		},
		"rejected": {
			states: []installer.State{nil},
			want:   installer.ENotImpl,
			events: 1,
		},
		"unexpected": {
			states: []installer.State{installer.PreparedTui{}},
			want:   installer.EUnexpected,
			events: 1,
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			inst := &scriptedInstaller{states: tc.states}
			s := New(inst)
			assert.Equal(t, tc.want, s.Reconfigure())
			assert.Len(t, inst.received, tc.events)
			assert.Equal(t, installer.Reconfig{}, inst.received[0])
		})
	}
}

func TestAutoInstall(t *testing.T) {
	inst := &scriptedInstaller{states: []installer.State{installer.AutoInstalling{CLI: "x"}, installer.Success{}}}
	s := New(inst)
	require.NoError(t, s.AutoInstall("/tmp/answers.yaml"))
	assert.Equal(t, []installer.Event{installer.AutoInstall{Path: "/tmp/answers.yaml"}, installer.BlockOnInstaller{}}, inst.received)

	s = New(&scriptedInstaller{states: []installer.State{installer.UpstreamDefaultInstall{Code: installer.ErrPathNotFound}}})
	assert.Equal(t, installer.ErrPathNotFound, s.AutoInstall("/nowhere"))

	s = New(&scriptedInstaller{states: []installer.State{nil}})
	assert.Equal(t, installer.EFail, s.AutoInstall("/nowhere"))

	s = New(&scriptedInstaller{states: []installer.State{installer.AutoInstalling{}, installer.UpstreamDefaultInstall{Code: installer.EAbort}}})
	assert.Equal(t, installer.EAbort, s.AutoInstall("/tmp/answers.yaml"))
}

func TestRunCompanionRollsBack(t *testing.T) {
	fx := newFixture(t, companion.Closed{})
	s := fx.strategy()
	s.RunCompanion(true)

	redirected, restores, _ := fx.console.snapshot()
	assert.False(t, redirected)
	assert.Equal(t, 1, restores)

	// without a running companion there is nothing to close
	require.NoError(t, s.Close())
	assert.Equal(t, []companion.Event{companion.Run{}}, fx.comp.received())
}

func TestRunCompanionRedirectFailure(t *testing.T) {
	fx := newFixture(t, companion.Visible{Window: 7})
	fx.console.redirectErr = errors.New("no write end")
	s := fx.strategy()
	s.RunCompanion(false)
	assert.Empty(t, fx.comp.received())
	require.NoError(t, s.Close())
}

func TestRunCompanionConsoleFailure(t *testing.T) {
	inst := &scriptedInstaller{}
	comp := newFakeCompanion(companion.Visible{Window: 7})
	s := New(inst, WithCompanion(
		func() (Console, *os.File, error) { return nil, nil, errors.New("no pipe") },
		func(*os.File) Companion { return comp },
	))
	s.RunCompanion(false)
	assert.Empty(t, comp.received())
}

func TestCompanionCrashRestoresConsole(t *testing.T) {
	fx := newFixture(t, companion.Visible{Window: 7})
	var out bytes.Buffer
	s := fx.strategy(WithOutput(&out))
	s.RunCompanion(true)

	msg := "installer output nobody read\n"
	_, err := fx.write.WriteString(msg)
	require.NoError(t, err)
	require.NoError(t, fx.write.Close())
	fx.console.mu.Lock()
	fx.console.pending = len(msg)
	fx.console.mu.Unlock()

	fx.comp.exits <- companion.Exit{PID: 42, ExitCode: 1}

	require.Eventually(t, func() bool {
		return s.Salvaged() != nil
	}, 3*time.Second, 10*time.Millisecond)

	redirected, restores, behind := fx.console.snapshot()
	assert.False(t, redirected)
	assert.Zero(t, restores, "the pipe is read before it is disconnected")
	assert.Equal(t, 1, fx.console.detaches)
	assert.Equal(t, []window.Handle{7}, behind)
	assert.Equal(t, "installer output nobody read\n", s.Salvaged().String())
	assert.Equal(t, "installer output nobody read\n", out.String())

	require.NoError(t, s.Close())
}

func TestCompanionCrashWithNothingPending(t *testing.T) {
	fx := newFixture(t, companion.Visible{Window: 7})
	var out bytes.Buffer
	s := fx.strategy(WithOutput(&out))
	s.RunCompanion(false)

	fx.comp.exits <- companion.Exit{PID: 42, ExitCode: 1}

	require.Eventually(t, func() bool {
		fx.console.mu.Lock()
		defer fx.console.mu.Unlock()
		return fx.console.detaches == 1 && len(fx.console.shownBehind) == 1
	}, 3*time.Second, 10*time.Millisecond)

	assert.Nil(t, s.Salvaged())
	assert.Empty(t, out.String())
	require.NoError(t, s.Close())
}

func TestOutcome(t *testing.T) {
	s := New(&scriptedInstaller{})
	assert.NoError(t, s.Outcome(nil))

	err := s.Outcome(installer.EAbort)
	assert.ErrorIs(t, err, ErrFallback)
	assert.ErrorIs(t, err, installer.EAbort)

	s = New(&scriptedInstaller{}, WithoutFallback())
	err = s.Outcome(installer.EAbort)
	assert.ErrorIs(t, err, ErrNoFallback)

	// a missing installer is not a failure, even without fallback
	err = s.Outcome(installer.ENotImpl)
	assert.ErrorIs(t, err, ErrFallback)
	assert.NotErrorIs(t, err, ErrNoFallback)
}
