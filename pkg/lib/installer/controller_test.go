package installer

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SanjoDeundiak/distro-launcher/pkg/lib/fsm"
	"github.com/SanjoDeundiak/distro-launcher/pkg/lib/window"
)

type fakeProcess struct {
	code       int
	terminated bool
}

func (p *fakeProcess) WaitExitSync(time.Duration) (int, error) { return p.code, nil }
func (p *fakeProcess) Terminate() error {
	p.terminated = true
	return nil
}

// fakePolicy answers every question with its fields and records what it was asked to do.
type fakePolicy struct {
	available   bool
	textMode    bool
	prefill     string
	copyOK      bool
	pollOK      bool
	consumeCode int
	launchErr   error
	syncCode    int
	window      window.Handle

	copied        []string
	polls         []int
	syncCLIs      []string
	asyncCLIs     []string
	shown         []window.Handle
	exitHandled   int
	consumedCount int
	consumedWith  []time.Duration
}

func (p *fakePolicy) IsOOBEAvailable() bool      { return p.available }
func (p *fakePolicy) PreparePrefillInfo() string { return p.prefill }
func (p *fakePolicy) MustRunInTextMode() bool    { return p.textMode }
func (p *fakePolicy) HandleExitStatus()          { p.exitHandled++ }
func (p *fakePolicy) CopyFileIntoDistro(from, to string) bool {
	p.copied = append(p.copied, to)
	return p.copyOK
}
func (p *fakePolicy) PollSuccess(_ string, attempts int, _ Process) bool {
	p.polls = append(p.polls, attempts)
	return p.pollOK
}
func (p *fakePolicy) ConsumeProcess(_ Process, timeout time.Duration) int {
	p.consumedCount++
	p.consumedWith = append(p.consumedWith, timeout)
	return p.consumeCode
}
func (p *fakePolicy) StartInstallerAsync(cli string) (Process, error) {
	p.asyncCLIs = append(p.asyncCLIs, cli)
	if p.launchErr != nil {
		return nil, p.launchErr
	}
	return &fakeProcess{}, nil
}
func (p *fakePolicy) DoLaunchSync(cli string) int {
	p.syncCLIs = append(p.syncCLIs, cli)
	return p.syncCode
}
func (p *fakePolicy) TryHidingInstallerWindow(int) window.Handle { return p.window }
func (p *fakePolicy) ShowWindow(h window.Handle)                 { p.shown = append(p.shown, h) }

func nothingWorks() *fakePolicy {
	return &fakePolicy{consumeCode: -1, syncCode: -1, launchErr: errors.New("no launch")}
}

func everythingWorks() *fakePolicy {
	return &fakePolicy{available: true, copyOK: true, pollOK: true, window: 99}
}

func failsToLaunch() *fakePolicy {
	p := everythingWorks()
	p.launchErr = errors.New("no child process")
	p.syncCode = -1
	p.window = 0
	return p
}

func oobeCrashDetected() *fakePolicy {
	p := everythingWorks()
	p.consumeCode = -1
	p.syncCode = -1
	return p
}

func upstreamCode(t *testing.T, c *Controller) Code {
	t.Helper()
	s, ok := fsm.StateAs[UpstreamDefaultInstall](c.Machine)
	require.True(t, ok, "state is %T", c.State())
	return s.Code
}

func TestUpstreamIfMissingOobe(t *testing.T) {
	for name, ev := range map[string]Event{
		"auto":        AutoInstall{Path: "./"},
		"reconfig":    Reconfig{},
		"interactive": InteractiveInstall{},
	} {
		t.Run(name, func(t *testing.T) {
			c := NewController(nothingWorks())
			_, err := c.AddEvent(ev)
			require.NoError(t, err)
			assert.Equal(t, ENotImpl, upstreamCode(t, c))
		})
	}
}

func TestUpstreamStateAcceptsNoEvent(t *testing.T) {
	c := NewController(nothingWorks())
	_, err := c.AddEvent(AutoInstall{Path: "./"})
	require.NoError(t, err)
	require.True(t, fsm.IsCurrentStateA[UpstreamDefaultInstall](c.Machine))

	for _, ev := range []Event{
		AutoInstall{Path: "./"}, InteractiveInstall{}, Reconfig{}, StartInstaller{}, BlockOnInstaller{},
	} {
		st, err := c.AddEvent(ev)
		require.ErrorIs(t, err, fsm.ErrInvalidTransition)
		assert.Equal(t, UpstreamDefaultInstall{Code: ENotImpl}, st)
		assert.Equal(t, UpstreamDefaultInstall{Code: ENotImpl}, c.State())
	}
}

func TestRejectionsKeepState(t *testing.T) {
	p := everythingWorks()
	c := NewController(p)

	for _, ev := range []Event{StartInstaller{}, BlockOnInstaller{}} {
		_, err := c.AddEvent(ev)
		var rej *fsm.Rejection[State, Event]
		require.ErrorAs(t, err, &rej)
		assert.Equal(t, Closed{}, rej.Current)
		assert.Equal(t, ev, rej.Received)
		assert.Equal(t, Closed{}, c.State())
	}

	_, err := c.AddEvent(InteractiveInstall{Mode: ModeGui})
	require.NoError(t, err)
	before := c.State()
	for _, ev := range []Event{AutoInstall{Path: "./"}, InteractiveInstall{}, Reconfig{}, BlockOnInstaller{}} {
		_, err := c.AddEvent(ev)
		require.ErrorIs(t, err, fsm.ErrInvalidTransition)
		assert.Equal(t, before, c.State())
	}
}

func TestEveryUnlistedPairIsRejected(t *testing.T) {
	events := []Event{AutoInstall{Path: "./"}, InteractiveInstall{}, Reconfig{}, StartInstaller{}, BlockOnInstaller{}}
	states := []struct {
		name     string
		reach    []Event
		policy   func() *fakePolicy
		accepted []Event
	}{
		{name: "Closed", policy: everythingWorks, accepted: []Event{AutoInstall{}, InteractiveInstall{}, Reconfig{}}},
		{name: "AutoInstalling", policy: everythingWorks, reach: []Event{AutoInstall{Path: "./"}}, accepted: []Event{BlockOnInstaller{}}},
		{name: "PreparedGui", policy: everythingWorks, reach: []Event{InteractiveInstall{Mode: ModeGui}}, accepted: []Event{StartInstaller{}}},
		{name: "PreparedTui", policy: everythingWorks, reach: []Event{InteractiveInstall{Mode: ModeText}}, accepted: []Event{StartInstaller{}}},
		{name: "Ready", policy: everythingWorks, reach: []Event{InteractiveInstall{Mode: ModeGui}, StartInstaller{}}, accepted: []Event{BlockOnInstaller{}}},
		{name: "Success", policy: everythingWorks, reach: []Event{AutoInstall{Path: "./"}, BlockOnInstaller{}}},
		{name: "UpstreamDefaultInstall", policy: nothingWorks, reach: []Event{AutoInstall{Path: "./"}}},
	}

	isAccepted := func(accepted []Event, ev Event) bool {
		for _, a := range accepted {
			if fmt.Sprintf("%T", a) == fmt.Sprintf("%T", ev) {
				return true
			}
		}
		return false
	}

	for _, st := range states {
		for _, ev := range events {
			if isAccepted(st.accepted, ev) {
				continue
			}
			t.Run(fmt.Sprintf("%s+%T", st.name, ev), func(t *testing.T) {
				c := NewController(st.policy())
				for _, r := range st.reach {
					_, err := c.AddEvent(r)
					require.NoError(t, err)
				}
				before := c.State()
				require.Equal(t, "installer."+st.name, typeName(before))

				got, err := c.AddEvent(ev)
				require.ErrorIs(t, err, fsm.ErrInvalidTransition)
				assert.Equal(t, before, got)
				assert.Equal(t, before, c.State())
			})
		}
	}
}

func TestInstallerTimeoutReachesConsume(t *testing.T) {
	for name, mode := range map[string]Mode{"gui": ModeGui, "text": ModeText} {
		t.Run(name, func(t *testing.T) {
			p := everythingWorks()
			c := NewController(p).WithInstallerTimeout(90 * time.Second)

			_, err := c.AddEvent(InteractiveInstall{Mode: mode})
			require.NoError(t, err)
			st, err := c.AddEvent(StartInstaller{})
			require.NoError(t, err)
			assert.Equal(t, 90*time.Second, st.(Ready).Timeout)

			_, err = c.AddEvent(BlockOnInstaller{})
			require.NoError(t, err)
			assert.Equal(t, []time.Duration{90 * time.Second}, p.consumedWith)
		})
	}

	p := everythingWorks()
	c := NewController(p)
	_, err := c.AddEvent(InteractiveInstall{})
	require.NoError(t, err)
	_, err = c.AddEvent(StartInstaller{})
	require.NoError(t, err)
	_, err = c.AddEvent(BlockOnInstaller{})
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{0}, p.consumedWith)
}

func TestHappyAutoInstall(t *testing.T) {
	p := everythingWorks()
	c := NewController(p)

	_, err := c.AddEvent(AutoInstall{Path: "./"})
	require.NoError(t, err)
	s, ok := fsm.StateAs[AutoInstalling](c.Machine)
	require.True(t, ok)
	assert.Contains(t, s.CLI, "--text")
	assert.Equal(t, []string{"/var/tmp/"}, p.copied)

	_, err = c.AddEvent(BlockOnInstaller{})
	require.NoError(t, err)
	assert.True(t, fsm.IsCurrentStateA[Success](c.Machine))
	assert.Equal(t, 1, p.exitHandled)
}

func TestAutoInstallComposesCommandLine(t *testing.T) {
	file := t.TempDir() + "/answers.yaml"
	require.NoError(t, writeFile(file, "autoinstall: {}"))

	c := NewController(everythingWorks())
	st, err := c.AddEvent(AutoInstall{Path: file})
	require.NoError(t, err)
	assert.Equal(t, AutoInstalling{CLI: OobeCommand + " --text --autoinstall /var/tmp/answers.yaml"}, st)
}

func TestAutoInstallFailures(t *testing.T) {
	c := NewController(everythingWorks())
	_, err := c.AddEvent(AutoInstall{Path: "/definitely/not/here.yaml"})
	require.NoError(t, err)
	assert.Equal(t, ErrPathNotFound, upstreamCode(t, c))

	p := everythingWorks()
	p.copyOK = false
	c = NewController(p)
	_, err = c.AddEvent(AutoInstall{Path: "./"})
	require.NoError(t, err)
	assert.Equal(t, ComAdminCantCopyFile, upstreamCode(t, c))
}

func TestHappyReconfig(t *testing.T) {
	p := everythingWorks()
	c := NewController(p)

	st, err := c.AddEvent(Reconfig{})
	require.NoError(t, err)
	assert.Equal(t, PreparedGui{CLI: OobeCommand + " --reconfigure"}, st)

	_, err = c.AddEvent(StartInstaller{})
	require.NoError(t, err)
	require.True(t, fsm.IsCurrentStateA[Ready](c.Machine))

	_, err = c.AddEvent(BlockOnInstaller{})
	require.NoError(t, err)
	assert.True(t, fsm.IsCurrentStateA[Success](c.Machine))
}

func TestHappyReconfigTui(t *testing.T) {
	p := everythingWorks()
	p.textMode = true
	c := NewController(p)

	st, err := c.AddEvent(Reconfig{})
	require.NoError(t, err)
	assert.Equal(t, Success{}, st)
	require.Len(t, p.syncCLIs, 1)
	assert.True(t, strings.HasSuffix(p.syncCLIs[0], "--text"))
}

func TestReconfigTuiFailure(t *testing.T) {
	p := oobeCrashDetected()
	p.textMode = true
	c := NewController(p)

	_, err := c.AddEvent(Reconfig{})
	require.NoError(t, err)
	assert.Equal(t, EFail, upstreamCode(t, c))
}

func TestHappyInteractiveInstall(t *testing.T) {
	p := everythingWorks()
	p.prefill = " --prefill=" + PrefillFile
	c := NewController(p)

	st, err := c.AddEvent(InteractiveInstall{})
	require.NoError(t, err)
	assert.Equal(t, PreparedGui{CLI: OobeCommand + " --prefill=" + PrefillFile}, st)

	st, err = c.AddEvent(StartInstaller{})
	require.NoError(t, err)
	ready, ok := st.(Ready)
	require.True(t, ok)
	assert.Equal(t, window.Handle(99), ready.Window)
	assert.Equal(t, []int{GuiPollAttempts}, p.polls)

	_, err = c.AddEvent(BlockOnInstaller{})
	require.NoError(t, err)
	assert.True(t, fsm.IsCurrentStateA[Success](c.Machine))
	assert.Equal(t, []window.Handle{99}, p.shown)
	assert.Equal(t, 1, p.consumedCount)
	assert.Equal(t, 1, p.exitHandled)
}

func TestInteractiveTextMode(t *testing.T) {
	for name, tc := range map[string]struct {
		mode     Mode
		textMode bool
	}{
		"explicit": {mode: ModeText},
		"detected": {mode: ModeAutoDetect, textMode: true},
	} {
		t.Run(name, func(t *testing.T) {
			p := everythingWorks()
			p.textMode = tc.textMode
			c := NewController(p)

			st, err := c.AddEvent(InteractiveInstall{Mode: tc.mode})
			require.NoError(t, err)
			assert.Equal(t, PreparedTui{CLI: OobeCommand + " --text"}, st)

			st, err = c.AddEvent(StartInstaller{})
			require.NoError(t, err)
			ready, ok := st.(Ready)
			require.True(t, ok)
			assert.Zero(t, ready.Window)
			assert.Equal(t, []int{TuiPollAttempts}, p.polls)
		})
	}
}

func TestExplicitGuiIgnoresDetection(t *testing.T) {
	p := everythingWorks()
	p.textMode = true
	c := NewController(p)

	st, err := c.AddEvent(InteractiveInstall{Mode: ModeGui})
	require.NoError(t, err)
	assert.IsType(t, PreparedGui{}, st)
}

func TestFailToLaunchGoesUpstream(t *testing.T) {
	c := NewController(failsToLaunch())
	_, err := c.AddEvent(InteractiveInstall{})
	require.NoError(t, err)
	require.True(t, fsm.IsCurrentStateA[PreparedGui](c.Machine))

	_, err = c.AddEvent(StartInstaller{})
	require.NoError(t, err)
	assert.Equal(t, EHandle, upstreamCode(t, c))
}

func TestPollExhaustionGoesUpstream(t *testing.T) {
	p := everythingWorks()
	p.pollOK = false
	c := NewController(p)
	_, err := c.AddEvent(InteractiveInstall{Mode: ModeText})
	require.NoError(t, err)

	_, err = c.AddEvent(StartInstaller{})
	require.NoError(t, err)
	assert.Equal(t, EApplicationActivationTimedOut, upstreamCode(t, c))
}

func TestOobeCrashGoesUpstreamInteractive(t *testing.T) {
	p := oobeCrashDetected()
	c := NewController(p)
	_, err := c.AddEvent(InteractiveInstall{})
	require.NoError(t, err)
	_, err = c.AddEvent(StartInstaller{})
	require.NoError(t, err)
	require.True(t, fsm.IsCurrentStateA[Ready](c.Machine))

	_, err = c.AddEvent(BlockOnInstaller{})
	require.NoError(t, err)
	assert.Equal(t, EAbort, upstreamCode(t, c))
	assert.Zero(t, p.exitHandled)
}

func TestOobeCrashGoesUpstreamInAuto(t *testing.T) {
	c := NewController(oobeCrashDetected())
	_, err := c.AddEvent(AutoInstall{Path: "./"})
	require.NoError(t, err)
	require.True(t, fsm.IsCurrentStateA[AutoInstalling](c.Machine))

	_, err = c.AddEvent(BlockOnInstaller{})
	require.NoError(t, err)
	assert.Equal(t, EFail, upstreamCode(t, c))
}

func TestObserverSeesTransitions(t *testing.T) {
	var seen []string
	obs := fsm.WithObserver[State, Event](func(from, to State, e Event) {
		seen = append(seen, typeName(from)+">"+typeName(to))
	})
	c := NewController(everythingWorks(), obs)
	_, err := c.AddEvent(AutoInstall{Path: "./"})
	require.NoError(t, err)
	_, err = c.AddEvent(BlockOnInstaller{})
	require.NoError(t, err)
	assert.Equal(t, []string{"installer.Closed>installer.AutoInstalling", "installer.AutoInstalling>installer.Success"}, seen)
	assert.Equal(t, "installer", c.Name())
}

func TestCodeString(t *testing.T) {
	assert.Equal(t, "E_NOTIMPL", ENotImpl.String())
	assert.Equal(t, "0x00001234", Code(0x1234).String())
	assert.Contains(t, EAbort.Error(), "0x80004004")
}
