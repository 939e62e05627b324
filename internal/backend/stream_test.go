package backend

import (
	"errors"
	"slices"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/go-audio/audio"

	"github.com/smazurov/audionode/internal/device"
	"github.com/smazurov/audionode/internal/hal"
	"github.com/smazurov/audionode/internal/hal/simhal"
	"github.com/smazurov/audionode/internal/layout"
	"github.com/smazurov/audionode/internal/listener"
)

func TestResolveDevice(t *testing.T) {
	c := newContext(t, newService(t), Options{})

	tests := []struct {
		name      string
		requested hal.ObjectID
		scope     hal.Scope
		want      ResolvedDevice
	}{
		{"unknown output", hal.ObjectUnknown, hal.ScopeOutput,
			ResolvedDevice{speakers, FlagOutput | FlagSelectedDefault | FlagSystemDefault}},
		{"unknown input", hal.ObjectUnknown, hal.ScopeInput,
			ResolvedDevice{mic, FlagInput | FlagSelectedDefault | FlagSystemDefault}},
		{"system object", hal.SystemObject, hal.ScopeOutput,
			ResolvedDevice{speakers, FlagOutput | FlagSystemDefault}},
		{"concrete", headphones, hal.ScopeOutput,
			ResolvedDevice{headphones, FlagOutput}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := c.resolveDevice(tt.requested, tt.scope)
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("got %+v (%s), want %+v (%s)", got, got.Flags, tt.want, tt.want.Flags)
			}
		})
	}

	t.Run("no default", func(t *testing.T) {
		empty := simhal.New()
		t.Cleanup(func() { empty.Close() })
		c := newContext(t, empty, Options{})
		if _, err := c.resolveDevice(hal.ObjectUnknown, hal.ScopeOutput); !errors.Is(err, ErrNoDevice) {
			t.Errorf("got %v, want no device", err)
		}
	})
}

func TestNewStreamValidation(t *testing.T) {
	c := newContext(t, newService(t), Options{Renderer: &manualRenderer{}})

	tests := []struct {
		name string
		opts StreamOptions
	}{
		{"no sides", StreamOptions{Data: silence}},
		{"no data callback", StreamOptions{Output: stereoOut()}},
		{"zero rate", StreamOptions{Output: &StreamParams{Format: device.FormatF32NE, Channels: 2}, Data: silence}},
		{"zero channels", StreamOptions{Output: &StreamParams{Format: device.FormatF32NE, Rate: 48000}, Data: silence}},
		{"bad format", StreamOptions{Output: &StreamParams{Format: device.FormatAll, Rate: 48000, Channels: 2}, Data: silence}},
		{"layout mismatch", StreamOptions{Output: &StreamParams{Format: device.FormatF32NE, Rate: 48000, Channels: 2, Layout: layout.ThreeF}, Data: silence}},
		{"loopback", StreamOptions{Output: &StreamParams{Format: device.FormatF32NE, Rate: 48000, Channels: 2, Prefs: PrefLoopback}, Data: silence}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := c.NewStream(tt.opts); !errors.Is(err, ErrInvalidParams) {
				t.Errorf("got %v, want invalid params", err)
			}
		})
	}

	if n := c.State().ActiveStreams(); n != 0 {
		t.Errorf("active streams = %d after failed opens", n)
	}
}

func TestNewStreamWithoutChannelsInScope(t *testing.T) {
	c := newContext(t, newService(t), Options{Renderer: &manualRenderer{}})
	_, err := c.NewStream(StreamOptions{Output: stereoOut(), OutputDevice: mic, Data: silence})
	if !errors.Is(err, ErrInvalidParams) {
		t.Errorf("got %v, want invalid params", err)
	}
}

func TestStreamLifecycle(t *testing.T) {
	svc := newService(t)
	r := &manualRenderer{}
	c := newContext(t, svc, Options{Renderer: r})

	var mu sync.Mutex
	var changes []StateChange
	s, err := c.NewStream(StreamOptions{
		Name:   "music",
		Output: stereoOut(),
		Data:   silence,
		State: func(sc StateChange) {
			mu.Lock()
			changes = append(changes, sc)
			mu.Unlock()
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	if s.State() != StateInitialized {
		t.Errorf("state = %s, want initialized", s.State())
	}
	if c.State().ActiveStreams() != 1 {
		t.Errorf("active streams = %d", c.State().ActiveStreams())
	}
	if got, ok := c.Stream(s.ID); !ok || got != s {
		t.Error("stream not registered with the context")
	}
	if n := svc.ListenerCount(hal.SystemObject, listener.DefaultOutputDevice); n != 1 {
		t.Errorf("default-output listeners = %d, want 1", n)
	}
	if n := svc.ListenerCount(speakers, listener.DeviceIsAlive); n != 1 {
		t.Errorf("alive listeners = %d, want 1", n)
	}

	if err := s.Start(); err != nil {
		t.Fatal(err)
	}
	if !r.last().running() {
		t.Error("render unit not started")
	}
	if err := s.Stop(); err != nil {
		t.Fatal(err)
	}
	if s.State() != StateStopped {
		t.Errorf("state = %s, want stopped", s.State())
	}

	mu.Lock()
	if !slices.Equal(changes, []StateChange{StateChangeStarted, StateChangeStopped}) {
		t.Errorf("state changes = %v", changes)
	}
	mu.Unlock()

	s.Destroy()
	s.Destroy()
	if c.State().ActiveStreams() != 0 {
		t.Errorf("active streams = %d after destroy", c.State().ActiveStreams())
	}
	if _, ok := c.Stream(s.ID); ok {
		t.Error("stream still registered after destroy")
	}
	if n := svc.ListenerCount(hal.SystemObject, listener.DefaultOutputDevice); n != 0 {
		t.Errorf("default-output listeners after destroy = %d", n)
	}
	if err := s.Start(); !errors.Is(err, ErrClosed) {
		t.Errorf("Start after destroy = %v, want closed", err)
	}
}

func TestPinnedStreamDoesNotFollowDefault(t *testing.T) {
	svc := newService(t)
	c := newContext(t, svc, Options{Renderer: &manualRenderer{}})

	if _, err := c.NewStream(StreamOptions{Output: stereoOut(), OutputDevice: headphones, Data: silence}); err != nil {
		t.Fatal(err)
	}
	if n := svc.ListenerCount(hal.SystemObject, listener.DefaultOutputDevice); n != 0 {
		t.Errorf("pinned stream installed %d default listeners", n)
	}
	if n := svc.ListenerCount(headphones, listener.OutputDataSource); n != 1 {
		t.Errorf("data-source listeners = %d, want 1", n)
	}
}

func TestLayoutNegotiation(t *testing.T) {
	svc := newService(t)
	r := &manualRenderer{}
	c := newContext(t, svc, Options{Renderer: r})

	t.Run("undefined adopts hardware layout", func(t *testing.T) {
		s, err := c.NewStream(StreamOptions{Output: stereoOut(), Data: silence})
		if err != nil {
			t.Fatal(err)
		}
		defer s.Destroy()

		_, out := s.Params()
		if out.Layout != layout.Stereo {
			t.Errorf("layout = %s, want stereo", out.Layout)
		}
		want := []hal.ChannelLabel{hal.LabelLeft, hal.LabelRight}
		if got := r.last().cfg.Output.Labels; !slices.Equal(got, want) {
			t.Errorf("unit labels = %v, want %v", got, want)
		}
	})

	t.Run("explicit layout", func(t *testing.T) {
		s, err := c.NewStream(StreamOptions{
			Output: &StreamParams{Format: device.FormatF32NE, Rate: 48000, Channels: 3, Layout: layout.ThreeF},
			Data:   silence,
		})
		if err != nil {
			t.Fatal(err)
		}
		defer s.Destroy()

		want := []hal.ChannelLabel{hal.LabelLeft, hal.LabelRight, hal.LabelCenter}
		if got := r.last().cfg.Output.Labels; !slices.Equal(got, want) {
			t.Errorf("unit labels = %v, want %v", got, want)
		}
	})

	t.Run("layout without labels", func(t *testing.T) {
		s, err := c.NewStream(StreamOptions{
			Output: &StreamParams{Format: device.FormatF32NE, Rate: 48000, Channels: 2, Layout: layout.MonoLFE},
			Data:   silence,
		})
		if err != nil {
			t.Fatal(err)
		}
		defer s.Destroy()

		if got := r.last().cfg.Output.Labels; got != nil {
			t.Errorf("unit labels = %v, want none", got)
		}
	})
}

func TestRenderAppliesVolumeAndAdvancesPosition(t *testing.T) {
	r := &manualRenderer{}
	c := newContext(t, newService(t), Options{Renderer: r})

	s, err := c.NewStream(StreamOptions{
		Output: stereoOut(),
		Data: func(_, out *audio.Float32Buffer, frames int) int {
			for i := range out.Data {
				out.Data[i] = 1
			}
			return frames
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	if err := s.SetVolume(0.5); err != nil {
		t.Fatal(err)
	}
	out, n := r.last().pump(64)
	if n != 64 {
		t.Fatalf("rendered %d frames", n)
	}
	for i, v := range out.Data {
		if v != 0.5 {
			t.Fatalf("sample %d = %v, want 0.5", i, v)
		}
	}

	if err := s.SetPanning(1); err != nil {
		t.Fatal(err)
	}
	out, _ = r.last().pump(64)
	if out.Data[0] != 0 || out.Data[1] != 0.5 {
		t.Errorf("panned frame = %v, %v; want 0, 0.5", out.Data[0], out.Data[1])
	}

	if got := s.Position(); got != 128 {
		t.Errorf("position = %d, want 128", got)
	}
}

func TestVolumeAndPanningRange(t *testing.T) {
	c := newContext(t, newService(t), Options{Renderer: &manualRenderer{}})
	out, err := c.NewStream(StreamOptions{Output: stereoOut(), Data: silence})
	if err != nil {
		t.Fatal(err)
	}
	in, err := c.NewStream(StreamOptions{Input: monoIn(), Data: silence})
	if err != nil {
		t.Fatal(err)
	}

	for _, v := range []float32{-0.1, 1.1} {
		if err := out.SetVolume(v); !errors.Is(err, ErrInvalidParams) {
			t.Errorf("SetVolume(%v) = %v", v, err)
		}
	}
	if err := out.SetPanning(-2); !errors.Is(err, ErrInvalidParams) {
		t.Errorf("SetPanning(-2) = %v", err)
	}
	if err := in.SetPanning(0.5); !errors.Is(err, ErrInvalidParams) {
		t.Errorf("SetPanning on input stream = %v", err)
	}
}

func TestDrain(t *testing.T) {
	r := &manualRenderer{}
	c := newContext(t, newService(t), Options{Renderer: r})

	drained := make(chan struct{})
	s, err := c.NewStream(StreamOptions{
		Output: stereoOut(),
		Data: func(_, _ *audio.Float32Buffer, frames int) int {
			return frames / 2
		},
		State: func(sc StateChange) {
			if sc == StateChangeDrained {
				close(drained)
			}
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Start(); err != nil {
		t.Fatal(err)
	}

	out, n := r.last().pump(100)
	if n != 50 {
		t.Fatalf("rendered %d frames, want 50", n)
	}
	if out.Data[199] != 0 {
		t.Error("tail after drain point not silenced")
	}

	<-drained
	if s.State() != StateStopped {
		t.Errorf("state = %s, want stopped", s.State())
	}
	if r.last().running() {
		t.Error("render unit still running after drain")
	}
}

func TestGlobalLatencyIsShared(t *testing.T) {
	c := newContext(t, newService(t), Options{Renderer: &manualRenderer{}})

	first, err := c.NewStream(StreamOptions{Output: stereoOut(), LatencyFrames: 16, Data: silence})
	if err != nil {
		t.Fatal(err)
	}
	// Clamped to the speakers' minimum buffer.
	if got := first.Latency(); got != 64 {
		t.Errorf("first latency = %d, want 64", got)
	}
	if got, _ := c.State().GlobalLatency(); got != 64 {
		t.Errorf("global latency = %d, want 64", got)
	}

	second, err := c.NewStream(StreamOptions{Output: stereoOut(), LatencyFrames: 1024, Data: silence})
	if err != nil {
		t.Fatal(err)
	}
	if got := second.Latency(); got != 64 {
		t.Errorf("second latency = %d, want the global 64", got)
	}

	first.Destroy()
	second.Destroy()
	if _, ok := c.State().GlobalLatency(); ok {
		t.Error("global latency kept after every stream closed")
	}
}

func TestInputFramesFor(t *testing.T) {
	c := newContext(t, newService(t), Options{Renderer: &manualRenderer{}})

	tests := []struct {
		name string
		opts StreamOptions
		want int64
	}{
		// mic runs at 44100, the output stream at 48000.
		{"duplex", StreamOptions{Input: monoIn(), Output: stereoOut(), Data: silence}, 92},
		// speakers run at 48000 like the stream.
		{"output only", StreamOptions{Output: stereoOut(), Data: silence}, 100},
		// headphones run at 44100, the stream at 48000.
		{"resampled output", StreamOptions{Output: stereoOut(), OutputDevice: headphones, Data: silence}, 109},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := c.NewStream(tt.opts)
			if err != nil {
				t.Fatal(err)
			}
			defer s.Destroy()
			if got := s.InputFramesFor(100); got != tt.want {
				t.Errorf("InputFramesFor(100) = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestReinitFollowsDefaultSwap(t *testing.T) {
	svc := newService(t)
	r := &manualRenderer{}
	c := newContext(t, svc, Options{Renderer: r})

	var changed atomic.Int32
	s, err := c.NewStream(StreamOptions{Output: stereoOut(), Data: silence})
	if err != nil {
		t.Fatal(err)
	}
	s.RegisterDeviceChangedCallback(func() { changed.Add(1) })
	if err := s.Start(); err != nil {
		t.Fatal(err)
	}

	if err := svc.SetDefault(hal.ScopeOutput, headphones); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "reinit", func() bool { return s.Reinits() == 1 && !s.Switching() })

	cur := s.CurrentDevice()
	if cur.Output.ID != headphones {
		t.Errorf("output device = %s, want %s", cur.Output.ID, headphones)
	}
	if cur.Output.Flags != FlagOutput|FlagSelectedDefault|FlagSystemDefault {
		t.Errorf("flags = %s", cur.Output.Flags)
	}
	if changed.Load() != 1 {
		t.Errorf("device-changed callback fired %d times", changed.Load())
	}
	if s.State() != StateStarted {
		t.Errorf("state = %s, want started", s.State())
	}
	if r.opened() != 2 || !r.last().running() {
		t.Errorf("expected a second running unit, opened %d", r.opened())
	}
	if r.last().cfg.Output.HardwareRate != 44100 {
		t.Errorf("hardware rate = %v, want 44100", r.last().cfg.Output.HardwareRate)
	}
	if n := svc.ListenerCount(speakers, listener.DeviceIsAlive); n != 0 {
		t.Errorf("listeners left on the old device: %d", n)
	}
	if n := svc.ListenerCount(headphones, listener.DeviceIsAlive); n != 1 {
		t.Errorf("alive listeners on the new device = %d", n)
	}
}

func TestReinitPinnedDeviceFallsBack(t *testing.T) {
	svc := newService(t)
	c := newContext(t, svc, Options{Renderer: &manualRenderer{}})

	s, err := c.NewStream(StreamOptions{Output: stereoOut(), OutputDevice: headphones, Data: silence})
	if err != nil {
		t.Fatal(err)
	}

	if err := svc.Unplug(headphones); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "reinit", func() bool { return s.Reinits() >= 1 && !s.Switching() })

	cur := s.CurrentDevice()
	if cur.Output.ID != speakers {
		t.Errorf("output device = %s, want the default %s", cur.Output.ID, speakers)
	}
	if !cur.Output.FollowsDefault() {
		t.Errorf("fallback device should follow the default, flags %s", cur.Output.Flags)
	}
}

func TestReinitPinnedDeviceWithSwitchingDisabled(t *testing.T) {
	svc := newService(t)
	c := newContext(t, svc, Options{Renderer: &manualRenderer{}})

	failed := make(chan struct{}, 1)
	params := stereoOut()
	params.Prefs = PrefDisableDeviceSwitching
	s, err := c.NewStream(StreamOptions{
		Output:       params,
		OutputDevice: headphones,
		Data:         silence,
		State: func(sc StateChange) {
			if sc == StateChangeError {
				failed <- struct{}{}
			}
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Start(); err != nil {
		t.Fatal(err)
	}

	if err := svc.Unplug(headphones); err != nil {
		t.Fatal(err)
	}
	<-failed
	waitFor(t, "switching flag", func() bool { return !s.Switching() })

	cur := s.CurrentDevice()
	if cur.Output.Flags&FlagDisconnectedPinned == 0 {
		t.Errorf("flags = %s, want disconnected-pinned", cur.Output.Flags)
	}
	if s.State() != StateStopped {
		t.Errorf("state = %s, want stopped", s.State())
	}
	if err := s.Start(); !errors.Is(err, ErrInvalidState) {
		t.Errorf("Start = %v, want invalid state", err)
	}

	s.mu.Lock()
	err = s.checkPinnedLocked(s.output)
	s.mu.Unlock()
	if !errors.Is(err, ErrDeviceDisconnected) {
		t.Errorf("pinned check = %v, want device disconnected", err)
	}
}

func TestSwitchingCoalescesNotifications(t *testing.T) {
	c := newContext(t, newService(t), Options{Renderer: &manualRenderer{}})

	var changed atomic.Int32
	s, err := c.NewStream(StreamOptions{Output: stereoOut(), Data: silence})
	if err != nil {
		t.Fatal(err)
	}
	s.RegisterDeviceChangedCallback(func() { changed.Add(1) })

	const n = 16
	s.switching.Store(true)

	var wg sync.WaitGroup
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.onPropertyChanged(hal.SystemObject, []hal.PropertyAddress{listener.DefaultOutputDevice})
		}()
	}
	wg.Wait()

	if got := s.Coalesced(); got != n {
		t.Errorf("coalesced = %d, want %d", got, n)
	}
	if s.Reinits() != 0 || changed.Load() != 0 {
		t.Errorf("reinits = %d, callbacks = %d while switching", s.Reinits(), changed.Load())
	}
	if err := s.Start(); !errors.Is(err, ErrReinitInProgress) {
		t.Errorf("Start while switching = %v", err)
	}
	if err := s.Stop(); !errors.Is(err, ErrReinitInProgress) {
		t.Errorf("Stop while switching = %v", err)
	}

	s.switching.Store(false)
	s.onPropertyChanged(hal.SystemObject, []hal.PropertyAddress{listener.DefaultOutputDevice})
	waitFor(t, "reinit", func() bool { return s.Reinits() == 1 && !s.Switching() })
	if changed.Load() != 1 {
		t.Errorf("callbacks = %d, want 1", changed.Load())
	}
}

func TestResetDefaultDevice(t *testing.T) {
	svc := newService(t)
	c := newContext(t, svc, Options{Renderer: &manualRenderer{}})

	s, err := c.NewStream(StreamOptions{Output: stereoOut(), OutputDevice: headphones, Data: silence})
	if err != nil {
		t.Fatal(err)
	}
	if err := s.ResetDefaultDevice(); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "reinit", func() bool { return s.Reinits() == 1 && !s.Switching() })

	if cur := s.CurrentDevice(); cur.Output.ID != speakers {
		t.Errorf("output device = %s, want %s", cur.Output.ID, speakers)
	}
}

func TestResetDefaultDeviceWhileSwitching(t *testing.T) {
	svc := newService(t)
	c := newContext(t, svc, Options{Renderer: &manualRenderer{}})

	s, err := c.NewStream(StreamOptions{Output: stereoOut(), OutputDevice: headphones, Data: silence})
	if err != nil {
		t.Fatal(err)
	}

	s.switching.Store(true)
	if err := s.ResetDefaultDevice(); !errors.Is(err, ErrReinitInProgress) {
		t.Fatalf("ResetDefaultDevice = %v, want reinit in progress", err)
	}
	s.mu.Lock()
	requested := s.output.requested
	s.mu.Unlock()
	if requested != headphones {
		t.Errorf("requested = %s after a lost gate, want %s", requested, headphones)
	}
	s.switching.Store(false)

	if err := s.ResetDefaultDevice(); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "reinit", func() bool { return s.Reinits() == 1 && !s.Switching() })
	if cur := s.CurrentDevice(); cur.Output.ID != speakers {
		t.Errorf("output device = %s, want %s", cur.Output.ID, speakers)
	}
}

func TestDestroyWaitsForReinit(t *testing.T) {
	svc := newService(t)
	c := newContext(t, svc, Options{Renderer: &manualRenderer{}})

	s, err := c.NewStream(StreamOptions{Output: stereoOut(), Data: silence})
	if err != nil {
		t.Fatal(err)
	}

	// Block the task queue so the reinit stays in flight.
	release := make(chan struct{})
	c.queue.submit(func() { <-release })
	if !s.scheduleReinit([]string{"test"}) {
		t.Fatal("reinit not scheduled")
	}

	destroyed := make(chan struct{})
	go func() {
		s.Destroy()
		close(destroyed)
	}()

	select {
	case <-destroyed:
		t.Fatal("destroy returned while reinit was in flight")
	default:
	}
	close(release)
	<-destroyed

	if s.Switching() {
		t.Error("switching flag still set")
	}
	if c.State().ActiveStreams() != 0 {
		t.Errorf("active streams = %d", c.State().ActiveStreams())
	}
}
