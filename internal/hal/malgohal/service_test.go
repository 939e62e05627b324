package malgohal

import (
	"errors"
	"slices"
	"sync"
	"testing"

	"github.com/smazurov/audionode/internal/hal"
)

type fakeScan struct {
	mu   sync.Mutex
	snap snapshot
	err  error
}

func (f *fakeScan) set(snap snapshot) {
	f.mu.Lock()
	f.snap = snap
	f.mu.Unlock()
}

func (f *fakeScan) scan() (snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snap, f.err
}

var (
	speakers   = entry{key: "spk", name: "Speakers", isDefault: true, channels: 2, minRate: 44100, maxRate: 96000}
	headphones = entry{key: "hp", name: "Headphones", channels: 2, minRate: 44100, maxRate: 44100}
	mic        = entry{key: "mic", name: "Mic", isDefault: true, channels: 1}
	hdmi       = entry{key: "hdmi", name: "HDMI", channels: 8, minRate: 48000, maxRate: 48000}
)

func newTestService(t *testing.T, snap snapshot) (*Service, *fakeScan) {
	t.Helper()
	f := &fakeScan{snap: snap}
	s := newService(f.scan)
	t.Cleanup(func() { s.Close() })
	if err := s.Refresh(); err != nil {
		t.Fatal(err)
	}
	return s, f
}

func idOf(t *testing.T, s *Service, key string) hal.ObjectID {
	t.Helper()
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.ids[key]
	if !ok {
		t.Fatalf("no object for %q", key)
	}
	return id
}

func TestRefreshEnumerates(t *testing.T) {
	s, _ := newTestService(t, snapshot{
		playback: []entry{speakers, headphones},
		capture:  []entry{mic},
	})

	ids, err := s.Devices(t.Context())
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 3 {
		t.Fatalf("Devices = %v", ids)
	}

	spk := idOf(t, s, "spk")
	if out, _ := s.DefaultDevice(hal.ScopeOutput); out != spk {
		t.Errorf("default output = %s, want %s", out, spk)
	}
	if in, _ := s.DefaultDevice(hal.ScopeInput); in != idOf(t, s, "mic") {
		t.Errorf("default input = %s", in)
	}
	if n, _ := s.ChannelCount(spk, hal.ScopeInput); n != 0 {
		t.Errorf("speakers have %d input channels", n)
	}
	if name, _ := s.DeviceName(spk); name != "Speakers" {
		t.Errorf("name = %q", name)
	}
	if rate, _ := s.NominalSampleRate(spk); rate != 48000 {
		t.Errorf("nominal rate = %v", rate)
	}
	if rate, _ := s.NominalSampleRate(idOf(t, s, "hp")); rate != 44100 {
		t.Errorf("headphones nominal rate = %v", rate)
	}
	if lo, hi, _ := s.SampleRateRange(idOf(t, s, "mic")); lo != 48000 || hi != 48000 {
		t.Errorf("mic without formats: rate range %v..%v", lo, hi)
	}
	if lo, hi, _ := s.BufferFrameSizeRange(spk); lo != minPeriodFrames || hi != maxPeriodFrames {
		t.Errorf("buffer range = %d..%d", lo, hi)
	}
	if _, err := s.DeviceName(0x42); !errors.Is(err, hal.ErrBadObject) {
		t.Errorf("unknown object: %v", err)
	}
}

func TestObjectIDsStableAcrossScans(t *testing.T) {
	s, f := newTestService(t, snapshot{playback: []entry{speakers, headphones}})
	hp := idOf(t, s, "hp")

	f.set(snapshot{playback: []entry{speakers}})
	if err := s.Refresh(); err != nil {
		t.Fatal(err)
	}
	if alive, _ := s.IsAlive(hp); alive {
		t.Error("vanished device still alive")
	}

	f.set(snapshot{playback: []entry{headphones, speakers, hdmi}})
	if err := s.Refresh(); err != nil {
		t.Fatal(err)
	}
	if got := idOf(t, s, "hp"); got != hp {
		t.Errorf("headphones id changed %s -> %s", hp, got)
	}
	if alive, _ := s.IsAlive(hp); !alive {
		t.Error("returned device not alive")
	}
}

func TestRefreshNotifications(t *testing.T) {
	s, f := newTestService(t, snapshot{playback: []entry{speakers, headphones}})
	spk, hp := idOf(t, s, "spk"), idOf(t, s, "hp")

	var mu sync.Mutex
	seen := map[hal.ObjectID][]hal.PropertyAddress{}
	record := &hal.Listener{Func: func(id hal.ObjectID, addrs []hal.PropertyAddress) {
		mu.Lock()
		seen[id] = append(seen[id], addrs...)
		mu.Unlock()
	}}
	for _, reg := range []struct {
		id   hal.ObjectID
		addr hal.PropertyAddress
	}{
		{hal.SystemObject, hal.DevicesAddress},
		{hal.SystemObject, hal.DefaultAddress(hal.ScopeOutput)},
		{spk, hal.AliveAddress},
	} {
		if err := s.AddPropertyListener(reg.id, reg.addr, record); err != nil {
			t.Fatal(err)
		}
	}

	// Speakers unplugged; headphones become the default.
	f.set(snapshot{playback: []entry{headphones}})
	if err := s.Refresh(); err != nil {
		t.Fatal(err)
	}
	s.dispatch.Sync()

	mu.Lock()
	system := slices.Clone(seen[hal.SystemObject])
	alive := slices.Clone(seen[spk])
	mu.Unlock()
	if !slices.Contains(system, hal.DevicesAddress) || !slices.Contains(system, hal.DefaultAddress(hal.ScopeOutput)) {
		t.Errorf("system notifications = %v", system)
	}
	if len(alive) != 1 {
		t.Errorf("alive notifications = %v", alive)
	}
	if out, _ := s.DefaultDevice(hal.ScopeOutput); out != hp {
		t.Errorf("default output = %s, want %s", out, hp)
	}

	// An identical scan is silent.
	mu.Lock()
	clear(seen)
	mu.Unlock()
	if err := s.Refresh(); err != nil {
		t.Fatal(err)
	}
	s.dispatch.Sync()
	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 0 {
		t.Errorf("unchanged scan notified %v", seen)
	}
}

func TestChannelChangeNotifiesStreamConfiguration(t *testing.T) {
	s, f := newTestService(t, snapshot{playback: []entry{hdmi}})
	id := idOf(t, s, "hdmi")

	fired := make(chan []hal.PropertyAddress, 2)
	addr := hal.PropertyAddress{Selector: hal.SelectorStreamConfiguration, Scope: hal.ScopeOutput}
	if err := s.AddPropertyListener(id, addr, &hal.Listener{Func: func(_ hal.ObjectID, a []hal.PropertyAddress) { fired <- a }}); err != nil {
		t.Fatal(err)
	}

	stereo := hdmi
	stereo.channels = 2
	f.set(snapshot{playback: []entry{stereo}})
	if err := s.Refresh(); err != nil {
		t.Fatal(err)
	}
	s.dispatch.Sync()
	if len(fired) != 1 {
		t.Fatalf("stream configuration fired %d times", len(fired))
	}
	if labels, _ := s.ChannelLabels(id, hal.ScopeOutput); !slices.Equal(labels, []hal.ChannelLabel{hal.LabelLeft, hal.LabelRight}) {
		t.Errorf("labels = %v", labels)
	}
}

func TestRefreshError(t *testing.T) {
	f := &fakeScan{err: hal.NewError(hal.ErrCodeUnspecified, "backend gone", nil)}
	s := newService(f.scan)
	defer s.Close()
	if err := s.Refresh(); !errors.Is(err, hal.ErrUnspecified) {
		t.Errorf("Refresh() = %v", err)
	}
}

func TestNative(t *testing.T) {
	withNative := speakers
	withNative.native = "token"
	s, _ := newTestService(t, snapshot{playback: []entry{withNative}})
	id := idOf(t, s, "spk")

	got, err := s.native(id, hal.ScopeOutput)
	if err != nil || got != "token" {
		t.Errorf("native(output) = %v, %v", got, err)
	}
	if _, err := s.native(id, hal.ScopeInput); !errors.Is(err, hal.ErrNoDevice) {
		t.Errorf("native(input) = %v", err)
	}
}

func TestStandardChannelMap(t *testing.T) {
	if got := standardChannelMap(6); len(got) != 6 || got[3] != hal.LabelLFEScreen {
		t.Errorf("5.1 = %v", got)
	}
	if got := standardChannelMap(7); len(got) != 7 || got[0] != hal.LabelUnknown {
		t.Errorf("7 channels = %v", got)
	}
	if got := standardChannelMap(0); got != nil {
		t.Errorf("0 channels = %v", got)
	}
}
