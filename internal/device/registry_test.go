package device

import (
	"errors"
	"fmt"
	"slices"
	"testing"

	"github.com/smazurov/audionode/internal/hal"
	"github.com/smazurov/audionode/internal/hal/simhal"
)

const (
	speakers hal.ObjectID = 0x130
	mic      hal.ObjectID = 0x110
	headset  hal.ObjectID = 0x120
	dummy    hal.ObjectID = 0x140
)

func newService(t *testing.T) *simhal.Service {
	t.Helper()
	svc := simhal.New(
		simhal.Device{ID: speakers, UID: "speakers-uid", Name: "Speakers", Manufacturer: "Acme", OutputChannels: 2, SampleRate: 48000, MinRate: 44100, MaxRate: 96000, MinBuffer: 64, MaxBuffer: 4096},
		simhal.Device{ID: mic, Name: "Mic", InputChannels: 1},
		simhal.Device{ID: headset, Name: "Headset", InputChannels: 1, OutputChannels: 2},
		simhal.Device{ID: dummy, Name: "Dummy"},
	)
	t.Cleanup(func() { svc.Close() })
	return svc
}

func TestDevicesOfType(t *testing.T) {
	r := NewRegistry(newService(t))

	tests := []struct {
		name string
		typ  Type
		want []hal.ObjectID
	}{
		{"input", TypeInput, []hal.ObjectID{mic, headset}},
		{"output", TypeOutput, []hal.ObjectID{headset, speakers}},
		{"all is unfiltered and sorted", TypeAll, []hal.ObjectID{mic, headset, speakers, dummy}},
		{"unknown falls back to output", TypeUnknown, []hal.ObjectID{headset, speakers}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.DevicesOfType(t.Context(), tt.typ)
			if err != nil {
				t.Fatal(err)
			}
			if !slices.Equal(got, tt.want) {
				t.Errorf("DevicesOfType(%s) = %v, want %v", tt.typ, got, tt.want)
			}
		})
	}
}

func TestEnumerateOnlyChannelfulDevices(t *testing.T) {
	svc := newService(t)
	r := NewRegistry(svc)

	for _, typ := range []Type{TypeInput, TypeOutput, TypeAll} {
		t.Run(typ.String(), func(t *testing.T) {
			c, err := r.Enumerate(t.Context(), typ)
			if err != nil {
				t.Fatal(err)
			}
			defer c.Close()

			if c.Count != len(c.Devices) {
				t.Fatalf("count %d != len %d", c.Count, len(c.Devices))
			}
			for _, info := range c.Devices {
				if info.MaxChannels == 0 {
					t.Errorf("device %s has zero channels", info.ID)
				}
				if info.Type&typ == 0 {
					t.Errorf("device %s has type %s, not in %s", info.ID, info.Type, typ)
				}
				scope := hal.ScopeOutput
				if info.Type == TypeInput {
					scope = hal.ScopeInput
				}
				n, _ := svc.ChannelCount(info.ID, scope)
				if n != info.MaxChannels {
					t.Errorf("device %s channels %d, service says %d", info.ID, info.MaxChannels, n)
				}
			}
		})
	}
}

func TestEnumerateOrderOutputsFirst(t *testing.T) {
	r := NewRegistry(newService(t))
	c, err := r.Enumerate(t.Context(), TypeAll)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	var got []string
	for _, info := range c.Devices {
		got = append(got, fmt.Sprintf("%s:%s", info.Type, info.ID))
	}
	want := []string{
		"output:" + headset.String(),
		"output:" + speakers.String(),
		"input:" + mic.String(),
		"input:" + headset.String(),
	}
	if !slices.Equal(got, want) {
		t.Errorf("order = %v, want %v", got, want)
	}
}

func TestDestroyReclaimsAllStrings(t *testing.T) {
	r := NewRegistry(newService(t))

	c, err := r.Enumerate(t.Context(), TypeAll)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := r.Outstanding(), int64(c.Count*4); got != want {
		t.Fatalf("outstanding = %d, want %d", got, want)
	}

	r.Destroy(c)
	if c.Devices != nil || c.Count != 0 {
		t.Fatalf("collection not cleared: %+v", c)
	}
	if got := r.Outstanding(); got != 0 {
		t.Fatalf("outstanding after destroy = %d", got)
	}

	// Second destroy on a cleared collection is a no-op.
	r.Destroy(c)
	if got := r.Outstanding(); got != 0 {
		t.Fatalf("outstanding after second destroy = %d", got)
	}
}

func TestDestroyToleratesEmptyFields(t *testing.T) {
	r := NewRegistry(newService(t))
	c, err := r.Enumerate(t.Context(), TypeOutput)
	if err != nil {
		t.Fatal(err)
	}
	// Fields already cleared by the holder are treated as absent.
	c.Devices[0].VendorName = ""
	r.outstanding.Add(-1)

	c.Close()
	if got := r.Outstanding(); got != 0 {
		t.Fatalf("outstanding = %d", got)
	}
}

func TestDestroyForeignCollectionPanics(t *testing.T) {
	tests := []struct {
		name string
		c    *Collection
	}{
		{"zero value", &Collection{}},
		{"other registry", func() *Collection {
			other := NewRegistry(newService(t))
			c, err := other.Enumerate(t.Context(), TypeOutput)
			if err != nil {
				t.Fatal(err)
			}
			return c
		}()},
	}

	r := NewRegistry(newService(t))
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			defer func() {
				if recover() == nil {
					t.Error("expected panic")
				}
			}()
			r.Destroy(tt.c)
		})
	}
}

func TestEnumerateEmpty(t *testing.T) {
	svc := simhal.New()
	t.Cleanup(func() { svc.Close() })
	r := NewRegistry(svc)

	c, err := r.Enumerate(t.Context(), TypeAll)
	if err != nil {
		t.Fatal(err)
	}
	if c.Devices != nil || c.Count != 0 {
		t.Fatalf("expected empty collection, got %+v", c)
	}
	c.Close()
}

// flakyService fails the nth ChannelCount query for one device, so the
// device passes classification and fails descriptor construction.
type flakyService struct {
	*simhal.Service
	target hal.ObjectID
	failOn int
	calls  int
}

func (f *flakyService) ChannelCount(id hal.ObjectID, scope hal.Scope) (uint32, error) {
	if id == f.target {
		f.calls++
		if f.calls == f.failOn {
			return 0, hal.NewError(hal.ErrCodeUnspecified, "boom", nil)
		}
	}
	return f.Service.ChannelCount(id, scope)
}

func TestEnumerateFailureIsAllOrNothing(t *testing.T) {
	// Speakers are built after headset; the failure must release the
	// headset descriptor that was already built.
	svc := &flakyService{Service: newService(t), target: speakers, failOn: 2}
	r := NewRegistry(svc)

	c, err := r.Enumerate(t.Context(), TypeOutput)
	if !errors.Is(err, hal.ErrUnspecified) {
		t.Fatalf("got %v, want unspecified error", err)
	}
	if c != nil {
		t.Errorf("expected nil collection on failure")
	}
	if got := r.Outstanding(); got != 0 {
		t.Errorf("outstanding after failed enumerate = %d", got)
	}
}

func TestNewInfo(t *testing.T) {
	r := NewRegistry(newService(t))

	t.Run("synthetic strings", func(t *testing.T) {
		info, err := r.newInfo(mic, TypeInput)
		if err != nil {
			t.Fatal(err)
		}
		defer r.release([]Info{info})
		id := uint32(mic)
		if info.DeviceID != fmt.Sprintf("%d device_id", id) {
			t.Errorf("DeviceID = %q", info.DeviceID)
		}
		if info.FriendlyName != "Mic" {
			t.Errorf("FriendlyName = %q", info.FriendlyName)
		}
		if info.GroupID != fmt.Sprintf("%d group_id", id) {
			t.Errorf("GroupID = %q", info.GroupID)
		}
		if info.VendorName != fmt.Sprintf("%d vendor_name", id) {
			t.Errorf("VendorName = %q", info.VendorName)
		}
		if info.DefaultFormat != FormatF32NE || info.Format != FormatAll {
			t.Errorf("formats = %s/%s", info.Format, info.DefaultFormat)
		}
		if info.Preferred != PrefAll {
			t.Errorf("default input should be preferred, got %d", info.Preferred)
		}
	})

	t.Run("service properties", func(t *testing.T) {
		info, err := r.newInfo(speakers, TypeOutput)
		if err != nil {
			t.Fatal(err)
		}
		defer r.release([]Info{info})
		if info.DeviceID != "speakers-uid" || info.VendorName != "Acme" {
			t.Errorf("unexpected strings %+v", info)
		}
		if info.DefaultRate != 48000 || info.MinRate != 44100 || info.MaxRate != 96000 {
			t.Errorf("rates = %d/%d/%d", info.DefaultRate, info.MinRate, info.MaxRate)
		}
		if info.LatencyLo != 64 || info.LatencyHi != 4096 {
			t.Errorf("latency = %d/%d", info.LatencyLo, info.LatencyHi)
		}
		if info.Preferred != PrefNone {
			t.Errorf("speakers are not the default output")
		}
	})

	t.Run("zero channels", func(t *testing.T) {
		_, err := r.newInfo(dummy, TypeOutput)
		if !errors.Is(err, ErrZeroChannels) {
			t.Errorf("got %v, want ErrZeroChannels", err)
		}
	})

	t.Run("invalid type", func(t *testing.T) {
		for _, typ := range []Type{TypeUnknown, TypeAll} {
			_, err := r.newInfo(speakers, typ)
			if !errors.Is(err, ErrInvalidType) {
				t.Errorf("type %s: got %v, want ErrInvalidType", typ, err)
			}
		}
	})

	t.Run("bad object", func(t *testing.T) {
		_, err := r.newInfo(0x999, TypeOutput)
		if !errors.Is(err, hal.ErrBadObject) {
			t.Errorf("got %v, want bad object", err)
		}
	})

	if got := r.Outstanding(); got != 0 {
		t.Errorf("outstanding = %d", got)
	}
}

func TestDefaultDeviceID(t *testing.T) {
	r := NewRegistry(newService(t))

	if got := r.DefaultDeviceID(TypeUnknown); got != hal.ObjectUnknown {
		t.Errorf("unknown type: %s", got)
	}
	if got := r.DefaultDeviceID(TypeAll); got != hal.ObjectUnknown {
		t.Errorf("all type: %s", got)
	}
	if got := r.DefaultDeviceID(TypeInput); got != mic {
		t.Errorf("input default = %s, want %s", got, mic)
	}
	if got := r.DefaultDeviceID(TypeOutput); got != headset {
		t.Errorf("output default = %s, want %s", got, headset)
	}
}

func TestLatencyRange(t *testing.T) {
	svc := newService(t)
	r := NewRegistry(svc)
	if err := svc.SetDefault(hal.ScopeOutput, speakers); err != nil {
		t.Fatal(err)
	}
	lo, hi, err := r.LatencyRange()
	if err != nil {
		t.Fatal(err)
	}
	if lo == 0 || hi <= lo {
		t.Errorf("latency range %d..%d", lo, hi)
	}

	empty := simhal.New()
	t.Cleanup(func() { empty.Close() })
	if _, _, err := NewRegistry(empty).LatencyRange(); !errors.Is(err, hal.ErrNoDevice) {
		t.Errorf("got %v, want no device", err)
	}
}
