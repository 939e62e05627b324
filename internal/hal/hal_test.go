package hal

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"testing"
)

func TestErrorIs(t *testing.T) {
	err := fmt.Errorf("query: %w", NewError(ErrCodeBadObject, "object 9", nil))
	if !errors.Is(err, ErrBadObject) {
		t.Error("wrapped bad object should match ErrBadObject")
	}
	if errors.Is(err, ErrNoDevice) {
		t.Error("bad object should not match ErrNoDevice")
	}

	cause := errors.New("ioctl failed")
	wrapped := NewError(ErrCodeUnspecified, "probe", cause)
	if !errors.Is(wrapped, cause) {
		t.Error("cause should be reachable through Unwrap")
	}
	if got := wrapped.Error(); got != "UNSPECIFIED: probe: ioctl failed" {
		t.Errorf("Error() = %q", got)
	}
}

func TestObjectIDString(t *testing.T) {
	tests := []struct {
		id   ObjectID
		want string
	}{
		{ObjectUnknown, "unknown"},
		{SystemObject, "system"},
		{257, "257"},
	}
	for _, tt := range tests {
		if got := tt.id.String(); got != tt.want {
			t.Errorf("ObjectID(%d).String() = %q, want %q", uint32(tt.id), got, tt.want)
		}
	}
	if ValidObject(ObjectUnknown) || !ValidObject(SystemObject) {
		t.Error("ValidObject misclassifies sentinels")
	}
}

func TestParseChannelLabel(t *testing.T) {
	for _, label := range []ChannelLabel{LabelLeft, LabelLFEScreen, LabelMono, LabelUnknown} {
		got, ok := ParseChannelLabel(label.String())
		if !ok || got != label {
			t.Errorf("ParseChannelLabel(%q) = %v, %v", label.String(), got, ok)
		}
	}
	if _, ok := ParseChannelLabel("left"); ok {
		t.Error("label names are case-sensitive")
	}
	if got := ChannelLabel(999).String(); got != "Label(999)" {
		t.Errorf("unnamed label = %q", got)
	}
}

func TestDispatcherOrder(t *testing.T) {
	d := NewDispatcher()
	defer d.Stop()

	gate := make(chan struct{})
	d.Post(func() { <-gate })

	var mu sync.Mutex
	var got []int
	for i := range 50 {
		d.Post(func() {
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
			if i == 10 {
				// Nested posts queue behind everything already posted.
				d.Post(func() {
					mu.Lock()
					got = append(got, 100)
					mu.Unlock()
				})
			}
		})
	}
	close(gate)
	d.Sync()
	d.Sync()

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 51 {
		t.Fatalf("ran %d callbacks, want 51", len(got))
	}
	for i := range 50 {
		if got[i] != i {
			t.Fatalf("callback %d ran at position %d", got[i], i)
		}
	}
	if got[50] != 100 {
		t.Errorf("nested callback ran at wrong position: %v", got[45:])
	}
}

func TestDispatcherStopDropsPosts(t *testing.T) {
	d := NewDispatcher()
	d.Stop()
	d.Stop()

	ran := false
	d.Post(func() { ran = true })
	d.Sync()
	if ran {
		t.Error("callback ran after Stop")
	}
}

func TestListenerSetNotifyGroupsAddresses(t *testing.T) {
	d := NewDispatcher()
	defer d.Stop()

	var set ListenerSet
	calls := make(chan []PropertyAddress, 4)
	l := &Listener{Func: func(id ObjectID, addrs []PropertyAddress) {
		if id != SystemObject {
			t.Errorf("notified for %s", id)
		}
		calls <- addrs
	}}

	out, in := DefaultAddress(ScopeOutput), DefaultAddress(ScopeInput)
	if err := set.Add(SystemObject, out, l); err != nil {
		t.Fatal(err)
	}
	if err := set.Add(SystemObject, in, l); err != nil {
		t.Fatal(err)
	}
	if got := set.Count(SystemObject, out); got != 1 {
		t.Errorf("Count = %d", got)
	}

	set.Notify(d, SystemObject, out, in, DevicesAddress)
	d.Sync()

	if len(calls) != 1 {
		t.Fatalf("got %d calls, want 1", len(calls))
	}
	if addrs := <-calls; !slices.Equal(addrs, []PropertyAddress{out, in}) {
		t.Errorf("addresses = %v", addrs)
	}

	set.Remove(SystemObject, out, l)
	set.Remove(SystemObject, out, l)
	set.Notify(d, SystemObject, out)
	d.Sync()
	if len(calls) != 0 {
		t.Error("removed listener was notified")
	}
}

func TestListenerSetRejectsNil(t *testing.T) {
	var set ListenerSet
	if err := set.Add(SystemObject, DevicesAddress, nil); !errors.Is(err, ErrUnspecified) {
		t.Errorf("nil listener: %v", err)
	}
	if err := set.Add(SystemObject, DevicesAddress, &Listener{}); !errors.Is(err, ErrUnspecified) {
		t.Errorf("nil func: %v", err)
	}
}
