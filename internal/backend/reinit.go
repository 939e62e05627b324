package backend

import (
	"errors"
	"time"

	"github.com/smazurov/audionode/internal/events"
	"github.com/smazurov/audionode/internal/hal"
	"github.com/smazurov/audionode/internal/listener"
	"github.com/smazurov/audionode/internal/metrics"
)

// onPropertyChanged runs on the hardware service's goroutine whenever a
// default device, device liveness or data source changes.
func (s *Stream) onPropertyChanged(id hal.ObjectID, addrs []hal.PropertyAddress) {
	if s.destroyed.Load() {
		return
	}
	reasons := make([]string, 0, len(addrs))
	for _, addr := range addrs {
		metrics.RecordNotification(string(addr.Selector))
		reasons = append(reasons, listener.EventString(addr))
	}
	s.logger.Debug("Device change notification", "stream_id", s.ID, "object", id, "reasons", reasons)
	s.scheduleReinit(reasons)
}

// scheduleReinit is the single-flight gate. Only the caller that flips the
// switching flag schedules work; everyone else is dropped until the
// reinitialization finishes.
func (s *Stream) scheduleReinit(reasons []string) bool {
	return s.scheduleReinitWith(reasons, nil)
}

// scheduleReinitWith runs prepare once the gate is won and before the
// reinitialization is queued. A losing caller never runs prepare.
func (s *Stream) scheduleReinitWith(reasons []string, prepare func()) bool {
	if !s.switching.CompareAndSwap(false, true) {
		s.coalesced.Add(1)
		metrics.RecordCoalesced(s.ID)
		s.logger.Debug("Reinitialization already in flight, dropping notification", "stream_id", s.ID)
		return false
	}

	s.switchMu.Lock()
	if s.destroyed.Load() {
		s.switchMu.Unlock()
		s.switching.Store(false)
		return false
	}
	s.reinitDone = make(chan struct{})
	s.switchMu.Unlock()

	if prepare != nil {
		prepare()
	}

	s.mu.Lock()
	cb := s.deviceChanged
	s.mu.Unlock()
	if cb != nil {
		cb()
	}
	s.ctx.publish(events.StreamDeviceChangedEvent{
		StreamID:  s.ID,
		Reasons:   reasons,
		Timestamp: time.Now().Format(time.RFC3339),
	})

	if !s.ctx.queue.submit(s.reinit) {
		s.logger.Warn("Context is closing, reinitialization dropped", "stream_id", s.ID)
		s.finishReinit()
		return false
	}
	return true
}

// reinit rebuilds the stream on the context's task queue: tear down the
// render unit and listeners, re-resolve devices, rebuild parameters and
// layout, then restart if the stream was running.
func (s *Stream) reinit() {
	defer s.finishReinit()
	if s.destroyed.Load() {
		return
	}

	s.mu.Lock()
	wasStarted := s.state == StateStarted
	s.teardownLocked()

	err := s.setupLocked(true)
	if err == nil && wasStarted {
		s.drained.Store(false)
		if startErr := s.unit.Start(); startErr != nil {
			s.teardownLocked()
			err = startErr
		}
	}
	if err != nil && s.state == StateStarted {
		s.state = StateStopped
	}
	cur := s.currentLocked()
	s.mu.Unlock()

	s.reinits.Add(1)
	metrics.RecordReinit(s.ID, err)

	ev := events.StreamReinitEvent{
		StreamID:  s.ID,
		Success:   err == nil,
		Timestamp: time.Now().Format(time.RFC3339),
	}
	if cur.Input != nil {
		ev.InputDevice = uint32(cur.Input.ID)
	}
	if cur.Output != nil {
		ev.OutputDevice = uint32(cur.Output.ID)
	}

	if err != nil {
		ev.Error = err.Error()
		if errors.Is(err, ErrDeviceDisconnected) {
			s.logger.Warn("Pinned device disconnected, stream stays stopped", "stream_id", s.ID, "error", err)
		} else {
			s.logger.Error("Stream reinitialization failed", "stream_id", s.ID, "error", err)
		}
		s.ctx.publish(ev)
		s.notifyState(StateChangeError)
		return
	}
	s.logger.Info("Stream reinitialized",
		"stream_id", s.ID, "input", ev.InputDevice, "output", ev.OutputDevice, "restarted", wasStarted)
	s.ctx.publish(ev)
}

func (s *Stream) finishReinit() {
	s.switchMu.Lock()
	if s.reinitDone != nil {
		close(s.reinitDone)
		s.reinitDone = nil
	}
	s.switchMu.Unlock()
	s.switching.Store(false)
}

func (s *Stream) currentLocked() CurrentDevice {
	var cur CurrentDevice
	if s.input != nil {
		d := s.input.device
		cur.Input = &d
	}
	if s.output != nil {
		d := s.output.device
		cur.Output = &d
	}
	return cur
}
