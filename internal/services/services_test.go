package services

import (
	"context"
	"errors"
	"sync"
	"time"
)

type notifierCall struct {
	Emails   []string
	State    float64
	RoomName string
}

type fakeNotifier struct {
	mu    sync.Mutex
	calls []notifierCall
	err   error
}

func (f *fakeNotifier) SendAlert(_ context.Context, emails []string, state float64, roomName string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, notifierCall{Emails: append([]string(nil), emails...), State: state, RoomName: roomName})

	return f.err
}

func (f *fakeNotifier) Calls() []notifierCall {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]notifierCall(nil), f.calls...)
}

type recordingBroadcaster struct {
	readings []Reading
}

func (b *recordingBroadcaster) BroadcastReading(reading Reading) {
	b.readings = append(b.readings, reading)
}

type recordingSink struct {
	readings []Reading
	err      error
}

func (s *recordingSink) WriteReading(_ context.Context, reading Reading) error {
	s.readings = append(s.readings, reading)
	return s.err
}

var errMailDown = errors.New("mail relay down")

func at(hour int) time.Time {
	return time.Date(2024, 5, 10, hour, 0, 0, 0, time.UTC)
}
