package provider

import (
	"sync"
	"time"

	"github.com/Galaxy-Crusader/KalmanLocationManager/types/fix"
)

// PushSensor is an in-process sensor. Whatever is pushed to it is delivered,
// synchronously on the pushing goroutine, to every subscriber.
type PushSensor struct {
	// FailSubscribe, if set, is returned by Subscribe.
	FailSubscribe error

	mu          sync.Mutex
	subs        map[*pushSubscription]struct{}
	minInterval time.Duration
}

func NewPushSensor() *PushSensor {
	return &PushSensor{subs: make(map[*pushSubscription]struct{})}
}

type pushSubscription struct {
	sensor        *PushSensor
	onMeasurement func(fix.Measurement)
	onStatus      func(fix.Status)
}

func (s *pushSubscription) Unsubscribe() {
	s.sensor.mu.Lock()
	defer s.sensor.mu.Unlock()
	delete(s.sensor.subs, s)
}

func (s *PushSensor) Subscribe(minInterval time.Duration, onMeasurement func(fix.Measurement), onStatus func(fix.Status)) (Subscription, error) {
	if s.FailSubscribe != nil {
		return nil, s.FailSubscribe
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	sub := &pushSubscription{sensor: s, onMeasurement: onMeasurement, onStatus: onStatus}
	s.subs[sub] = struct{}{}
	s.minInterval = minInterval
	return sub, nil
}

// Subscribers is the number of live subscriptions.
func (s *PushSensor) Subscribers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

// MinInterval is the hint given by the last subscriber.
func (s *PushSensor) MinInterval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.minInterval
}

func (s *PushSensor) snapshot() []*pushSubscription {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*pushSubscription, 0, len(s.subs))
	for sub := range s.subs {
		out = append(out, sub)
	}
	return out
}

func (s *PushSensor) Push(m fix.Measurement) {
	for _, sub := range s.snapshot() {
		sub.onMeasurement(m)
	}
}

func (s *PushSensor) SetStatus(st fix.Status) {
	for _, sub := range s.snapshot() {
		sub.onStatus(st)
	}
}
