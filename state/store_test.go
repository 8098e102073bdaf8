package state

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"testing"

	"github.com/Galaxy-Crusader/KalmanLocationManager/types/fix"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "nested", "estimates.db"), false)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Error(err)
		}
	})
	return s
}

func TestStore_PutLast(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.Last(fix.SourceFused); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound on empty store, got %v", err)
	}

	alt := 1200.5
	for i, e := range []fix.Estimate{
		{Source: fix.SourceFused, T: 3000, Lat: 46.9, Lon: -114.1, HorizontalAccuracy: 4, Alt: &alt, Bearing: 90, Speed: 2},
		{Source: fix.SourceFused, T: 1000, Lat: 46.8, Lon: -114.0, HorizontalAccuracy: 6},
		{Source: fix.SourceSat, T: 5000, Lat: 1, Lon: 1, HorizontalAccuracy: 3},
	} {
		if err := s.Put(e); err != nil {
			t.Fatalf("put %d: %v", i, err)
		}
	}

	last, err := s.Last(fix.SourceFused)
	if err != nil {
		t.Fatal(err)
	}
	if last.T != 3000 || last.Lat != 46.9 || last.Speed != 2 || last.Bearing != 90 {
		t.Errorf("Expected newest fused estimate, got %+v", last)
	}
	if last.Alt == nil || *last.Alt != alt {
		t.Errorf("Expected altitude %v, got %v", alt, last.Alt)
	}
	if got := s.Count(fix.SourceFused); got != 2 {
		t.Errorf("Expected 2 fused estimates, got %d", got)
	}
	if got := s.Count(fix.SourceNet); got != 0 {
		t.Errorf("Expected no net estimates, got %d", got)
	}
}

func TestStore_SkipsNoFix(t *testing.T) {
	s := openTestStore(t)
	if err := s.Put(fix.Estimate{Source: fix.SourceFused, T: 1000, HorizontalAccuracy: math.Inf(1)}); err != nil {
		t.Fatal(err)
	}
	if got := s.Count(fix.SourceFused); got != 0 {
		t.Errorf("estimate without a fix should not be stored, got %d", got)
	}
}

func TestStore_RangeOrdered(t *testing.T) {
	s := openTestStore(t)
	// Negative times sort before positive ones.
	for _, tm := range []int64{5000, -2000, 0, 3000, 1000} {
		if err := s.Put(fix.Estimate{Source: fix.SourceFused, T: tm, Lat: 1, Lon: 1, HorizontalAccuracy: 5}); err != nil {
			t.Fatal(err)
		}
	}
	var got []int64
	if err := s.Range(fix.SourceFused, -5000, 5000, func(e fix.Estimate) bool {
		got = append(got, e.T)
		return true
	}); err != nil {
		t.Fatal(err)
	}
	want := []int64{-2000, 0, 1000, 3000}
	if len(got) != len(want) {
		t.Fatalf("Expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Expected %v, got %v", want, got)
			break
		}
	}

	n := 0
	_ = s.Range(fix.SourceFused, 0, math.MaxInt64, func(fix.Estimate) bool {
		n++
		return n < 2
	})
	if n != 2 {
		t.Errorf("Range should stop when fn returns false, called %d times", n)
	}
}

func TestStore_Consume(t *testing.T) {
	s := openTestStore(t)
	in := make(chan fix.Estimate, 10)
	for i := int64(1); i <= 10; i++ {
		in <- fix.Estimate{Source: fix.SourceFused, T: i * 200, Lat: 1, Lon: 1, HorizontalAccuracy: 5}
	}
	close(in)
	if err := s.Consume(context.Background(), in); err != nil {
		t.Fatal(err)
	}
	if got := s.Count(fix.SourceFused); got != 10 {
		t.Errorf("Expected 10 stored, got %d", got)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s.Consume(ctx, make(chan fix.Estimate)); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestStore_ReadOnly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "estimates.db")
	s, err := Open(path, false)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Put(fix.Estimate{Source: fix.SourceNet, T: 1, Lat: 1, Lon: 1, HorizontalAccuracy: 40}); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	ro, err := Open(path, true)
	if err != nil {
		t.Fatal(err)
	}
	defer ro.Close()
	if _, err := ro.Last(fix.SourceNet); err != nil {
		t.Errorf("read only store should see existing estimates: %v", err)
	}
	if err := ro.Put(fix.Estimate{Source: fix.SourceNet, T: 2, Lat: 1, Lon: 1, HorizontalAccuracy: 40}); err == nil {
		t.Errorf("put on a read only store should fail")
	}
}
