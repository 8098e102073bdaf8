package common

import (
	"reflect"
	"sync"
	"testing"
)

func TestRingBuffer_Wraps(t *testing.T) {
	rb := NewRingBuffer[int](3)
	if _, ok := rb.Last(); ok {
		t.Errorf("empty buffer has no last value")
	}
	for i := 1; i <= 4; i++ {
		rb.Add(i)
	}
	if got, want := rb.Get(), []int{2, 3, 4}; !reflect.DeepEqual(got, want) {
		t.Errorf("Expected %v, got %v", want, got)
	}
	if got, want := rb.Tail(2), []int{3, 4}; !reflect.DeepEqual(got, want) {
		t.Errorf("Expected tail %v, got %v", want, got)
	}
	if got, want := rb.Tail(10), []int{2, 3, 4}; !reflect.DeepEqual(got, want) {
		t.Errorf("Expected tail %v, got %v", want, got)
	}
	if last, ok := rb.Last(); !ok || last != 4 {
		t.Errorf("Expected last 4, got %v", last)
	}
	if rb.Len() != 3 {
		t.Errorf("Expected len 3, got %d", rb.Len())
	}
}

func TestRingBuffer_Scan(t *testing.T) {
	rb := NewRingBuffer[int](5)
	for i := 1; i <= 7; i++ {
		rb.Add(i)
	}
	var got []int
	rb.Scan(func(v int) bool {
		got = append(got, v)
		return v < 5
	})
	if want := []int{3, 4, 5}; !reflect.DeepEqual(got, want) {
		t.Errorf("Expected %v, got %v", want, got)
	}
}

func TestRingBuffer_Reset(t *testing.T) {
	rb := NewRingBuffer[int](2)
	rb.Add(1)
	rb.Reset()
	if rb.Len() != 0 || len(rb.Get()) != 0 {
		t.Errorf("Expected empty buffer after reset")
	}
	rb.Add(9)
	if got := rb.Get(); !reflect.DeepEqual(got, []int{9}) {
		t.Errorf("Expected [9], got %v", got)
	}
}

func TestRingBuffer_Concurrent(t *testing.T) {
	rb := NewRingBuffer[int](100)
	var wg sync.WaitGroup
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				rb.Add(i)
				_ = rb.Tail(10)
			}
		}()
	}
	wg.Wait()
	if rb.Len() != 100 {
		t.Errorf("Expected full buffer, got %d", rb.Len())
	}
}
