package main

import (
	"testing"
	"time"
)

func TestKeeperWait(t *testing.T) {
	const period = uint64(3600)
	cases := []struct {
		name string
		now  int64
		next uint64
		want time.Duration
	}{
		{"sleeps until the boundary", 1000, 1900, 900 * time.Second},
		{"caps at one period", 1000, 1000 + 10*3600, 3600 * time.Second},
		{"boundary already passed", 2000, 1900, time.Second},
		{"boundary right now", 1900, 1900, time.Second},
		{"one second out", 1899, 1900, time.Second},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := keeperWait(tc.now, tc.next, period); got != tc.want {
				t.Fatalf("keeperWait(%d, %d, %d) = %s, want %s", tc.now, tc.next, period, got, tc.want)
			}
		})
	}
}

func TestKeeperWaitZeroPeriod(t *testing.T) {
	if got := keeperWait(0, 10, 0); got != time.Second {
		t.Fatalf("zero period wait = %s, want 1s", got)
	}
}
