package memory

import (
	"errors"
	"testing"

	"github.com/multios/introspect/internal/errorutil"
)

func TestFragmentation(t *testing.T) {
	tests := []struct {
		name    string
		regions []Region
		want    float64
	}{
		{
			name: "no regions",
		},
		{
			name: "no free space",
			regions: []Region{
				{BaseAddress: 0x1000, Size: 300, Used: true},
			},
		},
		{
			name: "one contiguous free block",
			regions: []Region{
				{BaseAddress: 0x1000, Size: 300},
			},
		},
		{
			name: "three equal free blocks",
			regions: []Region{
				{BaseAddress: 0x1000, Size: 100},
				{BaseAddress: 0x3000, Size: 100},
				{BaseAddress: 0x5000, Size: 100},
			},
			want: 1 - float64(100)/float64(300),
		},
		{
			name: "used regions do not count",
			regions: []Region{
				{BaseAddress: 0x1000, Size: 500},
				{BaseAddress: 0x3000, Size: 1000, Used: true},
				{BaseAddress: 0x9000, Size: 250},
			},
			want: 1 - float64(500)/float64(750),
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			s := testSnapshot(1, 42, map[View][]Region{ViewHeap: test.regions})
			if got := Fragmentation(s, ViewHeap); got != test.want {
				t.Fatalf("Fragmentation returned %f, want %f", got, test.want)
			}
		})
	}
}

func TestFragmentationOrdering(t *testing.T) {
	contiguous := testSnapshot(1, 42, map[View][]Region{
		ViewHeap: {{BaseAddress: 0x1000, Size: 300}},
	})
	splintered := testSnapshot(2, 42, map[View][]Region{
		ViewHeap: {
			{BaseAddress: 0x1000, Size: 100},
			{BaseAddress: 0x3000, Size: 100},
			{BaseAddress: 0x5000, Size: 100},
		},
	})
	if Fragmentation(splintered, ViewHeap) <= Fragmentation(contiguous, ViewHeap) {
		t.Fatal("expected three scattered blocks to fragment more than one contiguous block")
	}
}

func TestCheckLeak(t *testing.T) {
	block := func(base, size uint64) Region {
		return Region{View: ViewHeap, BaseAddress: base, Size: size, Used: true}
	}

	tests := []struct {
		name      string
		base      []Region
		target    []Region
		threshold uint64
		want      bool
	}{
		{
			name:   "additive growth above the threshold",
			base:   []Region{block(0x1000, 1<<20)},
			target: []Region{block(0x1000, 1<<20), block(0x200000, 3<<20)},
			want:   true,
		},
		{
			name:   "growth below the threshold",
			base:   []Region{block(0x1000, 1<<20)},
			target: []Region{block(0x1000, 1<<20), block(0x200000, 100<<10)},
			want:   false,
		},
		{
			name:   "churn with a stable total",
			base:   []Region{block(0x1000, 1<<20), block(0x200000, 2<<20)},
			target: []Region{block(0x1000, 1<<20), block(0x600000, 2<<20)},
			want:   false,
		},
		{
			name:   "in-place growth is not additive",
			base:   []Region{block(0x1000, 1<<20)},
			target: []Region{block(0x1000, 4<<20)},
			want:   false,
		},
		{
			name:      "custom threshold",
			base:      []Region{block(0x1000, 1000)},
			target:    []Region{block(0x1000, 1000), block(0x9000, 200)},
			threshold: 100,
			want:      true,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			base := testSnapshot(1, 42, map[View][]Region{ViewHeap: test.base})
			target := testSnapshot(2, 42, map[View][]Region{ViewHeap: test.target})
			report, err := CheckLeak(base, target, test.threshold)
			if err != nil {
				t.Fatal(err)
			}
			if report.Suspected != test.want {
				t.Fatalf("Suspected is %t, want %t", report.Suspected, test.want)
			}
		})
	}
}

func TestCheckLeakAcrossProcesses(t *testing.T) {
	base := testSnapshot(1, 42, nil)
	target := testSnapshot(2, 43, nil)
	if _, err := CheckLeak(base, target, 0); !errors.Is(err, errorutil.ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
}
