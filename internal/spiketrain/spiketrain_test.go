package spiketrain

import (
	"testing"
)

func TestTrainTruncate(t *testing.T) {
	tests := []struct {
		name string
		in   Train
		d    float64
		want Train
	}{
		{"empty", Train{}, 1.0, Train{}},
		{"all inside", Train{0.1, 0.2}, 1.0, Train{0.1, 0.2}},
		{"inclusive boundary", Train{0.5, 1.0, 1.5}, 1.0, Train{0.5, 1.0}},
		{"unsorted kept in order", Train{0.9, 2.0, 0.1}, 1.0, Train{0.9, 0.1}},
		{"all outside", Train{2.0, 3.0}, 1.0, Train{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.in.Truncate(tt.d)
			if len(got) != len(tt.want) {
				t.Fatalf("Truncate(%v, %v) = %v, want %v", tt.in, tt.d, got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("Truncate(%v, %v)[%d] = %v, want %v", tt.in, tt.d, i, got[i], tt.want[i])
				}
			}
			if n := tt.in.CountUntil(tt.d); n != len(tt.want) {
				t.Errorf("CountUntil = %d, want %d", n, len(tt.want))
			}
		})
	}
}

func TestTrainSortedDoesNotMutate(t *testing.T) {
	in := Train{0.3, 0.1, 0.2}
	got := in.Sorted()

	if got[0] != 0.1 || got[1] != 0.2 || got[2] != 0.3 {
		t.Errorf("Sorted() = %v", got)
	}
	if in[0] != 0.3 {
		t.Errorf("Sorted mutated input: %v", in)
	}
	if empty := Train(nil).Sorted(); empty == nil || len(empty) != 0 {
		t.Errorf("Sorted(nil) = %#v, want empty non-nil", empty)
	}
}

func TestUnitSpikeCounts(t *testing.T) {
	u := Unit{Trials: []Train{{0.1, 0.5, 1.2}, {}, {1.0}}}
	got := u.SpikeCounts(1.0)
	want := []float64{2, 0, 1}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("SpikeCounts[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestPopulationTrialCount(t *testing.T) {
	p := Population{Units: []Unit{{Trials: make([]Train, 3)}, {Trials: make([]Train, 2)}}}
	if n := p.TrialCount(); n != 5 {
		t.Errorf("TrialCount() = %d, want 5", n)
	}
}
