package scoring

import "testing"

func TestBandFromScore(t *testing.T) {
	cases := []struct {
		score int
		want  Band
	}{
		{0, BandCold},
		{9, BandCold},
		{10, BandWarm},
		{19, BandWarm},
		{20, BandHot},
		{29, BandHot},
		{30, BandCritical},
		{100, BandCritical},
	}
	for _, tc := range cases {
		if got := BandFromScore(tc.score); got != tc.want {
			t.Errorf("BandFromScore(%d) = %s, want %s", tc.score, got, tc.want)
		}
	}
}

func TestShouldEmit_FirstClassificationAlwaysEmits(t *testing.T) {
	for _, band := range []Band{BandCold, BandWarm, BandHot, BandCritical} {
		if !ShouldEmit(nil, band) {
			t.Errorf("ShouldEmit(nil, %s) = false, want true", band)
		}
	}
}

func TestShouldEmit_UpwardOnly(t *testing.T) {
	warm := BandWarm
	hot := BandHot
	cold := BandCold

	cases := []struct {
		name string
		prev *Band
		next Band
		want bool
	}{
		{"same band never re-emits", &warm, BandWarm, false},
		{"downward never emits", &hot, BandWarm, false},
		{"hot to cold never emits", &hot, BandCold, false},
		{"cold to critical emits", &cold, BandCritical, true},
		{"warm to hot emits", &warm, BandHot, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ShouldEmit(tc.prev, tc.next); got != tc.want {
				t.Errorf("ShouldEmit(%v, %s) = %v, want %v", *tc.prev, tc.next, got, tc.want)
			}
		})
	}
}
