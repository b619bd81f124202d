package scoring

// Band is a qualification band derived from a windowed score.
type Band string

const (
	BandCold     Band = "cold"
	BandWarm     Band = "warm"
	BandHot      Band = "hot"
	BandCritical Band = "critical"
)

var bandOrdinal = map[Band]int{
	BandCold:     0,
	BandWarm:     1,
	BandHot:      2,
	BandCritical: 3,
}

// BandFromScore maps a windowed score to its qualification band.
// Breakpoints: <10 cold, 10-19 warm, 20-29 hot, >=30 critical.
func BandFromScore(score int) Band {
	switch {
	case score >= 30:
		return BandCritical
	case score >= 20:
		return BandHot
	case score >= 10:
		return BandWarm
	default:
		return BandCold
	}
}

// ShouldEmit decides whether crossing into newBand warrants a signal.
// Emission is one-shot and upward-only: the first-ever classification always
// emits; after that only a strictly higher band does. Equal or lower bands
// never re-emit, so a subject cooling off and re-warming stays quiet until it
// exceeds its previous best. prevBand is the last *emitted* band, nil if the
// subject has never emitted.
func ShouldEmit(prevBand *Band, newBand Band) bool {
	if prevBand == nil {
		return true
	}
	return bandOrdinal[newBand] > bandOrdinal[*prevBand]
}
