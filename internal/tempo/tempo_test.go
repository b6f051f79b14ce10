package tempo

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInterpolateArgmax(t *testing.T) {
	t.Run("SymmetricPeak_StaysCentered", func(t *testing.T) {
		values := []float64{0.1, 1.0, 0.1}
		assert.Equal(t, 1.0, interpolateArgmax(values, 1))
	})

	t.Run("RisingNeighborhood_ShiftsRight", func(t *testing.T) {
		values := []float64{0.1, 0.5, 0.9}
		refined := interpolateArgmax(values, 2)
		// boundary index: falls back to the coarse argmax
		assert.Equal(t, 2.0, refined)

		// interior skewed peak shifts toward the larger neighbor but
		// never more than one class
		values = []float64{0.1, 0.2, 0.9, 0.5}
		refined = interpolateArgmax(values, 2)
		assert.Greater(t, refined, 2.0)
		assert.Less(t, refined, 3.0)
	})

	t.Run("FlatNeighborhood_FallsBack", func(t *testing.T) {
		values := []float64{0.5, 0.5, 0.5}
		assert.Equal(t, 1.0, interpolateArgmax(values, 1))
	})

	t.Run("Boundaries_FallBack", func(t *testing.T) {
		values := []float64{0.9, 0.1, 0.2}
		assert.Equal(t, 0.0, interpolateArgmax(values, 0))
		assert.Equal(t, 2.0, interpolateArgmax(values, 2))
	})
}

func TestClassIndexToBpm(t *testing.T) {
	assert.Equal(t, 30.0, classIndexToBpm(0))
	assert.Equal(t, 150.0, classIndexToBpm(120))
	assert.Equal(t, 285.0, classIndexToBpm(255))
	// clipping at both ends
	assert.Equal(t, 20.0, classIndexToBpm(-30))
	assert.Equal(t, 300.0, classIndexToBpm(500))
}

func TestRowsToBpmSeries(t *testing.T) {
	prediction := make([]float32, 2*TempoClasses)
	prediction[90] = 0.9       // window 0 -> class 90 -> 120 BPM
	prediction[256+60] = 0.7   // window 1 -> class 60 -> 90 BPM
	prediction[256+100] = 0.69 // runner-up, must lose

	series := rowsToBpmSeries(prediction, 2)
	assert.Equal(t, []float64{120, 90}, series)
}

func TestMovingAverageSame(t *testing.T) {
	values := []float64{1, 1, 1, 1, 1, 1, 1}
	smoothed := movingAverageSame(values, 5)

	assert.Len(t, smoothed, len(values))

	// interior values are unchanged
	assert.InDelta(t, 1.0, smoothed[3], 1e-12)

	// boundaries divide by the nominal width, so they attenuate: the
	// first element sees only 3 in-range samples over a width of 5
	assert.InDelta(t, 3.0/5.0, smoothed[0], 1e-12)
	assert.InDelta(t, 4.0/5.0, smoothed[1], 1e-12)
	assert.InDelta(t, 3.0/5.0, smoothed[len(smoothed)-1], 1e-12)
}

func TestAveragePredictions(t *testing.T) {
	prediction := make([]float32, 2*TempoClasses)
	prediction[10] = 0.4
	prediction[256+10] = 0.8
	prediction[256+20] = 0.2

	averaged := averagePredictions(prediction, 2)
	assert.InDelta(t, 0.6, averaged[10], 1e-9)
	assert.InDelta(t, 0.1, averaged[20], 1e-9)
}

func TestCompressTempoPoints(t *testing.T) {
	hopSeconds := float64(LocalHopFrames) * featureFrameSeconds // ~1.486 s

	t.Run("StableSeries_KeepsSparsePoints", func(t *testing.T) {
		series := []float64{120, 120, 120, 120}
		points := compressTempoPoints(series, hopSeconds)

		// hop exceeds the time threshold, so every point survives on time
		assert.Len(t, points, 4)
		for i := 1; i < len(points); i++ {
			dt := points[i].TimeSeconds - points[i-1].TimeSeconds
			db := math.Abs(points[i].Bpm - points[i-1].Bpm)
			assert.True(t, dt >= minTimeDelta || db >= minBpmDelta,
				"compression invariant violated between %d and %d", i-1, i)
		}
	})

	t.Run("DenseHop_DropsNearDuplicates", func(t *testing.T) {
		series := []float64{120, 120, 120.1, 120, 121, 120}
		points := compressTempoPoints(series, 0.1)

		assert.Equal(t, 120.0, points[0].Bpm)
		for i := 1; i < len(points); i++ {
			dt := points[i].TimeSeconds - points[i-1].TimeSeconds
			db := math.Abs(points[i].Bpm - points[i-1].Bpm)
			assert.True(t, dt >= minTimeDelta || db >= minBpmDelta)
		}
		// the 121 jump must survive on the BPM delta
		found := false
		for _, p := range points {
			if p.Bpm == 121 {
				found = true
			}
		}
		assert.True(t, found, "BPM jump must not be compressed away")
	})

	t.Run("TimesStrictlyIncrease", func(t *testing.T) {
		series := []float64{100, 200, 100, 200, 100}
		points := compressTempoPoints(series, 0.05)
		for i := 1; i < len(points); i++ {
			assert.Greater(t, points[i].TimeSeconds, points[i-1].TimeSeconds)
		}
	})

	t.Run("ClampsToValidRange", func(t *testing.T) {
		series := []float64{5, 400}
		points := compressTempoPoints(series, 1)
		assert.Equal(t, 20.0, points[0].Bpm)
		assert.Equal(t, 300.0, points[1].Bpm)
	})

	t.Run("Empty", func(t *testing.T) {
		assert.Nil(t, compressTempoPoints(nil, 1))
	})
}
