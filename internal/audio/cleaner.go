package audio

import (
	"errors"
	"math"
)

var ErrSilent = errors.New("no speech in recording")

// Cleaner removes DC offset, resamples to the transcription rate, trims
// leading and trailing silence and normalizes the peak.
type Cleaner struct {
	TargetRate       int
	SilenceThreshold float32
	TargetPeak       float32
	// PadMillis of audio kept on each side of the trimmed speech.
	PadMillis int
}

func NewCleaner() *Cleaner {
	return &Cleaner{
		TargetRate:       16000,
		SilenceThreshold: 0.02,
		TargetPeak:       0.9,
		PadMillis:        100,
	}
}

func (c *Cleaner) Clean(samples []float32, sampleRate int) ([]float32, int, error) {
	if sampleRate <= 0 {
		return nil, 0, errors.New("invalid sample rate")
	}
	if len(samples) == 0 {
		return nil, 0, ErrSilent
	}
	out := removeDC(samples)
	rate := sampleRate
	if c.TargetRate > 0 && c.TargetRate != sampleRate {
		out = resample(out, sampleRate, c.TargetRate)
		rate = c.TargetRate
	}
	out = trimSilence(out, c.SilenceThreshold, rate*c.PadMillis/1000)
	if len(out) == 0 {
		return nil, 0, ErrSilent
	}
	normalize(out, c.TargetPeak)
	return out, rate, nil
}

func removeDC(in []float32) []float32 {
	var sum float64
	for _, s := range in {
		sum += float64(s)
	}
	mean := float32(sum / float64(len(in)))
	out := make([]float32, len(in))
	for i, s := range in {
		out[i] = s - mean
	}
	return out
}

// resample uses linear interpolation.
func resample(in []float32, from, to int) []float32 {
	n := int(int64(len(in)) * int64(to) / int64(from))
	if n == 0 {
		return nil
	}
	out := make([]float32, n)
	step := float64(from) / float64(to)
	for i := range out {
		pos := float64(i) * step
		j := int(pos)
		if j >= len(in)-1 {
			out[i] = in[len(in)-1]
			continue
		}
		frac := float32(pos - float64(j))
		out[i] = in[j]*(1-frac) + in[j+1]*frac
	}
	return out
}

func trimSilence(in []float32, threshold float32, pad int) []float32 {
	first, last := -1, -1
	for i, s := range in {
		if abs32(s) >= threshold {
			if first < 0 {
				first = i
			}
			last = i
		}
	}
	if first < 0 {
		return nil
	}
	first -= pad
	if first < 0 {
		first = 0
	}
	last += pad
	if last >= len(in) {
		last = len(in) - 1
	}
	return in[first : last+1]
}

func normalize(in []float32, target float32) {
	if target <= 0 {
		return
	}
	var peak float32
	for _, s := range in {
		if a := abs32(s); a > peak {
			peak = a
		}
	}
	if peak == 0 {
		return
	}
	gain := target / peak
	for i := range in {
		in[i] *= gain
	}
}

func abs32(f float32) float32 {
	return float32(math.Abs(float64(f)))
}
