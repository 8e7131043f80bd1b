package audioproc

import (
	"math"

	"gonum.org/v1/gonum/dsp/fourier"

	"github.com/callytics/callytics/cmd/server/internal/audio"
	"github.com/callytics/callytics/cmd/server/internal/store"
)

// Feature extraction frame sizing.
const (
	featNFFT = 2048
	featHop  = 512
	numMels  = 26
	numMFCC  = 13
)

// ExtractFeatures computes the acoustic descriptors persisted on the File
// row: overall RMS loudness, zero-crossing rate, spectral centroid, band
// energy ratios and 13 MFCCs averaged over frames. Independent of the text
// path; the caller degrades to zero values on failure.
func ExtractFeatures(clip *audio.Clip) store.AcousticFeatures {
	var f store.AcousticFeatures
	if len(clip.Samples) == 0 || clip.SampleRate <= 0 {
		return f
	}

	f.RMSLoudness = rmsLoudness(clip.Samples)
	f.ZeroCrossingRate = zeroCrossingRate(clip.Samples)

	spectrum := averageSpectrum(clip.Samples)
	if spectrum == nil {
		return f
	}

	binHz := float64(clip.SampleRate) / featNFFT
	f.SpectralCentroid = spectralCentroid(spectrum, binHz)

	total := 0.0
	for _, p := range spectrum {
		total += p
	}
	if total > 0 {
		f.EQ20_250 = bandEnergy(spectrum, binHz, 20, 250) / total
		f.EQ250_2000 = bandEnergy(spectrum, binHz, 250, 2000) / total
		f.EQ2000_6000 = bandEnergy(spectrum, binHz, 2000, 6000) / total
		f.EQ6000_20000 = bandEnergy(spectrum, binHz, 6000, 20000) / total
	}

	mfcc := melCepstrum(spectrum, clip.SampleRate)
	copy(f.MFCC[:], mfcc)
	return f
}

func rmsLoudness(samples []float64) float64 {
	var sum float64
	for _, s := range samples {
		sum += s * s
	}
	return math.Sqrt(sum / float64(len(samples)))
}

func zeroCrossingRate(samples []float64) float64 {
	if len(samples) < 2 {
		return 0
	}
	var crossings int
	for i := 1; i < len(samples); i++ {
		if (samples[i-1] >= 0) != (samples[i] >= 0) {
			crossings++
		}
	}
	return float64(crossings) / float64(len(samples)-1)
}

// averageSpectrum returns the power spectrum (featNFFT/2+1 bins) averaged
// over Hann-windowed frames.
func averageSpectrum(samples []float64) []float64 {
	if len(samples) < featNFFT {
		// zero-pad a single frame for very short clips
		padded := make([]float64, featNFFT)
		copy(padded, samples)
		samples = padded
	}

	fft := fourier.NewFFT(featNFFT)
	window := hannWindow(featNFFT)
	frame := make([]float64, featNFFT)

	numBins := featNFFT/2 + 1
	power := make([]float64, numBins)
	frames := 0

	for off := 0; off+featNFFT <= len(samples); off += featHop {
		for i := 0; i < featNFFT; i++ {
			frame[i] = samples[off+i] * window[i]
		}
		coeffs := fft.Coefficients(nil, frame)
		for i, c := range coeffs {
			re, im := real(c), imag(c)
			power[i] += re*re + im*im
		}
		frames++
	}
	if frames == 0 {
		return nil
	}
	for i := range power {
		power[i] /= float64(frames)
	}
	return power
}

func hannWindow(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(n-1)))
	}
	return w
}

func spectralCentroid(power []float64, binHz float64) float64 {
	var num, den float64
	for i, p := range power {
		num += float64(i) * binHz * p
		den += p
	}
	if den == 0 {
		return 0
	}
	return num / den
}

func bandEnergy(power []float64, binHz, lo, hi float64) float64 {
	var sum float64
	for i, p := range power {
		f := float64(i) * binHz
		if f >= lo && f < hi {
			sum += p
		}
	}
	return sum
}

// melCepstrum computes numMFCC cepstral coefficients from a power spectrum:
// mel filterbank, log energies, then DCT-II.
func melCepstrum(power []float64, sampleRate int) []float64 {
	filters := melFilterbank(len(power), numMels, sampleRate)

	logEnergies := make([]float64, numMels)
	for m, filter := range filters {
		var e float64
		for i, w := range filter {
			e += power[i] * w
		}
		if e < 1e-10 {
			e = 1e-10
		}
		logEnergies[m] = math.Log(e)
	}

	mfcc := make([]float64, numMFCC)
	for k := 0; k < numMFCC; k++ {
		var sum float64
		for m := 0; m < numMels; m++ {
			sum += logEnergies[m] * math.Cos(math.Pi*float64(k)*(float64(m)+0.5)/float64(numMels))
		}
		mfcc[k] = sum
	}
	return mfcc
}

func hzToMel(hz float64) float64 {
	return 2595 * math.Log10(1+hz/700)
}

func melToHz(mel float64) float64 {
	return 700 * (math.Pow(10, mel/2595) - 1)
}

// melFilterbank builds numFilters triangular filters over numBins spectrum
// bins, spaced evenly on the mel scale from 0 Hz to Nyquist.
func melFilterbank(numBins, numFilters, sampleRate int) [][]float64 {
	nyquist := float64(sampleRate) / 2
	melMax := hzToMel(nyquist)

	points := make([]int, numFilters+2)
	for i := range points {
		hz := melToHz(melMax * float64(i) / float64(numFilters+1))
		bin := int(hz / nyquist * float64(numBins-1))
		if bin >= numBins {
			bin = numBins - 1
		}
		points[i] = bin
	}

	filters := make([][]float64, numFilters)
	for m := 1; m <= numFilters; m++ {
		filter := make([]float64, numBins)
		left, center, right := points[m-1], points[m], points[m+1]
		for i := left; i < center; i++ {
			if center > left {
				filter[i] = float64(i-left) / float64(center-left)
			}
		}
		for i := center; i <= right && i < numBins; i++ {
			if right > center {
				filter[i] = float64(right-i) / float64(right-center)
			} else if i == center {
				filter[i] = 1
			}
		}
		filters[m-1] = filter
	}
	return filters
}
