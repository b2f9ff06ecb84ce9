package tile

import (
	"fmt"
	"math"
)

// 自动设置方法.
const (
	AutoHistogram = "histogram"
	AutoGaussian  = "gaussian"

	// DefaultAutoThreshold 直方图两端各舍弃的像素比例.
	DefaultAutoThreshold = 0.0005

	histogramBins = 1024
	gaussianSigma = 2.0
)

// AutoRange 自动计算的通道强度区间，取值已归一化到 [0,1].
type AutoRange struct {
	Min float64
	Max float64
}

// AutoSettings 按方法估算平面的显示区间.
func AutoSettings(p *Plane, method string) (AutoRange, error) {
	switch method {
	case "", AutoHistogram:
		return HistogramRange(p, DefaultAutoThreshold), nil
	case AutoGaussian:
		return GaussianRange(p, gaussianSigma), nil
	default:
		return AutoRange{}, fmt.Errorf("unknown autosettings method %q", method)
	}
}

// HistogramRange 以累计直方图确定区间：min 为累计比例首次超过 threshold 的分箱下界，
// max 为累计比例首次达到 1-threshold 的分箱上界.
func HistogramRange(p *Plane, threshold float64) AutoRange {
	if p == nil || len(p.Pix) == 0 {
		return AutoRange{Min: 0, Max: 1}
	}

	full := p.FullScale
	if full <= 0 {
		full = math.MaxUint16
	}

	var hist [histogramBins]int

	for _, s := range p.Pix {
		b := int(float64(s) / full * histogramBins)
		if b >= histogramBins {
			b = histogramBins - 1
		}

		hist[b]++
	}

	total := float64(len(p.Pix))
	lo, hi := 0, histogramBins-1
	cum := 0.0
	foundLo := false

	for i, n := range hist {
		cum += float64(n)
		frac := cum / total

		if !foundLo && frac > threshold {
			lo = i
			foundLo = true
		}

		if frac >= 1-threshold {
			hi = i

			break
		}
	}

	return AutoRange{
		Min: float64(lo) / histogramBins,
		Max: float64(hi+1) / histogramBins,
	}
}

// GaussianRange 以均值加减 nSigma 个标准差估算区间，并截断到 [0,1].
func GaussianRange(p *Plane, nSigma float64) AutoRange {
	if p == nil || len(p.Pix) == 0 {
		return AutoRange{Min: 0, Max: 1}
	}

	full := p.FullScale
	if full <= 0 {
		full = math.MaxUint16
	}

	var sum, sumSq float64

	for _, s := range p.Pix {
		v := float64(s) / full
		sum += v
		sumSq += v * v
	}

	n := float64(len(p.Pix))
	mean := sum / n
	std := math.Sqrt(math.Max(sumSq/n-mean*mean, 0))

	return AutoRange{
		Min: math.Max(0, mean-nSigma*std),
		Max: math.Min(1, mean+nSigma*std),
	}
}
