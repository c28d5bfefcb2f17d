// Package evaluate scores test predictions against ground truth: it
// renders smoothed single-point heatmaps of true and predicted source
// positions and computes SSIM, pixel MSE/MAE and planar Euclidean error,
// per sample and aggregated.
package evaluate

import "math"

// HeatmapSize is the side length of the rendered position heatmaps.
const HeatmapSize = 256

// BlurSigma is the Gaussian smoothing applied to both heatmaps before
// image comparison.
const BlurSigma = 2.0

// PointHeatmap renders a HeatmapSize×HeatmapSize image with value 1 at
// the rounded integer coordinate and 0 elsewhere. Coordinates outside the
// image are clamped onto the border so off-domain predictions still
// produce a comparable image. Row-major, index = y*HeatmapSize + x.
func PointHeatmap(x, y float32) []float64 {
	img := make([]float64, HeatmapSize*HeatmapSize)
	xi := clampIndex(math.Round(float64(x)))
	yi := clampIndex(math.Round(float64(y)))
	img[yi*HeatmapSize+xi] = 1
	return img
}

func clampIndex(v float64) int {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > HeatmapSize-1 {
		return HeatmapSize - 1
	}
	return int(v)
}

// GaussianBlur applies a separable Gaussian filter with the given sigma
// to a square image of the given side length. The kernel is truncated at
// three sigma and normalized to unit sum.
func GaussianBlur(img []float64, size int, sigma float64) []float64 {
	radius := int(math.Ceil(3 * sigma))
	kernel := make([]float64, 2*radius+1)
	var sum float64
	for i := range kernel {
		d := float64(i - radius)
		kernel[i] = math.Exp(-d * d / (2 * sigma * sigma))
		sum += kernel[i]
	}
	for i := range kernel {
		kernel[i] /= sum
	}

	// horizontal then vertical pass
	tmp := make([]float64, len(img))
	for y := 0; y < size; y++ {
		row := img[y*size : (y+1)*size]
		out := tmp[y*size : (y+1)*size]
		for x := 0; x < size; x++ {
			var acc float64
			for k, w := range kernel {
				sx := x + k - radius
				if sx < 0 || sx >= size {
					continue
				}
				acc += w * row[sx]
			}
			out[x] = acc
		}
	}
	dst := make([]float64, len(img))
	for x := 0; x < size; x++ {
		for y := 0; y < size; y++ {
			var acc float64
			for k, w := range kernel {
				sy := y + k - radius
				if sy < 0 || sy >= size {
					continue
				}
				acc += w * tmp[sy*size+x]
			}
			dst[y*size+x] = acc
		}
	}
	return dst
}
