package evaluate

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
)

// SampleMetrics scores one test sample in physical units.
type SampleMetrics struct {
	ID    string
	TrueX float32
	TrueY float32
	PredX float32
	PredY float32

	SSIM   float64
	MSE    float64
	MAE    float64
	Euclid float64
}

// Report is the numeric evaluation outcome: per-sample metrics plus
// aggregate means. Report artifacts (plots, summary text) are produced
// separately; see the report package.
type Report struct {
	Samples []SampleMetrics

	MeanSSIM   float64
	MeanMSE    float64
	MeanMAE    float64
	MeanEuclid float64
}

// SSIM computes the structural similarity index between two equal-length
// images using global statistics (k1=0.01, k2=0.03, dynamic range 1).
// The score lies in [-1,1]; identical images score exactly 1.
func SSIM(a, b []float64) float64 {
	const (
		L  = 1.0
		k1 = 0.01
		k2 = 0.03
	)
	c1 := (k1 * L) * (k1 * L)
	c2 := (k2 * L) * (k2 * L)

	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	muX := stat.Mean(a, nil)
	muY := stat.Mean(b, nil)
	sigmaX := stat.Variance(a, nil)
	sigmaY := stat.Variance(b, nil)
	sigmaXY := stat.Covariance(a, b, nil)

	num := (2*muX*muY + c1) * (2*sigmaXY + c2)
	den := (muX*muX + muY*muY + c1) * (sigmaX + sigmaY + c2)
	return num / den
}

// PixelMSE is the mean squared pixel difference between two images.
func PixelMSE(a, b []float64) float64 {
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum / float64(len(a))
}

// PixelMAE is the mean absolute pixel difference between two images.
func PixelMAE(a, b []float64) float64 {
	var sum float64
	for i := range a {
		sum += math.Abs(a[i] - b[i])
	}
	return sum / float64(len(a))
}

// Euclid is the planar distance between two coordinates.
func Euclid(x1, y1, x2, y2 float32) float64 {
	return math.Hypot(float64(x1-x2), float64(y1-y2))
}

// EvaluateSamples scores predictions against ground truth. Both slices
// carry physical-unit (x, y) pairs: any label-space rescaling must already
// be inverted by the caller. ids may be nil; when present it labels the
// per-sample records.
func EvaluateSamples(ids []string, truth, preds [][]float32) (*Report, error) {
	if len(truth) != len(preds) {
		return nil, fmt.Errorf("truth and prediction counts differ: %d != %d", len(truth), len(preds))
	}
	if ids != nil && len(ids) != len(truth) {
		return nil, fmt.Errorf("id count %d does not match sample count %d", len(ids), len(truth))
	}

	rep := &Report{Samples: make([]SampleMetrics, 0, len(truth))}
	var sumSSIM, sumMSE, sumMAE, sumEuclid float64
	for i := range truth {
		if len(truth[i]) != 2 || len(preds[i]) != 2 {
			return nil, fmt.Errorf("sample %d: coordinates must have 2 elements", i)
		}
		s := SampleMetrics{
			TrueX: truth[i][0], TrueY: truth[i][1],
			PredX: preds[i][0], PredY: preds[i][1],
		}
		if ids != nil {
			s.ID = ids[i]
		}

		trueImg := GaussianBlur(PointHeatmap(s.TrueX, s.TrueY), HeatmapSize, BlurSigma)
		predImg := GaussianBlur(PointHeatmap(s.PredX, s.PredY), HeatmapSize, BlurSigma)
		s.SSIM = SSIM(trueImg, predImg)
		s.MSE = PixelMSE(trueImg, predImg)
		s.MAE = PixelMAE(trueImg, predImg)
		s.Euclid = Euclid(s.TrueX, s.TrueY, s.PredX, s.PredY)

		sumSSIM += s.SSIM
		sumMSE += s.MSE
		sumMAE += s.MAE
		sumEuclid += s.Euclid
		rep.Samples = append(rep.Samples, s)
	}

	if n := float64(len(rep.Samples)); n > 0 {
		rep.MeanSSIM = sumSSIM / n
		rep.MeanMSE = sumMSE / n
		rep.MeanMAE = sumMAE / n
		rep.MeanEuclid = sumEuclid / n
	}
	return rep, nil
}
