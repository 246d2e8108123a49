package query

import "math"

const (
	k1 = 1.2
	b  = 0.75
)

// idf is the BM25 inverse document frequency; it never goes negative.
func idf(totalDocs, docFreq int) float64 {
	numerator := float64(totalDocs) - float64(docFreq)
	denominator := float64(docFreq) + 0.5
	return math.Log(numerator/denominator + 1)
}

// tfNorm is the BM25 saturated term frequency with length normalisation.
func tfNorm(termFreq, docLength, avgDocLength float64) float64 {
	if termFreq <= 0 {
		return 0
	}
	lengthRatio := 1.0
	if avgDocLength > 0 {
		lengthRatio = docLength / avgDocLength
	}
	denominator := termFreq + k1*(1-b+b*lengthRatio)
	return (termFreq * (k1 + 1)) / denominator
}
