package recommend

import (
	"strings"

	"github.com/syeo66/cadence/errors"
)

type Algorithm string

const (
	AlgorithmHybrid              Algorithm = "hybrid"
	AlgorithmCollaborative       Algorithm = "collaborative"
	AlgorithmUserBased           Algorithm = "user-based"
	AlgorithmMatrixFactorization Algorithm = "matrix-factorization"
	AlgorithmContent             Algorithm = "content"
	AlgorithmEnhanced            Algorithm = "ai-enhanced"
	AlgorithmPopularity          Algorithm = "popularity"
)

var algorithms = []Algorithm{
	AlgorithmHybrid,
	AlgorithmCollaborative,
	AlgorithmUserBased,
	AlgorithmMatrixFactorization,
	AlgorithmContent,
	AlgorithmEnhanced,
	AlgorithmPopularity,
}

// Algorithms lists the accepted hints.
func Algorithms() []Algorithm {
	return append([]Algorithm(nil), algorithms...)
}

// ParseAlgorithm maps a hint to an algorithm. An empty hint means hybrid.
func ParseAlgorithm(hint string) (Algorithm, error) {
	h := Algorithm(strings.ToLower(strings.TrimSpace(hint)))
	if h == "" {
		return AlgorithmHybrid, nil
	}
	for _, a := range algorithms {
		if a == h {
			return a, nil
		}
	}
	return "", errors.ErrUnknownAlgorithm.WithContext("algorithm", hint)
}
