package service

import (
	"math"

	"github.com/PPS-H/Invoice-manager-backend/internal/domain"
)

// EstimateDuration produces a scan duration estimate in minutes from the
// history window (months) and scan kind. The heuristic assumes two minutes
// per month of inbox history, a flat surcharge for group mailboxes, and a
// combined factor when scanning both.
func EstimateDuration(window int, kind domain.ScanKind) int {
	base := float64(window) * 2

	switch kind {
	case domain.ScanKindGroups:
		base += 5
	case domain.ScanKindAll:
		base *= 1.5
	}

	return int(math.Max(1, math.Round(base)))
}

// effectiveEstimate returns the stored estimate when valid, recomputing it
// otherwise. Estimates are always positive integers in every response; a
// missing or non-positive stored value is repaired silently, never surfaced
// as an error.
func effectiveEstimate(t *domain.ScanTask) int {
	if t.EstimatedDuration > 0 {
		return t.EstimatedDuration
	}
	return EstimateDuration(t.Window, t.ScanKind)
}
