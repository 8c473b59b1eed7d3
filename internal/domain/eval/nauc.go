package eval

import (
	"math"
	"sort"
	"strconv"
)

// Confidence signal names, matching the order in confidenceSignals.
var naucSignals = []string{"max", "std", "diff1"}

// abstentionSteps are the evaluated abstention rates: 0.0, 0.1, ..., 0.9.
const abstentionSteps = 10

// addNAUC computes abstention-curve nAUC values for NDCG at every cutoff and
// stores them under "<k>_<signal>" keys. For each signal, queries are dropped
// lowest-confidence-first at increasing abstention rates; the area under the
// resulting mean-NDCG curve is normalized between the random baseline (flat
// mean) and the oracle ordering (drop lowest-NDCG queries first).
func addNAUC(report *Report, queryIDs []string, perQuery map[string]queryScores, kValues []int) {
	for _, k := range kValues {
		metrics := make([]float64, len(queryIDs))
		confs := make([][]float64, len(queryIDs))
		for i, qid := range queryIDs {
			qs := perQuery[qid]
			metrics[i] = qs.ndcg[k]
			confs[i] = confidenceSignals(topScores(qs.scores, k))
		}

		for si, signal := range naucSignals {
			conf := make([]float64, len(queryIDs))
			for i := range confs {
				conf[i] = confs[i][si]
			}
			report.NAUC[keyForNAUC(k, signal)] = nAUC(conf, metrics)
		}
	}
}

func keyForNAUC(k int, signal string) string {
	return strconv.Itoa(k) + "_" + signal
}

func topScores(scores []float64, k int) []float64 {
	if k < len(scores) {
		return scores[:k]
	}
	return scores
}

// confidenceSignals derives the three per-query confidence values from the
// query's top retrieval scores: the maximum score, the standard deviation of
// the scores, and the gap between the top two scores.
func confidenceSignals(scores []float64) []float64 {
	if len(scores) == 0 {
		return []float64{0, 0, 0}
	}

	maxScore := scores[0]
	var sum float64
	for _, s := range scores {
		if s > maxScore {
			maxScore = s
		}
		sum += s
	}
	mean := sum / float64(len(scores))

	var variance float64
	for _, s := range scores {
		d := s - mean
		variance += d * d
	}
	variance /= float64(len(scores))

	diff1 := 0.0
	if len(scores) >= 2 {
		diff1 = scores[0] - scores[1]
	}

	return []float64{maxScore, math.Sqrt(variance), diff1}
}

// nAUC computes the normalized abstention AUC of metric values under a
// confidence ordering. Returns 0 when the oracle cannot beat the random
// baseline (all metric values equal).
func nAUC(conf, metrics []float64) float64 {
	n := len(metrics)
	if n == 0 {
		return 0
	}

	actual := abstentionCurve(conf, metrics)

	oracle := abstentionCurve(metrics, metrics)

	var mean float64
	for _, m := range metrics {
		mean += m
	}
	mean /= float64(n)
	random := mean * float64(abstentionSteps)

	if oracle == random {
		return 0
	}
	return (actual - random) / (oracle - random)
}

// abstentionCurve sums the mean metric of the retained query set at each
// abstention rate, dropping lowest-confidence queries first. The sum over
// rates is a rectangle-rule area, which cancels out in the normalization.
func abstentionCurve(conf, metrics []float64) float64 {
	n := len(metrics)
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	// descending confidence, so the retained prefix is the most confident
	sort.SliceStable(order, func(i, j int) bool {
		return conf[order[i]] > conf[order[j]]
	})

	var area float64
	for step := 0; step < abstentionSteps; step++ {
		rate := float64(step) / float64(abstentionSteps)
		keep := n - int(math.Floor(rate*float64(n)))
		if keep < 1 {
			keep = 1
		}
		var sum float64
		for _, idx := range order[:keep] {
			sum += metrics[idx]
		}
		area += sum / float64(keep)
	}
	return area
}
