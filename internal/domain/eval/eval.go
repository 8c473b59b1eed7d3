// Package eval aggregates standard information-retrieval ranking metrics
// (NDCG, MAP, Recall, Precision, MRR, nAUC) over relevance judgments and run
// results, following trec_eval conventions.
package eval

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/kailas-cloud/rankeval/internal/domain"
)

// Qrels maps query ID -> passage ID -> relevance grade. Grades above zero
// count as relevant for the binary metrics.
type Qrels map[string]map[string]int

// Run maps query ID -> passage ID -> retrieval score.
type Run map[string]map[string]float64

// DefaultKValues are the cutoffs used when the caller has no preference.
var DefaultKValues = []int{1, 3, 5, 10, 100}

// ErrNoKValues signals an empty cutoff list.
var ErrNoKValues = errors.New("no k values provided")

// Report holds per-cutoff metric averages over all judged queries.
type Report struct {
	NDCG      map[int]float64
	MAP       map[int]float64
	Recall    map[int]float64
	Precision map[int]float64
	MRR       map[int]float64
	// NAUC holds abstention-curve nAUC values keyed "<k>_<signal>", where
	// signal is one of max, std, diff1.
	NAUC map[string]float64
}

// Option configures metric computation.
type Option func(*options)

type options struct {
	ignoreIdenticalIDs bool
}

// WithIdenticalIDs keeps results whose passage ID equals the query ID.
// By default such results are dropped before ranking, matching the common
// convention for corpora where queries are drawn from the passage pool.
func WithIdenticalIDs() Option {
	return func(o *options) { o.ignoreIdenticalIDs = false }
}

// Compute evaluates the run against the judgments at each cutoff in kValues.
// Queries without positive judgments are excluded from the averages; judged
// queries missing from the run contribute zeros.
func Compute(qrels Qrels, run Run, kValues []int, opts ...Option) (Report, error) {
	if len(qrels) == 0 {
		return Report{}, domain.ErrNoQrels
	}
	if len(run) == 0 {
		return Report{}, domain.ErrNoRun
	}
	if len(kValues) == 0 {
		return Report{}, ErrNoKValues
	}

	o := options{ignoreIdenticalIDs: true}
	for _, opt := range opts {
		opt(&o)
	}

	queryIDs := judgedQueryIDs(qrels)
	if len(queryIDs) == 0 {
		return Report{}, fmt.Errorf("%w: no query has a positive judgment", domain.ErrNoQrels)
	}

	perQuery := make(map[string]queryScores, len(queryIDs))
	for _, qid := range queryIDs {
		ranked := rankResults(qid, run[qid], o.ignoreIdenticalIDs)
		perQuery[qid] = scoreQuery(ranked, qrels[qid], kValues)
	}

	report := Report{
		NDCG:      make(map[int]float64, len(kValues)),
		MAP:       make(map[int]float64, len(kValues)),
		Recall:    make(map[int]float64, len(kValues)),
		Precision: make(map[int]float64, len(kValues)),
		MRR:       make(map[int]float64, len(kValues)),
		NAUC:      make(map[string]float64),
	}

	n := float64(len(queryIDs))
	for _, k := range kValues {
		var ndcg, ap, recall, precision, mrr float64
		for _, qid := range queryIDs {
			qs := perQuery[qid]
			ndcg += qs.ndcg[k]
			ap += qs.ap[k]
			recall += qs.recall[k]
			precision += qs.precision[k]
			mrr += qs.mrr[k]
		}
		report.NDCG[k] = ndcg / n
		report.MAP[k] = ap / n
		report.Recall[k] = recall / n
		report.Precision[k] = precision / n
		report.MRR[k] = mrr / n
	}

	addNAUC(&report, queryIDs, perQuery, kValues)

	return report, nil
}

// Flatten reshapes the report into the flat key form consumed downstream:
// ndcg_at_K, map_at_K, recall_at_K, precision_at_K, mrr_at_K and
// naucs_at_K_signal.
func (r Report) Flatten() map[string]float64 {
	flat := make(map[string]float64, 5*len(r.NDCG)+len(r.NAUC))
	for k, v := range r.NDCG {
		flat[fmt.Sprintf("ndcg_at_%d", k)] = v
	}
	for k, v := range r.MAP {
		flat[fmt.Sprintf("map_at_%d", k)] = v
	}
	for k, v := range r.Recall {
		flat[fmt.Sprintf("recall_at_%d", k)] = v
	}
	for k, v := range r.Precision {
		flat[fmt.Sprintf("precision_at_%d", k)] = v
	}
	for k, v := range r.MRR {
		flat[fmt.Sprintf("mrr_at_%d", k)] = v
	}
	for key, v := range r.NAUC {
		flat["naucs_at_"+key] = v
	}
	return flat
}

// rankedResult is one retrieved passage with its score, in rank order.
type rankedResult struct {
	id    string
	score float64
}

// queryScores holds one query's per-cutoff metric values and its ranked
// retrieval scores (used for confidence signals).
type queryScores struct {
	ndcg      map[int]float64
	ap        map[int]float64
	recall    map[int]float64
	precision map[int]float64
	mrr       map[int]float64
	scores    []float64
}

// judgedQueryIDs returns, sorted, the query IDs that carry at least one
// positive judgment.
func judgedQueryIDs(qrels Qrels) []string {
	ids := make([]string, 0, len(qrels))
	for qid, judgments := range qrels {
		for _, grade := range judgments {
			if grade > 0 {
				ids = append(ids, qid)
				break
			}
		}
	}
	sort.Strings(ids)
	return ids
}

// rankResults orders one query's results by score descending, passage ID
// ascending on ties so that evaluation is deterministic.
func rankResults(qid string, results map[string]float64, ignoreIdentical bool) []rankedResult {
	ranked := make([]rankedResult, 0, len(results))
	for id, score := range results {
		if ignoreIdentical && id == qid {
			continue
		}
		ranked = append(ranked, rankedResult{id: id, score: score})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return ranked[i].id < ranked[j].id
	})
	return ranked
}

func scoreQuery(ranked []rankedResult, judgments map[string]int, kValues []int) queryScores {
	qs := queryScores{
		ndcg:      make(map[int]float64, len(kValues)),
		ap:        make(map[int]float64, len(kValues)),
		recall:    make(map[int]float64, len(kValues)),
		precision: make(map[int]float64, len(kValues)),
		mrr:       make(map[int]float64, len(kValues)),
		scores:    make([]float64, len(ranked)),
	}
	for i, r := range ranked {
		qs.scores[i] = r.score
	}

	numRel := 0
	grades := make([]int, 0, len(judgments))
	for _, grade := range judgments {
		if grade > 0 {
			numRel++
			grades = append(grades, grade)
		}
	}
	sort.Sort(sort.Reverse(sort.IntSlice(grades)))

	for _, k := range kValues {
		top := ranked
		if k < len(top) {
			top = top[:k]
		}

		var dcg, apSum float64
		hits := 0
		firstRelRank := 0
		for i, r := range top {
			grade := judgments[r.id]
			if grade > 0 {
				hits++
				apSum += float64(hits) / float64(i+1)
				if firstRelRank == 0 {
					firstRelRank = i + 1
				}
			}
			dcg += float64(grade) / math.Log2(float64(i+2))
		}

		var idcg float64
		for i := 0; i < len(grades) && i < k; i++ {
			idcg += float64(grades[i]) / math.Log2(float64(i+2))
		}

		if idcg > 0 {
			qs.ndcg[k] = dcg / idcg
		}
		if numRel > 0 {
			qs.ap[k] = apSum / float64(numRel)
			qs.recall[k] = float64(hits) / float64(numRel)
		}
		qs.precision[k] = float64(hits) / float64(k)
		if firstRelRank > 0 {
			qs.mrr[k] = 1.0 / float64(firstRelRank)
		}
	}

	return qs
}
