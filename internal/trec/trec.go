// Package trec reads and writes TREC-format qrels and run files, bridging
// them to the evaluation domain types.
package trec

import (
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/TimothyJones/trecresults"

	"github.com/kailas-cloud/rankeval/internal/domain/eval"
)

// ParseQrels reads a TREC qrels file ("topic iteration docid grade") into
// domain judgments. Topics keep their textual form as query IDs.
func ParseQrels(r io.Reader) (eval.Qrels, error) {
	file, err := trecresults.QrelsFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse qrels: %w", err)
	}

	qrels := make(eval.Qrels, len(file.Qrels))
	for topic, judgments := range file.Qrels {
		qid := topic
		m := make(map[string]int, len(judgments))
		for docID, qrel := range judgments {
			m[docID] = int(qrel.Score)
		}
		qrels[qid] = m
	}
	return qrels, nil
}

// ParseRun reads a TREC run file ("topic Q0 docid rank score runname") into
// a domain run. Ranks are ignored; scores drive the evaluation ordering.
func ParseRun(r io.Reader) (eval.Run, error) {
	file, err := trecresults.ResultsFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse run: %w", err)
	}

	run := make(eval.Run, len(file.Results))
	for topic, results := range file.Results {
		qid := topic
		m := make(map[string]float64, len(results))
		for _, res := range results {
			m[res.DocId] = res.Score
		}
		run[qid] = m
	}
	return run, nil
}

// WriteRun exports a run in TREC format so external tooling (trec_eval) can
// consume scored matrices. Passages are ranked by score descending with
// passage-ID tie-breaking, matching the evaluator's ordering. Query IDs must
// be numeric to fit the TREC topic column.
func WriteRun(w io.Writer, run eval.Run, runName string) error {
	qids := make([]string, 0, len(run))
	for qid := range run {
		qids = append(qids, qid)
	}
	sort.Strings(qids)

	for _, qid := range qids {
		topic, err := strconv.ParseInt(qid, 10, 64)
		if err != nil {
			return fmt.Errorf("query ID %q is not a TREC topic number: %w", qid, err)
		}

		type scored struct {
			docID string
			score float64
		}
		ranked := make([]scored, 0, len(run[qid]))
		for docID, score := range run[qid] {
			ranked = append(ranked, scored{docID: docID, score: score})
		}
		sort.Slice(ranked, func(i, j int) bool {
			if ranked[i].score != ranked[j].score {
				return ranked[i].score > ranked[j].score
			}
			return ranked[i].docID < ranked[j].docID
		})

		for rank, res := range ranked {
			if _, err := fmt.Fprintf(w, "%d Q0 %s %d %g %s\n",
				topic, res.docID, rank+1, res.score, runName); err != nil {
				return fmt.Errorf("write run line: %w", err)
			}
		}
	}
	return nil
}
