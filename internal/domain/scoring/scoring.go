// Package scoring computes dense similarity matrices between query and passage
// embeddings. Two scorers are provided: a plain dot-product for single-vector
// embeddings and MaxSim for multi-vector (ColBERT-style) embeddings.
package scoring

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/kailas-cloud/rankeval/internal/domain"
)

// DefaultBlockSize bounds how many queries and passages a MaxSim block holds.
// Peak memory per block is blockSize^2 * maxTokens^2 similarity cells.
const DefaultBlockSize = 128

// Option configures a scorer.
type Option func(*options)

type options struct {
	blockSize int
}

// WithBlockSize overrides the MaxSim batching block size.
func WithBlockSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.blockSize = n
		}
	}
}

// SingleVector computes the dot-product score matrix between single-vector
// query and passage embeddings. The result has one row per query and one
// column per passage: C[i][j] = qs[i] . ps[j].
func SingleVector(qs, ps []domain.Vector) (*mat.Dense, error) {
	if len(qs) == 0 {
		return nil, domain.ErrNoQueries
	}
	if len(ps) == 0 {
		return nil, domain.ErrNoPassages
	}

	dim := len(qs[0])
	if dim == 0 {
		return nil, fmt.Errorf("query [0]: zero-length embedding: %w", domain.ErrDimensionMismatch)
	}
	if err := checkDims(qs, dim, "query"); err != nil {
		return nil, err
	}
	if err := checkDims(ps, dim, "passage"); err != nil {
		return nil, err
	}

	q := stack(qs, dim)
	p := stack(ps, dim)

	scores := mat.NewDense(len(qs), len(ps), nil)
	scores.Mul(q, p.T())
	return scores, nil
}

// MaxSim computes the ColBERT-style late-interaction score matrix between
// multi-vector query and passage embeddings. For each (query, passage) pair,
// every query token vector is matched against its most similar passage token
// vector, and the per-token maxima are summed:
//
//	score(q, p) = sum_n max_s (q_n . p_s)
//
// Queries and passages are processed in nested blocks (see DefaultBlockSize)
// so that the intermediate token-level similarity matrices stay bounded
// regardless of corpus size. Column blocks fill left to right within each row
// block, row blocks top to bottom.
func MaxSim(qs, ps []domain.MultiVector, opts ...Option) (*mat.Dense, error) {
	if len(qs) == 0 {
		return nil, domain.ErrNoQueries
	}
	if len(ps) == 0 {
		return nil, domain.ErrNoPassages
	}

	o := options{blockSize: DefaultBlockSize}
	for _, opt := range opts {
		opt(&o)
	}

	dim, err := multiVectorDim(qs, "query")
	if err != nil {
		return nil, err
	}
	if err := checkMultiDims(ps, dim, "passage"); err != nil {
		return nil, err
	}

	scores := mat.NewDense(len(qs), len(ps), nil)

	for i := 0; i < len(qs); i += o.blockSize {
		qEnd := min(i+o.blockSize, len(qs))
		for j := 0; j < len(ps); j += o.blockSize {
			pEnd := min(j+o.blockSize, len(ps))
			scoreBlock(scores, qs[i:qEnd], ps[j:pEnd], i, j, dim)
		}
	}

	return scores, nil
}

// scoreBlock fills scores[rowOff:, colOff:] for one (query block, passage block) pair.
func scoreBlock(scores *mat.Dense, qBlock, pBlock []domain.MultiVector, rowOff, colOff, dim int) {
	var sim mat.Dense

	for qi, q := range qBlock {
		if len(q) == 0 {
			continue // no token vectors, row stays zero
		}
		qm := stack(q, dim)
		for pi, p := range pBlock {
			if len(p) == 0 {
				continue
			}
			pm := stack(p, dim)

			// sim[n][s] = q_n . p_s
			sim.Reset()
			sim.Mul(qm, pm.T())

			nTokens, sTokens := sim.Dims()
			total := 0.0
			for n := 0; n < nTokens; n++ {
				row := sim.RawRowView(n)
				best := row[0]
				for s := 1; s < sTokens; s++ {
					if row[s] > best {
						best = row[s]
					}
				}
				total += best
			}

			scores.Set(rowOff+qi, colOff+pi, total)
		}
	}
}

// Top1Accuracy reports the fraction of rows whose argmax column equals the row
// index. It is only meaningful when query i's relevant passage sits at index i
// (self-retrieval layouts).
func Top1Accuracy(scores *mat.Dense) float64 {
	rows, cols := scores.Dims()
	if rows == 0 {
		return 0
	}

	hits := 0
	for i := 0; i < rows; i++ {
		row := scores.RawRowView(i)
		arg := 0
		for j := 1; j < cols; j++ {
			if row[j] > row[arg] {
				arg = j
			}
		}
		if arg == i {
			hits++
		}
	}
	return float64(hits) / float64(rows)
}

// stack copies vectors into a dense row-major matrix of width dim.
func stack(vs []domain.Vector, dim int) *mat.Dense {
	data := make([]float64, len(vs)*dim)
	for i, v := range vs {
		for j, x := range v {
			data[i*dim+j] = float64(x)
		}
	}
	return mat.NewDense(len(vs), dim, data)
}

func checkDims(vs []domain.Vector, dim int, kind string) error {
	for i, v := range vs {
		if len(v) != dim {
			return fmt.Errorf("%s [%d]: got dim %d, want %d: %w",
				kind, i, len(v), dim, domain.ErrDimensionMismatch)
		}
	}
	return nil
}

// multiVectorDim returns the token dimensionality of the first non-empty
// sequence and validates the rest against it.
func multiVectorDim(vs []domain.MultiVector, kind string) (int, error) {
	dim := 0
	for _, v := range vs {
		if len(v) > 0 {
			dim = len(v[0])
			break
		}
	}
	if dim == 0 {
		return 0, fmt.Errorf("%s embeddings have no token vectors: %w", kind, domain.ErrDimensionMismatch)
	}
	if err := checkMultiDims(vs, dim, kind); err != nil {
		return 0, err
	}
	return dim, nil
}

func checkMultiDims(vs []domain.MultiVector, dim int, kind string) error {
	for i, v := range vs {
		for n, tok := range v {
			if len(tok) != dim {
				return fmt.Errorf("%s [%d] token [%d]: got dim %d, want %d: %w",
					kind, i, n, len(tok), dim, domain.ErrDimensionMismatch)
			}
		}
	}
	return nil
}
