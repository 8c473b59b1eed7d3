// Package rankeval evaluates retrieval quality: it scores query embeddings
// against passage embeddings and aggregates ranking metrics (NDCG, MAP,
// recall, precision, MRR, nAUC) at configurable cutoff depths.
//
// Two scoring modes are supported:
//   - Single-vector: one embedding per text, dot-product similarity
//   - Multi-vector: token-level embeddings, MaxSim (late interaction)
//
// # Evaluating precomputed embeddings
//
//	client, _ := rankeval.New(ctx)
//	report, _ := client.Evaluate(ctx, rankeval.Request{
//	    Queries:  []rankeval.Item{{ID: "q1", Vector: []float32{0.1, 0.9}}},
//	    Passages: []rankeval.Item{{ID: "d1", Vector: []float32{0.2, 0.8}}},
//	    Qrels:    rankeval.Qrels{"q1": {"d1": 1}},
//	})
//	fmt.Println(report.Metrics["ndcg_at_10"])
//
// # Evaluating raw texts
//
// With an embedding provider configured, items may carry Text instead of
// Vector; the client embeds them before scoring:
//
//	client, _ := rankeval.New(ctx,
//	    rankeval.WithOpenAI("api-key", "text-embedding-3-small"),
//	    rankeval.WithRedis([]string{"localhost:6379"}, ""),
//	)
//
// # Evaluating a TREC run
//
// A precomputed run (query -> passage -> score) can be evaluated directly,
// no embeddings involved:
//
//	report, _ := client.ComputeMetrics(ctx, qrels, run, []int{1, 10})
package rankeval
