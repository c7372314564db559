// Package main hosts the offline ranking trainer.
//
// aramrank reads stored ARAM match documents (from Postgres, or from a
// directory of exported JSON files with -docs), extracts per-player features,
// labels each player with a performance score and an in-match rank, trains the
// five-model ensemble on a match-level split, prints the evaluation report as
// JSON and writes engineer.json and ensemble.json to the output directory.
// The crawler serves rankings from that directory via ranking.model_dir.
package main
