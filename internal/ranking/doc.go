// Package ranking trains and applies the per-player performance model.
//
// Rows come from internal/features. SplitByMatch keeps every participant of a
// match on the same side of the train/test boundary, FeatureEngineer learns
// its encodings and clip bounds from the training side only, and Ensemble
// blends five regressors by inverse cross-validated error. Everything a
// trained model needs is JSON and can be written with SaveBundle.
package ranking
