// Package quality measures data quality of tabular assets.
//
// It provides the semantic validators used while profiling (email, phone,
// date and free-form number parsing) and Assess, which turns sampled rows
// into core.QualityMetadata with one check per measured column dimension.
package quality
