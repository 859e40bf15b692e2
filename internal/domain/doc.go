// Package domain models urban risk observations and the pure scoring
// pipeline applied to them.
//
// # Records
//
// A [Record] is one observed entity at a point in time: a city, a road
// segment, a monitoring site, or a district. Its Category is the grouping key
// a user filters by (country, road id, site, district). Metrics hold raw
// numeric values keyed by name; the set of names is fixed per dataset and
// declared by a [Schema].
//
// # Scoring
//
// A batch is scored in three steps, all of them pure functions of the batch
// and the injected configuration:
//
//	Normalize:  n = (v - min) / (max - min) per metric across the batch.
//	            Zero variance (including a batch of one) yields n = 0.
//	Score:      risk_score = 100 * Σ weight[m] * n[m], weights summing to 1.
//	Classify:   first bin whose upper bound is >= risk_score.
//
// Bins are right-closed: a score exactly on a bound belongs to the lower bin.
// With bounds 30, 60, 80, 100 the score 30 is "Low" and 30.01 is "Medium".
// Scores above the last bound fall into the last bin.
//
// # Views
//
// [FilterView] selects records by category. An empty selection is a legal
// input and yields [StatusNoSelection], which callers must keep apart from
// [StatusNoMatch] (selection present, nothing matched) and from
// [ErrEmptyBatch] (no data at all).
//
// # Datasets
//
// Four schemas ship with the service:
//
//	city:        pm2_5 (µg/m³), aqi (index), congestion_level (0–1)
//	traffic:     vehicle_count, avg_speed_kph, congestion_level
//	air_quality: pm2_5, no2, o3 (µg/m³)
//	energy:      energy_kwh, peak_load_kw
package domain
