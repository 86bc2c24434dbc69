package warehouse

// Table names.
const (
	PostingsTable = "postings_nlp"
	MatchesTable  = "isco_matches"
)

// The match table keeps one row per posting: ReplacingMergeTree collapses
// rewrites of the same posting_id to the row with the newest computed_at.
const createMatchesTable = `
	CREATE TABLE IF NOT EXISTS ` + MatchesTable + ` (
		posting_id        String,
		occupation_uri    Nullable(String),
		occupation_label  Nullable(String),
		isco_code         Nullable(String),
		title_score       Float64,
		skills_score      Float64,
		description_score Float64,
		final_score       Float64,
		status            LowCardinality(String),
		method            LowCardinality(String),
		rule_id           String,
		matching_version  String,
		computed_at       DateTime64(3, 'UTC')
	) ENGINE = ReplacingMergeTree(computed_at)
	ORDER BY posting_id
`

const insertMatch = `
	INSERT INTO ` + MatchesTable + ` (
		posting_id, occupation_uri, occupation_label, isco_code,
		title_score, skills_score, description_score, final_score,
		status, method, rule_id, matching_version, computed_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`

const postingColumns = `id, source, title, cleaned_title, description, extracted_skills,
	functional_area, seniority_level, sector, processing_version`
