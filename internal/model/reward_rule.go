package model

// RewardRuleVector is one indexed reward rule. ContentText is the
// semicolon-delimited key=value encoding produced at ingestion time; the
// structured view lives in rewardmath.RuleMetrics.
type RewardRuleVector struct {
	RuleID      int64     `db:"rule_id"`
	CardID      int64     `db:"card_id"`
	ContentText string    `db:"content_text"`
	Embedding   []float32 `db:"-"`
}

// RetrievalCandidate is a hybrid-search hit. FinalScore is computed per
// query and never persisted.
type RetrievalCandidate struct {
	RuleID      int64   `json:"rule_id" db:"rule_id"`
	CardID      int64   `json:"card_id" db:"card_id"`
	ContentText string  `json:"content_text" db:"content_text"`
	VectorScore float64 `json:"vector_score" db:"vector_score"`
	TextScore   float64 `json:"text_score" db:"text_score"`
	FinalScore  float64 `json:"final_score" db:"final_score"`
}
