package domain

// Record is the stored answer to one social challenge question of a merchant.
// AnswerHash is hex SHA-256 of Salt+normalized answer, or a bcrypt hash of the same input.
type Record struct {
	MerchantID   string
	ChallengeKey string
	Salt         string
	AnswerHash   string
	LegacyAnswer string // plaintext from older enrolments; empty when absent
}
