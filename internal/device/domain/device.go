package domain

import "time"

// TrustRecord marks a device fingerprint as known for a merchant.
// (MerchantID, Fingerprint) is unique. Records are never deleted, only revoked.
type TrustRecord struct {
	MerchantID  string
	Fingerprint string
	FirstSeen   time.Time
	LastSeen    time.Time
	Revoked     bool
	RevokedAt   *time.Time
}

// IsTrusted reports whether the record counts as a known device for scoring.
func (d *TrustRecord) IsTrusted() bool {
	return d != nil && !d.Revoked
}
