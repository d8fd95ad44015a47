package scoring

import auditdomain "merchant-voice-auth/internal/audit/domain"

// Score weights and thresholds.
const (
	BaseScore = 50

	KnownDevicePoints   = 25
	NewDevicePenalty    = -25
	NearLocationPoints  = 15
	FarLocationPenalty  = -20
	UsualHourPoints     = 10
	CleanHistoryPoints  = 10
	ManyFailuresPenalty = -25

	NearMeters      = 500.0
	FarMeters       = 5000.0
	FirstUsualHour  = 6
	LastUsualHour   = 20
	ManyFailures    = 3
	FailureLookback = 30 * 24 // hours

	DirectThreshold    = 70
	ChallengeThreshold = 40
)

// TrustFactors is the breakdown of a score. Every field is set on each evaluation.
type TrustFactors struct {
	DeviceKnown  bool
	DeviceScore  int
	TimeMatch    bool
	TimeScore    int
	GeoMatch     bool
	GeoScore     int
	HistoryScore int
}

// Total returns the clamped score the factors produce.
func (f TrustFactors) Total() int {
	return Clamp(BaseScore + f.DeviceScore + f.TimeScore + f.GeoScore + f.HistoryScore)
}

// Clamp bounds s to [0,100].
func Clamp(s int) int {
	switch {
	case s < 0:
		return 0
	case s > 100:
		return 100
	}
	return s
}

// DecisionFor is the reference routing for a merchant that was found.
func DecisionFor(score int) auditdomain.Decision {
	switch s := Clamp(score); {
	case s >= DirectThreshold:
		return auditdomain.DecisionDirect
	case s >= ChallengeThreshold:
		return auditdomain.DecisionChallenge
	default:
		return auditdomain.DecisionEscalate
	}
}
