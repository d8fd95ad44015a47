package domain

// Agent is a human validator who can approve or reject escalated authentications.
type Agent struct {
	ID     string
	Name   string
	Phone  string // used for the SMS fallback; empty when unknown
	Active bool
}
