package model

type ConvincerStatus string

const (
	ConvincerStatusActive   ConvincerStatus = "active"
	ConvincerStatusInactive ConvincerStatus = "inactive"
)

type AttemptStatus string

const (
	AttemptStatusActive    AttemptStatus = "active"
	AttemptStatusCompleted AttemptStatus = "completed"
	AttemptStatusExpired   AttemptStatus = "expired"
	AttemptStatusAbandoned AttemptStatus = "abandoned"
)

// Terminal reports whether no further transition may leave this status.
func (s AttemptStatus) Terminal() bool {
	switch s {
	case AttemptStatusCompleted, AttemptStatusExpired, AttemptStatusAbandoned:
		return true
	}
	return false
}

type PrizeStatus string

const (
	PrizeStatusOpen        PrizeStatus = "open"
	PrizeStatusDistributed PrizeStatus = "distributed"
)
