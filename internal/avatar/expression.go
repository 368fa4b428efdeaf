package avatar

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrUnknownExpression is returned for an expression name that is not defined.
var ErrUnknownExpression = errors.New("unknown expression")

// Expression is the facial overlay of the avatar.
type Expression string

const (
	Neutral   Expression = "neutral"
	Happy     Expression = "happy"
	Sad       Expression = "sad"
	Surprised Expression = "surprised"
)

// Expressions lists every expression in declaration order.
var Expressions = []Expression{Neutral, Happy, Sad, Surprised}

// ParseExpression resolves an expression name case-insensitively.
func ParseExpression(name string) (Expression, error) {
	e := Expression(strings.ToLower(strings.TrimSpace(name)))
	for _, known := range Expressions {
		if e == known {
			return e, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownExpression, name)
}

// Rules drive expression changes. They are loaded from the asset tree and
// the settings file; nothing here is hard-coded beyond the defaults.
type Rules struct {
	// IdleTimeout returns the expression to Neutral after this long without activity
	IdleTimeout time.Duration

	// HappyRate is the press rate (per second) at or above which the avatar is Happy
	HappyRate float64

	// SadRate is the rate below which a Happy avatar turns Sad
	SadRate float64

	// SurprisedZones is the number of distinct zones pressed within the burst
	// window that makes the avatar Surprised
	SurprisedZones int
}

// DefaultRules returns the rules used when the asset tree defines none.
func DefaultRules() Rules {
	return Rules{
		IdleTimeout:    5 * time.Second,
		HappyRate:      6,
		SadRate:        2,
		SurprisedZones: 5,
	}
}

// Sample is one activity measurement taken at a tick.
type Sample struct {
	// Presses is the number of presses in the activity window
	Presses int `json:"presses"`

	// Rate is presses per second over the activity window
	Rate float64 `json:"rate"`

	// BurstZones is the number of distinct zones pressed within the burst window
	BurstZones int `json:"burst_zones"`
}

// NextExpression is the expression transition function. It depends only on
// its arguments. The checks run in priority order:
//
//   - no activity for IdleTimeout: Neutral
//   - a burst of SurprisedZones distinct zones: Surprised
//   - a press rate of HappyRate or more: Happy
//   - Happy whose rate fell below SadRate: Sad
//   - Surprised once the burst is over: Neutral
//
// Otherwise the current expression is kept.
func NextExpression(cur Expression, s Sample, elapsed time.Duration, r Rules) Expression {
	switch {
	case r.IdleTimeout > 0 && elapsed >= r.IdleTimeout:
		return Neutral
	case r.SurprisedZones > 0 && s.BurstZones >= r.SurprisedZones:
		return Surprised
	case r.HappyRate > 0 && s.Rate >= r.HappyRate:
		return Happy
	case cur == Happy && s.Rate < r.SadRate:
		return Sad
	case cur == Surprised:
		return Neutral
	case cur == "":
		return Neutral
	}
	return cur
}
