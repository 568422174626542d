package watchlist

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound indicates the instrument is not on the watchlist.
	ErrNotFound = errors.New("watchlist: instrument not found")
	// ErrDuplicate indicates the (code, owner) pair is already tracked.
	ErrDuplicate = errors.New("watchlist: instrument already tracked")
)

// 股票代码格式，例如 600036.SH
var codePattern = regexp.MustCompile(`^\d{6}\.[A-Z]{2}$`)

var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// Instrument is one tracked stock with its owner-defined thresholds.
type Instrument struct {
	Code           string
	Name           string
	UpperThreshold decimal.Decimal
	LowerThreshold decimal.Decimal
	OwnerEmail     string
	AddedAt        time.Time
	UpdatedAt      time.Time
}

// Validate checks field formats and the threshold ordering invariant.
func (i Instrument) Validate() error {
	if !codePattern.MatchString(i.Code) {
		return fmt.Errorf("invalid instrument code %q", i.Code)
	}
	if i.Name == "" {
		return errors.New("instrument name is required")
	}
	if i.OwnerEmail != "" && !emailPattern.MatchString(i.OwnerEmail) {
		return fmt.Errorf("invalid owner email %q", i.OwnerEmail)
	}
	return ValidateThresholds(i.UpperThreshold, i.LowerThreshold)
}

// ValidateThresholds enforces lower < upper.
func ValidateThresholds(upper, lower decimal.Decimal) error {
	if upper.LessThanOrEqual(decimal.Zero) || lower.LessThanOrEqual(decimal.Zero) {
		return errors.New("thresholds must be greater than zero")
	}
	if lower.GreaterThanOrEqual(upper) {
		return errors.New("lower threshold must be less than upper threshold")
	}
	return nil
}

// Store provides access to the tracked instrument list. The evaluation
// engine only reads; the CLI watch commands mutate.
type Store interface {
	List(ctx context.Context) ([]Instrument, error)
	Add(ctx context.Context, inst Instrument) error
	Remove(ctx context.Context, code, owner string) error
	UpdateThresholds(ctx context.Context, code, owner string, upper, lower decimal.Decimal) error
}
