// Package params holds the per-session filter values that are merged into
// query templates and sent to the chat gateway as context.
package params

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

// Placeholder tokens. No token is a substring of another, so plain
// replace-all substitution never double-substitutes.
const (
	ID               = "@ID"
	CostCenterNumber = "@CostCenterNumber"
	SupplierID       = "@SupplierID"
	SourceSystem     = "@SourceSystem"
	FromDate         = "@FromDate"
	ToDate           = "@ToDate"
	UserID           = "@UserID"

	// DatePreset records the last applied preset. It is never substituted.
	DatePreset = "@DatePreset"
)

// DateLayout is the format of @FromDate and @ToDate.
const DateLayout = "2006-01-02"

// Tokens lists the substitutable vocabulary in display order.
var Tokens = []string{ID, CostCenterNumber, SupplierID, SourceSystem, FromDate, ToDate, UserID}

// SourceSystems are the accepted values of @SourceSystem.
var SourceSystems = []string{"SAP", "ORACLE", "ARIBA", "COUPA"}

// Presets are the named date ranges accepted by ApplyPreset.
var Presets = []string{"last_week", "last_30", "last_90", "last_quarter", "last_year"}

var (
	ErrUnknownToken  = errors.New("unknown parameter")
	ErrUnknownPreset = errors.New("unknown date preset")
	ErrInvalidValue  = errors.New("invalid parameter value")
)

var aliases = map[string]string{
	"id":         ID,
	"doc":        ID,
	"po":         ID,
	"cc":         CostCenterNumber,
	"costcenter": CostCenterNumber,
	"supplier":   SupplierID,
	"supplierid": SupplierID,
	"source":     SourceSystem,
	"system":     SourceSystem,
	"from":       FromDate,
	"fromdate":   FromDate,
	"to":         ToDate,
	"todate":     ToDate,
	"user":       UserID,
	"userid":     UserID,
}

// IsToken reports whether token belongs to the substitutable vocabulary.
func IsToken(token string) bool {
	for _, t := range Tokens {
		if t == token {
			return true
		}
	}
	return false
}

// ParseToken resolves user input such as "@ID", "cc" or "From" to a token.
func ParseToken(name string) (string, error) {
	name = strings.TrimSpace(name)
	if IsToken(name) {
		return name, nil
	}
	key := strings.ToLower(strings.TrimPrefix(name, "@"))
	if token, ok := aliases[key]; ok {
		return token, nil
	}
	for _, t := range Tokens {
		if strings.EqualFold(t[1:], key) {
			return t, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownToken, name)
}

// Pair is one token and its current value.
type Pair struct {
	Token string
	Value string
}

// Set is the parameter set of one session. Every token is always present;
// unsetting writes the empty string.
type Set struct {
	mu     sync.RWMutex
	values map[string]string
	preset string
}

func New() *Set {
	s := &Set{values: make(map[string]string, len(Tokens))}
	for _, t := range Tokens {
		s.values[t] = ""
	}
	return s
}

// Set writes value for token after validating it. Values are trimmed and
// source systems are stored in their canonical upper case.
func (s *Set) Set(token, value string) error {
	if !IsToken(token) {
		return fmt.Errorf("%w: %q", ErrUnknownToken, token)
	}
	value = strings.TrimSpace(value)
	value, err := normalize(token, value)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[token] = value
	return nil
}

// Unset clears token back to the empty string.
func (s *Set) Unset(token string) error {
	return s.Set(token, "")
}

func (s *Set) Get(token string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.values[token]
}

// Preset returns the last applied date preset, or "".
func (s *Set) Preset() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.preset
}

// Reset clears every value and the preset.
func (s *Set) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range Tokens {
		s.values[t] = ""
	}
	s.preset = ""
}

// ApplyPreset sets @FromDate and @ToDate to the named range ending at now.
func (s *Set) ApplyPreset(name string, now time.Time) error {
	end := now.UTC()
	var start time.Time
	switch name {
	case "last_week":
		start = end.AddDate(0, 0, -7)
	case "last_30":
		start = end.AddDate(0, 0, -30)
	case "last_90":
		start = end.AddDate(0, 0, -90)
	case "last_quarter":
		start = end.AddDate(0, -3, 0)
	case "last_year":
		start = end.AddDate(-1, 0, 0)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownPreset, name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[FromDate] = start.Format(DateLayout)
	s.values[ToDate] = end.Format(DateLayout)
	s.preset = name
	return nil
}

// Snapshot copies the current values in vocabulary order.
func (s *Set) Snapshot() []Pair {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pairs := make([]Pair, 0, len(Tokens))
	for _, t := range Tokens {
		pairs = append(pairs, Pair{Token: t, Value: s.values[t]})
	}
	return pairs
}

// Context returns the flat mapping sent to the chat gateway. All tokens are
// present; @DatePreset is included once a preset has been applied.
func (s *Set) Context() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ctx := make(map[string]string, len(Tokens)+1)
	for _, t := range Tokens {
		ctx[t] = s.values[t]
	}
	if s.preset != "" {
		ctx[DatePreset] = s.preset
	}
	return ctx
}

// FromMap builds pairs in vocabulary order from an arbitrary mapping.
// Keys outside the vocabulary are ignored.
func FromMap(m map[string]string) []Pair {
	pairs := make([]Pair, 0, len(Tokens))
	for _, t := range Tokens {
		pairs = append(pairs, Pair{Token: t, Value: m[t]})
	}
	return pairs
}

func normalize(token, value string) (string, error) {
	if value == "" {
		return "", nil
	}
	switch token {
	case SourceSystem:
		for _, sys := range SourceSystems {
			if strings.EqualFold(sys, value) {
				return sys, nil
			}
		}
		return "", fmt.Errorf("%w: %s must be one of %s", ErrInvalidValue, token, strings.Join(SourceSystems, ", "))
	case FromDate, ToDate:
		if _, err := time.Parse(DateLayout, value); err != nil {
			return "", fmt.Errorf("%w: %s must be YYYY-MM-DD", ErrInvalidValue, token)
		}
	}
	return value, nil
}
