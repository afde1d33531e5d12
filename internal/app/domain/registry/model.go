// Package registry defines the canonical domain-record model and the
// name/suffix validation rules shared by the registry service and its
// storage backends.
package registry

import (
	"strings"
	"time"
)

// ZeroAddress is the null account identifier. A record owned by ZeroAddress
// has never been registered.
const ZeroAddress = ""

const (
	// MinYears and MaxYears bound a single registration or renewal.
	MinYears = 1
	MaxYears = 10

	// MaxTotalYears caps the cumulative purchased-years counter per domain.
	MaxTotalYears = 100

	// MaxNameLength mirrors the DNS label limit.
	MaxNameLength = 63

	// MaxSuffixLength bounds the registrable suffix.
	MaxSuffixLength = 10

	// YearDuration is the fixed registration year. Leap days are
	// deliberately ignored.
	YearDuration = 365 * 24 * time.Hour
)

// Record is the canonical state for one registered domain. Records are never
// deleted; expiry is a computed predicate over ExpiresAt.
type Record struct {
	Name           string
	Suffix         string
	Owner          string
	RegisteredAt   time.Time
	ExpiresAt      time.Time
	YearsPurchased int
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// FullDomain returns the normalized primary key for the record.
func (r Record) FullDomain() string {
	return FullDomain(r.Name, r.Suffix)
}

// Expired reports whether the record has lapsed at the given instant.
func (r Record) Expired(now time.Time) bool {
	return !r.ExpiresAt.After(now)
}

// Normalize case-folds a name or suffix component. It is idempotent.
func Normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// FullDomain joins a name and suffix into the normalized lookup key.
func FullDomain(name, suffix string) string {
	return Normalize(name) + "." + Normalize(suffix)
}

// SplitFullDomain splits a full domain into its normalized name and suffix.
// The suffix is everything after the last dot.
func SplitFullDomain(full string) (name, suffix string, ok bool) {
	full = Normalize(full)
	idx := strings.LastIndex(full, ".")
	if idx <= 0 || idx == len(full)-1 {
		return "", "", false
	}
	return full[:idx], full[idx+1:], true
}

// ValidName reports whether a normalized name satisfies the character
// rules: alphanumeric with single internal hyphens, no leading or trailing
// hyphen, at most MaxNameLength characters.
func ValidName(name string) bool {
	if name == "" || len(name) > MaxNameLength {
		return false
	}
	prevHyphen := false
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case c >= 'a' && c <= 'z', c >= '0' && c <= '9':
			prevHyphen = false
		case c == '-':
			if i == 0 || i == len(name)-1 || prevHyphen {
				return false
			}
			prevHyphen = true
		default:
			return false
		}
	}
	return true
}

// ValidSuffix reports whether a normalized suffix is purely alphanumeric and
// within length bounds.
func ValidSuffix(suffix string) bool {
	if suffix == "" || len(suffix) > MaxSuffixLength {
		return false
	}
	for i := 0; i < len(suffix); i++ {
		c := suffix[i]
		if (c < 'a' || c > 'z') && (c < '0' || c > '9') {
			return false
		}
	}
	return true
}
