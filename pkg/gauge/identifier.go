package gauge

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// customIdentifierPattern is the format rule for user-supplied identifiers:
// uppercase alphanumeric with interior dashes, 3 to 20 characters.
var customIdentifierPattern = regexp.MustCompile(`^[A-Z0-9][A-Z0-9-]{1,18}[A-Z0-9]$`)

var nonLetterPattern = regexp.MustCompile(`[^A-Za-z]`)

// categoryPrefixes maps known equipment categories to their identifier
// prefix. Unknown categories fall back to the first two letters upper-cased.
var categoryPrefixes = map[string]string{
	"thread_gauge": "TG",
	"thread_ring":  "TR",
	"thread_plug":  "TP",
	"plain_plug":   "PG",
	"indicator":    "IN",
}

// IdentifierAllocator hands out collision-free gauge identifiers. All
// methods run inside the caller's transaction and take a row lock on the
// per-category sequence counter, so two concurrent creations in the same
// category never receive the same value. Nothing here opens a transaction
// of its own: an aborted creation rolls the counter bump back with it.
type IdentifierAllocator struct{}

// NewIdentifierAllocator creates a new allocator. Sequence rows are
// created lazily per category on first allocation.
func NewIdentifierAllocator() *IdentifierAllocator {
	return &IdentifierAllocator{}
}

// Allocate returns the next free base identifier for the category,
// skipping values that collide with live or historically retired
// identifiers. The sequence row stays locked until tx resolves.
func (a *IdentifierAllocator) Allocate(tx *gorm.DB, category string) (string, error) {
	seq, err := a.lockSequence(tx, category)
	if err != nil {
		return "", err
	}

	value := seq.NextValue
	for {
		candidate := formatIdentifier(seq.Prefix, value)
		taken, err := identifierTaken(tx, candidate)
		if err != nil {
			return "", err
		}
		if !taken {
			err := tx.Model(&SequenceRecord{}).
				Where("category = ?", category).
				Update("next_value", value+1).Error
			if err != nil {
				return "", classifyStoreError(err, candidate)
			}
			return candidate, nil
		}
		value++
	}
}

// CustomIDResult reports the outcome of validating a user-supplied
// identifier. When the candidate is taken, Reason names the conflict and
// Suggestion carries a free identifier in the same category.
type CustomIDResult struct {
	Valid      bool   `json:"valid"`
	Available  bool   `json:"available"`
	Reason     string `json:"reason,omitempty"`
	Suggestion string `json:"suggestion,omitempty"`
}

// ValidateCustom checks a candidate identifier against format rules and
// uniqueness, including historical identifiers that were retired and are
// never reissued. With lock set, the category sequence row is locked so
// the verdict holds for the rest of the caller's transaction.
func (a *IdentifierAllocator) ValidateCustom(tx *gorm.DB, candidate, category string, lock bool) (*CustomIDResult, error) {
	candidate = strings.ToUpper(strings.TrimSpace(candidate))
	if !customIdentifierPattern.MatchString(candidate) {
		return &CustomIDResult{
			Valid:  false,
			Reason: "identifier must be 3-20 uppercase alphanumeric characters, dashes allowed inside",
		}, nil
	}

	if lock {
		if _, err := a.lockSequence(tx, category); err != nil {
			return nil, err
		}
	}

	taken, err := identifierTaken(tx, candidate)
	if err != nil {
		return nil, err
	}
	if !taken {
		return &CustomIDResult{Valid: true, Available: true}, nil
	}

	reason := "identifier " + candidate + " is already in use"
	retired, err := identifierRetired(tx, candidate)
	if err != nil {
		return nil, err
	}
	if retired {
		reason = "identifier " + candidate + " was previously used and is permanently retired"
	}

	suggestion, err := a.suggestFree(tx, category)
	if err != nil {
		return nil, err
	}
	return &CustomIDResult{Valid: true, Available: false, Reason: reason, Suggestion: suggestion}, nil
}

// MemberIdentifiers derives the two member identifiers of a set from its
// base identifier: the GO member takes the A suffix, the NO GO member B.
func MemberIdentifiers(base string) (goID, noGoID string) {
	return base + string(RoleGo), base + string(RoleNoGo)
}

// BaseOf strips the role suffix from a member identifier.
func BaseOf(memberID string) string {
	if len(memberID) < 2 {
		return memberID
	}
	switch Role(memberID[len(memberID)-1:]) {
	case RoleGo, RoleNoGo:
		return memberID[:len(memberID)-1]
	}
	return memberID
}

// lockSequence reads the category counter under a row lock, creating the
// row first if the category has never allocated.
func (a *IdentifierAllocator) lockSequence(tx *gorm.DB, category string) (*SequenceRecord, error) {
	var seq SequenceRecord
	err := WithRowLock(tx).First(&seq, "category = ?", category).Error
	if err == nil {
		return &seq, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, classifyStoreError(err, "")
	}

	seq = SequenceRecord{Category: category, Prefix: prefixFor(category), NextValue: 1}
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&seq).Error; err != nil {
		return nil, classifyStoreError(err, "")
	}
	// Re-read under the lock: a concurrent transaction may have created
	// the row between our miss and our insert.
	err = WithRowLock(tx).First(&seq, "category = ?", category).Error
	if err != nil {
		return nil, classifyStoreError(err, "")
	}
	return &seq, nil
}

// suggestFree probes forward from the current counter for the first value
// not taken by a live or retired identifier. The counter is not advanced;
// the suggestion is only a hint and expires when the transaction ends.
func (a *IdentifierAllocator) suggestFree(tx *gorm.DB, category string) (string, error) {
	var seq SequenceRecord
	if err := tx.First(&seq, "category = ?", category).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			seq = SequenceRecord{Category: category, Prefix: prefixFor(category), NextValue: 1}
		} else {
			return "", classifyStoreError(err, "")
		}
	}
	for value := seq.NextValue; ; value++ {
		candidate := formatIdentifier(seq.Prefix, value)
		taken, err := identifierTaken(tx, candidate)
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
	}
}

// identifierTaken reports whether an identifier collides with a live
// gauge, a base identifier, a derivable member identifier, or a retired
// identifier.
func identifierTaken(tx *gorm.DB, candidate string) (bool, error) {
	goID, noGoID := MemberIdentifiers(candidate)
	var count int64
	err := tx.Model(&GaugeRecord{}).
		Where("id IN ? OR base_id = ?", []string{candidate, goID, noGoID}, candidate).
		Count(&count).Error
	if err != nil {
		return false, classifyStoreError(err, candidate)
	}
	if count > 0 {
		return true, nil
	}

	err = tx.Model(&RetiredIdentifierRecord{}).
		Where("identifier IN ?", []string{candidate, goID, noGoID}).
		Count(&count).Error
	if err != nil {
		return false, classifyStoreError(err, candidate)
	}
	return count > 0, nil
}

func identifierRetired(tx *gorm.DB, candidate string) (bool, error) {
	goID, noGoID := MemberIdentifiers(candidate)
	var count int64
	err := tx.Model(&RetiredIdentifierRecord{}).
		Where("identifier IN ?", []string{candidate, goID, noGoID}).
		Count(&count).Error
	if err != nil {
		return false, classifyStoreError(err, candidate)
	}
	return count > 0, nil
}

func formatIdentifier(prefix string, value int64) string {
	return fmt.Sprintf("%s%04d", prefix, value)
}

func prefixFor(category string) string {
	if p, ok := categoryPrefixes[category]; ok {
		return p
	}
	normalized := strings.ToUpper(nonLetterPattern.ReplaceAllString(category, ""))
	if len(normalized) >= 2 {
		return normalized[:2]
	}
	if normalized == "" {
		return "GX"
	}
	return normalized + "X"
}
