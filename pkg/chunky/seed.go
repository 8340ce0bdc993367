package chunky

import (
	"fmt"
	"strconv"
	"strings"
)

// QueryKind names how a seed population is selected.
type QueryKind string

const (
	KindApproval   QueryKind = "approval" // approval group
	KindExhibit    QueryKind = "exhibit"  // exhibition
	KindGroup      QueryKind = "group"    // object group
	KindLocation   QueryKind = "loc"      // current location
	KindSavedQuery QueryKind = "query"    // saved query
)

var allowedKinds = []QueryKind{KindApproval, KindExhibit, KindGroup, KindLocation, KindSavedQuery}

// ParseQueryKind returns the kind named s.
func ParseQueryKind(s string) (QueryKind, error) {
	for _, k := range allowedKinds {
		if string(k) == s {
			return k, nil
		}
	}
	return "", &QueryError{Kind: QueryKind(s), Reason: ErrUnknownQueryKind}
}

// SeedQuery identifies the collection a run pages through.
type SeedQuery struct {
	Kind   QueryKind
	ID     int64
	Target string // record type, e.g. "Object"
}

// NewSeedQuery returns a seed query with the default target "Object".
func NewSeedQuery(kind QueryKind, id int64) SeedQuery {
	return SeedQuery{Kind: kind, ID: id, Target: "Object"}
}

// ParseSeedQuery parses "kind id [target]".
func ParseSeedQuery(s string) (SeedQuery, error) {
	parts := strings.Fields(s)
	if len(parts) < 2 || len(parts) > 3 {
		return SeedQuery{}, fmt.Errorf("seed query %q: want \"kind id [target]\"", s)
	}
	kind, err := ParseQueryKind(parts[0])
	if err != nil {
		return SeedQuery{}, err
	}
	id, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return SeedQuery{}, fmt.Errorf("seed query %q: id: %w", s, err)
	}
	seed := NewSeedQuery(kind, id)
	if len(parts) == 3 {
		seed.Target = parts[2]
	}
	return seed, seed.Validate()
}

// Validate checks the kind, and the target when the seed is built from
// the field tables. Saved queries accept any target.
func (s SeedQuery) Validate() error {
	if _, err := ParseQueryKind(string(s.Kind)); err != nil {
		return err
	}
	if s.Target == "" {
		return &QueryError{Kind: s.Kind, Reason: ErrUnknownTargetType}
	}
	if s.Kind == KindSavedQuery {
		return nil
	}
	if _, ok := seedFields[s.Target]; !ok {
		return &QueryError{Kind: s.Kind, Target: s.Target, Reason: ErrUnknownTargetType}
	}
	return nil
}

func (s SeedQuery) String() string {
	return fmt.Sprintf("%s %d %s", s.Kind, s.ID, s.Target)
}
