package chunky

import (
	"sort"
	"strconv"

	"github.com/mpapi-go/mpapi/pkg/search"
)

// seedFields maps target type and query kind to the field compared with
// the seed id.
var seedFields = map[string]map[QueryKind]string{
	"Multimedia": {
		KindApproval: "MulObjectRef.ObjPublicationGrp.TypeVoc",
		KindExhibit:  "MulObjectRef.ObjRegistrarRef.RegExhibitionRef.__id",
		KindGroup:    "MulObjectRef.ObjObjectGroupsRef.__id",
		KindLocation: "MulObjectRef.ObjCurrentLocationVoc",
	},
	"Object": {
		KindApproval: "ObjPublicationGrp.TypeVoc",
		KindExhibit:  "ObjRegistrarRef.RegExhibitionRef.__id",
		KindGroup:    "ObjObjectGroupsRef.__id",
		KindLocation: "ObjCurrentLocationVoc",
	},
	"Person": {
		KindApproval: "PerObjectRef.ObjPublicationGrp.TypeVoc",
		KindExhibit:  "PerObjectRef.ObjRegistrarRef.RegExhibitionRef.__id",
		KindGroup:    "PerObjectRef.ObjObjectGroupsRef.__id",
		KindLocation: "PerObjectRef.ObjCurrentLocationVoc",
	},
}

// publicationFields is the publication flag checked for approval seeds.
var publicationFields = map[string]string{
	"Multimedia": "MulObjectRef.ObjPublicationGrp.PublicationVoc",
	"Object":     "ObjPublicationGrp.PublicationVoc",
	"Person":     "PerObjectRef.ObjPublicationGrp.PublicationVoc",
}

// Vocabulary ids used in seed criteria.
const (
	vocYes          = "1810139" // publication / approval: yes
	vocSMBDigital   = "1816002" // approval type for online publication
	mulApprovalType = "MulApprovalGrp.TypeVoc"
	mulApproval     = "MulApprovalGrp.ApprovalVoc"
)

// SeedTargets returns the target types BuildSeedQuery supports.
func SeedTargets() []string {
	out := make([]string, 0, len(seedFields))
	for t := range seedFields {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// BuildSeedQuery builds the search selecting seed's population with the
// given paging. Approval seeds also require the publication flag, and
// Multimedia seeds are restricted to records approved for publication;
// both use an AND join.
func BuildSeedQuery(seed SeedQuery, limit, offset int) (*search.Query, error) {
	if err := seed.Validate(); err != nil {
		return nil, err
	}
	if seed.Kind == KindSavedQuery {
		return nil, &QueryError{Kind: seed.Kind, Target: seed.Target, Reason: ErrSavedQuery}
	}

	q := search.New(seed.Target, limit, offset)
	if seed.Kind == KindApproval || seed.Target == "Multimedia" {
		q.SetJoin(search.JoinAnd)
	}
	q.AddCriterion(seedFields[seed.Target][seed.Kind], search.OpEqualsField, strconv.FormatInt(seed.ID, 10))
	if seed.Kind == KindApproval {
		q.AddCriterion(publicationFields[seed.Target], search.OpEqualsField, vocYes)
	}
	if seed.Target == "Multimedia" {
		q.AddCriterion(mulApprovalType, search.OpEqualsField, vocSMBDigital)
		q.AddCriterion(mulApproval, search.OpEqualsField, vocYes)
	}
	return q, nil
}

// buildRelatedQuery selects every record of module whose id is in ids.
// A single id is a bare equality; more ids are OR-joined.
func buildRelatedQuery(module string, ids []int64, fields []string) *search.Query {
	q := search.New(module, search.Unlimited, 0)
	if len(ids) > 1 {
		q.SetJoin(search.JoinOr)
	}
	for _, id := range ids {
		q.AddCriterion(search.IDField, search.OpEqualsField, strconv.FormatInt(id, 10))
	}
	for _, f := range fields {
		q.AddField(f)
	}
	return q
}
