// Package search builds, validates and serializes RIA search requests.
//
// A Query targets one module (record type) and carries paging, an optional
// field selection and a list of expert criteria joined by AND or OR:
//
//	q := search.New("Person", search.Unlimited, 0)
//	q.SetJoin(search.JoinOr)
//	q.AddCriterion("__id", search.OpEqualsField, "12")
//	q.AddCriterion("__id", search.OpEqualsField, "34")
//	if err := q.Validate(search.ModeSearch); err != nil { ... }
//	body, err := q.XML()
package search

import (
	"fmt"
	"strconv"

	"github.com/beevik/etree"
)

// Namespace of RIA search documents.
const (
	Namespace      = "http://www.zetcom.com/ria/ws/module/search"
	schemaLocation = Namespace + " " + Namespace + "/search_1_6.xsd"
	xsiNamespace   = "http://www.w3.org/2001/XMLSchema-instance"
)

// Unlimited is the limit value that asks the server for every match.
const Unlimited = -1

// IDField is the system field holding a record's identifier.
const IDField = "__id"

// Join combines multiple criteria.
type Join string

const (
	JoinNone Join = ""
	JoinAnd  Join = "and"
	JoinOr   Join = "or"
)

// Operator is an expert search operator.
type Operator string

const (
	OpEqualsField    Operator = "equalsField"
	OpNotEqualsField Operator = "notEqualsField"
	OpContainsField  Operator = "containsField"
	OpGreaterField   Operator = "greaterField"
	OpLessField      Operator = "lessField"
	OpIsNull         Operator = "isNull"
)

var knownOperators = map[Operator]struct{}{
	OpEqualsField:    {},
	OpNotEqualsField: {},
	OpContainsField:  {},
	OpGreaterField:   {},
	OpLessField:      {},
	OpIsNull:         {},
}

// Mode selects the validation rule set.
type Mode string

// ModeSearch validates a query for the module search endpoints.
const ModeSearch Mode = "search"

// Criterion is one expert search condition.
type Criterion struct {
	Field    string
	Operator Operator
	Value    string
}

// Query is a search request for one module.
type Query struct {
	Module   string
	Limit    int
	Offset   int
	Join     Join
	Criteria []Criterion
	Fields   []string
}

// New creates a query for module with the given paging.
func New(module string, limit, offset int) *Query {
	return &Query{
		Module: module,
		Limit:  limit,
		Offset: offset,
	}
}

// AddCriterion appends a condition.
func (q *Query) AddCriterion(field string, op Operator, value string) {
	q.Criteria = append(q.Criteria, Criterion{Field: field, Operator: op, Value: value})
}

// SetJoin sets how criteria are combined.
func (q *Query) SetJoin(j Join) {
	q.Join = j
}

// AddField restricts the response to the named field (may be repeated).
func (q *Query) AddField(name string) {
	q.Fields = append(q.Fields, name)
}

// ValidationError describes a malformed query.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid search query: %s: %s", e.Field, e.Message)
}

// Validate checks the query against the rules for mode.
func (q *Query) Validate(mode Mode) error {
	if mode != ModeSearch {
		return &ValidationError{Field: "mode", Message: fmt.Sprintf("unknown mode %q", mode)}
	}
	if q.Module == "" {
		return &ValidationError{Field: "module", Message: "must not be empty"}
	}
	if q.Limit == 0 || q.Limit < Unlimited {
		return &ValidationError{Field: "limit", Message: fmt.Sprintf("must be positive or %d (got %d)", Unlimited, q.Limit)}
	}
	if q.Offset < 0 {
		return &ValidationError{Field: "offset", Message: fmt.Sprintf("must not be negative (got %d)", q.Offset)}
	}
	switch q.Join {
	case JoinNone, JoinAnd, JoinOr:
	default:
		return &ValidationError{Field: "join", Message: fmt.Sprintf("unknown join %q", q.Join)}
	}
	if len(q.Criteria) > 1 && q.Join == JoinNone {
		return &ValidationError{Field: "join", Message: fmt.Sprintf("%d criteria need an and/or join", len(q.Criteria))}
	}
	for i, c := range q.Criteria {
		if c.Field == "" {
			return &ValidationError{Field: fmt.Sprintf("criteria[%d].field", i), Message: "must not be empty"}
		}
		if _, ok := knownOperators[c.Operator]; !ok {
			return &ValidationError{Field: fmt.Sprintf("criteria[%d].operator", i), Message: fmt.Sprintf("unknown operator %q", c.Operator)}
		}
	}
	for i, f := range q.Fields {
		if f == "" {
			return &ValidationError{Field: fmt.Sprintf("fields[%d]", i), Message: "must not be empty"}
		}
	}
	return nil
}

// Document builds the search request as an XML document.
func (q *Query) Document() *etree.Document {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)

	app := doc.CreateElement("application")
	app.CreateAttr("xmlns", Namespace)
	app.CreateAttr("xmlns:xsi", xsiNamespace)
	app.CreateAttr("xsi:schemaLocation", schemaLocation)

	module := app.CreateElement("modules").CreateElement("module")
	module.CreateAttr("name", q.Module)

	s := module.CreateElement("search")
	s.CreateAttr("limit", strconv.Itoa(q.Limit))
	s.CreateAttr("offset", strconv.Itoa(q.Offset))

	if len(q.Fields) > 0 {
		sel := s.CreateElement("select")
		for _, f := range q.Fields {
			sel.CreateElement("field").CreateAttr("fieldPath", f)
		}
	}

	if len(q.Criteria) > 0 {
		parent := s.CreateElement("expert")
		if q.Join != JoinNone {
			parent = parent.CreateElement(string(q.Join))
		}
		for _, c := range q.Criteria {
			el := parent.CreateElement(string(c.Operator))
			el.CreateAttr("fieldPath", c.Field)
			if c.Operator != OpIsNull {
				el.CreateAttr("operand", c.Value)
			}
		}
	}

	doc.Indent(2)
	return doc
}

// XML serializes the query.
func (q *Query) XML() ([]byte, error) {
	b, err := q.Document().WriteToBytes()
	if err != nil {
		return nil, fmt.Errorf("serialize search query: %w", err)
	}
	return b, nil
}

// String returns the serialized query, or an empty string if it cannot
// be serialized.
func (q *Query) String() string {
	b, err := q.XML()
	if err != nil {
		return ""
	}
	return string(b)
}
