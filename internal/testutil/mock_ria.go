// Package testutil provides an in-memory MuseumPlus RIA server for tests.
package testutil

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/beevik/etree"
)

const (
	moduleNS = "http://www.zetcom.com/ria/ws/module"
	appPath  = "/ria-ws/application"
)

// Item is one record served by the mock.
type Item struct {
	ID int64

	// Fields are matched by equalsField criteria (fieldPath -> value).
	Fields map[string]string

	// Refs are written as moduleReference elements (target module -> ids).
	Refs map[string][]int64
}

// Request is a request received by the mock.
type Request struct {
	Method string
	Path   string
	Module string
	Body   string
	Header http.Header
}

// MockResponse overrides the reply for a module.
type MockResponse struct {
	StatusCode int
	Body       string
	Delay      time.Duration
}

// MockRIA is a configurable mock of the RIA module endpoints:
//
//	POST module/{module}/search
//	POST module/{module}/search/savedQuery/{id}
//	GET  module/{module}/definition
//	GET  module/definition
type MockRIA struct {
	server *httptest.Server

	// User and Password, when set, are required as basic auth.
	User     string
	Password string

	mu          sync.RWMutex
	items       map[string][]Item
	savedQuery  map[int64][]int64
	overrides   map[string]MockResponse
	definitions map[string]string
	requests    []Request
}

// NewMockRIA starts a mock server.
func NewMockRIA() *MockRIA {
	m := &MockRIA{
		items:       make(map[string][]Item),
		savedQuery:  make(map[int64][]int64),
		overrides:   make(map[string]MockResponse),
		definitions: make(map[string]string),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST "+appPath+"/module/{module}/search", m.handleSearch)
	mux.HandleFunc("POST "+appPath+"/module/{module}/search/savedQuery/{id}", m.handleSavedQuery)
	mux.HandleFunc("GET "+appPath+"/module/{module}/definition", m.handleDefinition)
	mux.HandleFunc("GET "+appPath+"/module/definition", m.handleDefinition)

	m.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.User != "" {
			user, pass, ok := r.BasicAuth()
			if !ok || user != m.User || pass != m.Password {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
		}
		mux.ServeHTTP(w, r)
	}))
	return m
}

// URL returns the base URL to configure a session with.
func (m *MockRIA) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockRIA) Close() {
	m.server.Close()
}

// AddItems adds records to module.
func (m *MockRIA) AddItems(module string, items ...Item) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[module] = append(m.items[module], items...)
}

// SetSavedQuery makes saved query id return the given record ids.
func (m *MockRIA) SetSavedQuery(id int64, ids ...int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.savedQuery[id] = ids
}

// SetDefinition sets the definition body returned for module ("" for all).
func (m *MockRIA) SetDefinition(module, body string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.definitions[module] = body
}

// SetResponse overrides every reply for module.
func (m *MockRIA) SetResponse(module string, resp MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.overrides[module] = resp
}

// Requests returns a copy of all requests received so far.
func (m *MockRIA) Requests() []Request {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Request(nil), m.requests...)
}

// RequestCount returns how many requests targeted module ("" for all).
func (m *MockRIA) RequestCount(module string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, r := range m.requests {
		if module == "" || r.Module == module {
			n++
		}
	}
	return n
}

// Reset clears recorded requests.
func (m *MockRIA) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = nil
}

func (m *MockRIA) record(r *http.Request, module string) string {
	body, _ := io.ReadAll(r.Body)
	m.mu.Lock()
	m.requests = append(m.requests, Request{
		Method: r.Method,
		Path:   strings.TrimPrefix(r.URL.Path, appPath+"/"),
		Module: module,
		Body:   string(body),
		Header: r.Header.Clone(),
	})
	m.mu.Unlock()
	return string(body)
}

// override writes the configured reply for module, if any.
func (m *MockRIA) override(w http.ResponseWriter, r *http.Request, module string) bool {
	m.mu.RLock()
	resp, ok := m.overrides[module]
	m.mu.RUnlock()
	if !ok {
		return false
	}
	if resp.Delay > 0 {
		select {
		case <-time.After(resp.Delay):
		case <-r.Context().Done():
			return true
		}
	}
	w.WriteHeader(resp.StatusCode)
	if resp.Body != "" {
		w.Write([]byte(resp.Body))
	}
	return true
}

func (m *MockRIA) handleSearch(w http.ResponseWriter, r *http.Request) {
	module := r.PathValue("module")
	body := m.record(r, module)
	if m.override(w, r, module) {
		return
	}

	q, err := parseSearch(body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	m.mu.RLock()
	var matched []Item
	for _, it := range m.items[module] {
		if q.matches(it) {
			matched = append(matched, it)
		}
	}
	m.mu.RUnlock()

	m.writeModule(w, module, matched, q.limit, q.offset)
}

func (m *MockRIA) handleSavedQuery(w http.ResponseWriter, r *http.Request) {
	module := r.PathValue("module")
	body := m.record(r, module)
	if m.override(w, r, module) {
		return
	}

	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		http.Error(w, "bad saved query id", http.StatusBadRequest)
		return
	}
	q, err := parseSearch(body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	m.mu.RLock()
	ids, ok := m.savedQuery[id]
	want := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}
	var matched []Item
	for _, it := range m.items[module] {
		if _, hit := want[it.ID]; hit {
			matched = append(matched, it)
		}
	}
	m.mu.RUnlock()

	if !ok {
		http.Error(w, "saved query not found", http.StatusNotFound)
		return
	}
	m.writeModule(w, module, matched, q.limit, q.offset)
}

func (m *MockRIA) handleDefinition(w http.ResponseWriter, r *http.Request) {
	module := r.PathValue("module")
	m.record(r, module)
	if m.override(w, r, module) {
		return
	}

	m.mu.RLock()
	body, ok := m.definitions[module]
	m.mu.RUnlock()
	if !ok {
		body = fmt.Sprintf(`<application xmlns=%q><modules><module name=%q/></modules></application>`, moduleNS, module)
	}
	w.Header().Set("Content-Type", "application/xml")
	w.Write([]byte(body))
}

func (m *MockRIA) writeModule(w http.ResponseWriter, module string, items []Item, limit, offset int) {
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	total := len(items)

	start := min(offset, total)
	end := total
	if limit >= 0 {
		end = min(start+limit, total)
	}

	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)
	app := doc.CreateElement("application")
	app.CreateAttr("xmlns", moduleNS)
	mod := app.CreateElement("modules").CreateElement("module")
	mod.CreateAttr("name", module)
	mod.CreateAttr("totalSize", strconv.Itoa(total))

	for _, it := range items[start:end] {
		el := mod.CreateElement("moduleItem")
		el.CreateAttr("id", strconv.FormatInt(it.ID, 10))
		targets := make([]string, 0, len(it.Refs))
		for t := range it.Refs {
			targets = append(targets, t)
		}
		sort.Strings(targets)
		for _, t := range targets {
			ref := el.CreateElement("moduleReference")
			ref.CreateAttr("name", "Obj"+t+"Ref")
			ref.CreateAttr("targetModule", t)
			for _, id := range it.Refs[t] {
				ref.CreateElement("moduleReferenceItem").CreateAttr("moduleItemId", strconv.FormatInt(id, 10))
			}
		}
	}

	doc.Indent(2)
	w.Header().Set("Content-Type", "application/xml")
	doc.WriteTo(w)
}

type searchRequest struct {
	limit    int
	offset   int
	join     string
	criteria [][2]string
}

func parseSearch(body string) (*searchRequest, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromString(body); err != nil {
		return nil, fmt.Errorf("parse search: %w", err)
	}
	s := doc.FindElement("//search")
	if s == nil {
		return nil, fmt.Errorf("no search element")
	}
	q := &searchRequest{limit: -1}
	if v := s.SelectAttrValue("limit", ""); v != "" {
		q.limit, _ = strconv.Atoi(v)
	}
	if v := s.SelectAttrValue("offset", ""); v != "" {
		q.offset, _ = strconv.Atoi(v)
	}
	expert := s.SelectElement("expert")
	if expert == nil {
		return q, nil
	}
	parent := expert
	if j := expert.SelectElement("and"); j != nil {
		q.join, parent = "and", j
	} else if j := expert.SelectElement("or"); j != nil {
		q.join, parent = "or", j
	}
	for _, c := range parent.SelectElements("equalsField") {
		q.criteria = append(q.criteria, [2]string{c.SelectAttrValue("fieldPath", ""), c.SelectAttrValue("operand", "")})
	}
	return q, nil
}

func (q *searchRequest) matches(it Item) bool {
	if len(q.criteria) == 0 {
		return true
	}
	for _, c := range q.criteria {
		var value string
		if c[0] == "__id" {
			value = strconv.FormatInt(it.ID, 10)
		} else {
			value = it.Fields[c[0]]
		}
		hit := value == c[1]
		if q.join == "or" && hit {
			return true
		}
		if q.join != "or" && !hit {
			return false
		}
	}
	return q.join != "or"
}
