// Package record holds fetched RIA records as an XML document and offers
// the operations the chunk pipeline needs: merge, counting, reference
// discovery, cleanup, validation and serialization.
//
// The document shape is the RIA module format:
//
//	<application xmlns="http://www.zetcom.com/ria/ws/module">
//	  <modules>
//	    <module name="Object" totalSize="49">
//	      <moduleItem id="590013">
//	        <moduleReference name="ObjPerAssociationRef" targetModule="Person">
//	          <moduleReferenceItem moduleItemId="12345"/>
//	        </moduleReference>
//	      </moduleItem>
//	    </module>
//	  </modules>
//	</application>
package record

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/beevik/etree"
)

// Namespace of RIA module documents.
const Namespace = "http://www.zetcom.com/ria/ws/module"

// ErrInvalidDocument is wrapped by every validation failure.
var ErrInvalidDocument = errors.New("invalid record document")

// Document is an in-memory set of records, possibly spanning several modules.
// A Document is not safe for concurrent mutation.
type Document struct {
	doc *etree.Document
}

// New returns an empty document.
func New() *Document {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)
	app := doc.CreateElement("application")
	app.CreateAttr("xmlns", Namespace)
	app.CreateElement("modules")
	return &Document{doc: doc}
}

// Parse reads a document from its XML representation.
func Parse(data []byte) (*Document, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(data); err != nil {
		return nil, fmt.Errorf("parse record document: %w", err)
	}
	if doc.Root() == nil || doc.Root().Tag != "application" {
		return nil, fmt.Errorf("%w: root element is not <application>", ErrInvalidDocument)
	}
	return &Document{doc: doc}, nil
}

// modulesElement returns <modules>, creating it when absent.
func (d *Document) modulesElement() *etree.Element {
	root := d.doc.Root()
	modules := root.SelectElement("modules")
	if modules == nil {
		modules = root.CreateElement("modules")
	}
	return modules
}

// moduleElements returns every <module> element named name. An empty
// name selects all modules.
func (d *Document) moduleElements(name string) []*etree.Element {
	modules := d.doc.Root().SelectElement("modules")
	if modules == nil {
		return nil
	}
	var out []*etree.Element
	for _, m := range modules.SelectElements("module") {
		if name == "" || m.SelectAttrValue("name", "") == name {
			out = append(out, m)
		}
	}
	return out
}

// Modules returns the distinct module names present, sorted.
func (d *Document) Modules() []string {
	seen := make(map[string]struct{})
	for _, m := range d.moduleElements("") {
		seen[m.SelectAttrValue("name", "")] = struct{}{}
	}
	return sortedKeys(seen)
}

// TotalSize returns the server-reported result size for module, i.e. the
// totalSize attribute, which counts all matches rather than those in the
// current page. Returns 0 when the module is absent.
func (d *Document) TotalSize(module string) (int, error) {
	total := 0
	for _, m := range d.moduleElements(module) {
		attr := m.SelectAttrValue("totalSize", "")
		if attr == "" {
			continue
		}
		n, err := strconv.Atoi(attr)
		if err != nil {
			return 0, fmt.Errorf("%w: module %s has totalSize %q", ErrInvalidDocument, module, attr)
		}
		total += n
	}
	return total, nil
}

// CountItems returns the number of items of module in the document.
func (d *Document) CountItems(module string) int {
	n := 0
	for _, m := range d.moduleElements(module) {
		n += len(m.SelectElements("moduleItem"))
	}
	return n
}

// Len returns the number of items across all modules.
func (d *Document) Len() int {
	return d.CountItems("")
}

// RelatedTypes returns the distinct target module names of every
// reference found in the document's items, sorted.
func (d *Document) RelatedTypes() []string {
	seen := make(map[string]struct{})
	for _, m := range d.moduleElements("") {
		for _, item := range m.SelectElements("moduleItem") {
			for _, ref := range item.FindElements(".//moduleReference") {
				if target := ref.SelectAttrValue("targetModule", ""); target != "" {
					seen[target] = struct{}{}
				}
			}
		}
	}
	return sortedKeys(seen)
}

// ReferencedIDs returns the distinct record IDs referenced from anywhere in
// the document that point to module target, in ascending order.
func (d *Document) ReferencedIDs(target string) ([]int64, error) {
	seen := make(map[int64]struct{})
	for _, mref := range d.doc.FindElements("//moduleReference") {
		if mref.SelectAttrValue("targetModule", "") != target {
			continue
		}
		for _, ref := range mref.SelectElements("moduleReferenceItem") {
			attr := ref.SelectAttrValue("moduleItemId", "")
			id, err := strconv.ParseInt(attr, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("%w: reference to %s has moduleItemId %q", ErrInvalidDocument, target, attr)
			}
			seen[id] = struct{}{}
		}
	}
	ids := make([]int64, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// Merge adds every item of other into d. Items already present (same module
// and id) are not duplicated, so the resulting item set does not depend on
// merge order. other is not modified.
func (d *Document) Merge(other *Document) {
	if other == nil {
		return
	}
	for _, src := range other.moduleElements("") {
		name := src.SelectAttrValue("name", "")
		dst := d.findOrCreateModule(name)
		have := itemIDs(dst)
		for _, item := range src.SelectElements("moduleItem") {
			id := item.SelectAttrValue("id", "")
			if _, ok := have[id]; ok {
				continue
			}
			have[id] = struct{}{}
			dst.AddChild(item.Copy())
		}
		dst.CreateAttr("totalSize", strconv.Itoa(len(dst.SelectElements("moduleItem"))))
	}
}

func (d *Document) findOrCreateModule(name string) *etree.Element {
	if existing := d.moduleElements(name); len(existing) > 0 {
		return existing[0]
	}
	m := d.modulesElement().CreateElement("module")
	m.CreateAttr("name", name)
	return m
}

// Clean folds duplicate module elements together, removes duplicate items
// and empty modules, and sets totalSize to the number of items kept.
func (d *Document) Clean() {
	modules := d.doc.Root().SelectElement("modules")
	if modules == nil {
		return
	}
	byName := make(map[string]*etree.Element)
	for _, m := range modules.SelectElements("module") {
		name := m.SelectAttrValue("name", "")
		first, ok := byName[name]
		if !ok {
			byName[name] = m
			continue
		}
		for _, item := range m.SelectElements("moduleItem") {
			m.RemoveChild(item)
			first.AddChild(item)
		}
		modules.RemoveChild(m)
	}
	for _, m := range modules.SelectElements("module") {
		seen := make(map[string]struct{})
		for _, item := range m.SelectElements("moduleItem") {
			id := item.SelectAttrValue("id", "")
			if _, dup := seen[id]; dup {
				m.RemoveChild(item)
				continue
			}
			seen[id] = struct{}{}
		}
		if len(seen) == 0 {
			modules.RemoveChild(m)
			continue
		}
		m.CreateAttr("totalSize", strconv.Itoa(len(seen)))
	}
}

// Validate checks that the document is well formed: an <application> root
// with <modules>, every module named, every item carrying a numeric id.
func (d *Document) Validate() error {
	root := d.doc.Root()
	if root == nil || root.Tag != "application" {
		return fmt.Errorf("%w: root element is not <application>", ErrInvalidDocument)
	}
	modules := root.SelectElement("modules")
	if modules == nil {
		return fmt.Errorf("%w: missing <modules>", ErrInvalidDocument)
	}
	for i, m := range modules.SelectElements("module") {
		name := m.SelectAttrValue("name", "")
		if name == "" {
			return fmt.Errorf("%w: module %d has no name", ErrInvalidDocument, i)
		}
		for _, item := range m.SelectElements("moduleItem") {
			id := item.SelectAttrValue("id", "")
			if _, err := strconv.ParseInt(id, 10, 64); err != nil {
				return fmt.Errorf("%w: %s item has id %q", ErrInvalidDocument, name, id)
			}
		}
	}
	return nil
}

// WriteTo writes the indented XML representation to w.
func (d *Document) WriteTo(w io.Writer) (int64, error) {
	d.doc.Indent(2)
	return d.doc.WriteTo(w)
}

// Bytes returns the indented XML representation.
func (d *Document) Bytes() ([]byte, error) {
	d.doc.Indent(2)
	return d.doc.WriteToBytes()
}

func itemIDs(module *etree.Element) map[string]struct{} {
	ids := make(map[string]struct{})
	for _, item := range module.SelectElements("moduleItem") {
		ids[item.SelectAttrValue("id", "")] = struct{}{}
	}
	return ids
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
