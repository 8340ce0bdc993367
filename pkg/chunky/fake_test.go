package chunky

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mpapi-go/mpapi/pkg/record"
	"github.com/mpapi-go/mpapi/pkg/search"
)

// fakeAPI answers related searches with one empty item per requested id.
type fakeAPI struct {
	mu      sync.Mutex
	queries []*search.Query
	fail    map[string]error
	block   map[string]bool // wait for cancellation before returning
	closed  int
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{fail: map[string]error{}, block: map[string]bool{}}
}

func (f *fakeAPI) Search(ctx context.Context, q *search.Query) (*record.Document, error) {
	f.mu.Lock()
	f.queries = append(f.queries, q)
	err := f.fail[q.Module]
	block := f.block[q.Module]
	f.mu.Unlock()

	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if err != nil {
		return nil, err
	}

	var b strings.Builder
	fmt.Fprintf(&b, `<application xmlns="%s"><modules><module name="%s">`, record.Namespace, q.Module)
	for _, c := range q.Criteria {
		if _, err := strconv.ParseInt(c.Value, 10, 64); err == nil {
			fmt.Fprintf(&b, `<moduleItem id="%s"/>`, c.Value)
		}
	}
	b.WriteString(`</module></modules></application>`)
	return record.Parse([]byte(b.String()))
}

func (f *fakeAPI) RunSavedQuery(ctx context.Context, id int64, module string, limit, offset int) (*record.Document, error) {
	return nil, fmt.Errorf("not supported")
}

func (f *fakeAPI) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	return nil
}

func (f *fakeAPI) modules() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, q := range f.queries {
		out = append(out, q.Module)
	}
	return out
}

func (f *fakeAPI) query(module string) *search.Query {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, q := range f.queries {
		if q.Module == module {
			return q
		}
	}
	return nil
}

// nopSink is used where nothing is saved.
type nopSink struct{}

func (nopSink) Path(job, kind string, id int64, chunk int) (string, error) { return "", nil }
func (nopSink) Exists(string) bool                                         { return false }
func (nopSink) Save(*record.Document, string) error                        { return nil }

func loadChunk(t *testing.T) *record.Document {
	t.Helper()
	data, err := os.ReadFile("../record/testdata/object-chunk.xml")
	require.NoError(t, err)
	doc, err := record.Parse(data)
	require.NoError(t, err)
	return doc
}
