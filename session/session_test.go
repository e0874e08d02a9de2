package session

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/williamhallatt/xmlmill/xmerr"
)

func testConfig(t *testing.T) Config {
	t.Helper()
	cfg := DefaultConfig()
	cfg.RegistryPath = filepath.Join(t.TempDir(), "registry.json")
	return cfg
}

func newActiveSession(t *testing.T, cfg Config) *Session {
	t.Helper()
	s, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Registry.Add("books", "books.db"))
	require.NoError(t, s.Registry.Activate("books"))
	return s
}

func TestOpenDocumentNoActiveConnection(t *testing.T) {
	s, err := New(testConfig(t))
	require.NoError(t, err)
	defer s.Close()

	assert.Empty(t, s.Errors())
	_, err = s.OpenDocument(context.Background(), strings.NewReader("<a/>"), -1, true)
	assert.True(t, errors.Is(err, xmerr.ErrNoActiveConnection))
	assert.Equal(t, StatusIdle, s.State.Status)
}

func TestImportThenOpen(t *testing.T) {
	a := assert.New(t)
	ctx := context.Background()
	s := newActiveSession(t, testConfig(t))

	_, err := s.OpenDocument(ctx, strings.NewReader(`<book><title/></book>`), -1, false)
	a.True(errors.Is(err, ErrUnknownDocument), "got %v", err)
	empty, err := s.Store.IsProfileEmpty(ctx)
	a.NoError(err)
	a.True(empty, "refused document must not be reconciled")

	id, err := s.ImportDocument(ctx, strings.NewReader(`<book lang="en"><title/></book>`), -1)
	require.NoError(t, err)
	a.Equal(s.Document.Root(), id)
	a.Equal(StatusEditing, s.State.Status)
	a.Equal(1, s.State.Counters.Documents)
	a.Equal(2, s.State.Counters.Learned.Elements)
	a.Equal(1, s.State.Counters.Learned.Roots)

	roots, err := s.Query.RootChoices(ctx)
	a.NoError(err)
	a.Equal([]string{"book"}, roots)
	values, err := s.Query.ValueChoices(ctx, "book", "lang")
	a.NoError(err)
	a.Equal([]string{"---", "en"}, values)

	_, err = s.OpenDocument(ctx, strings.NewReader(`<book><author/></book>`), -1, false)
	require.NoError(t, err)
	children, err := s.Query.ChildChoices(ctx, "book")
	a.NoError(err)
	a.Equal([]string{"author", "title"}, children)
	a.Equal(2, s.State.Counters.Documents)

	n, err := s.Document.Node(s.Document.Root())
	a.NoError(err)
	a.Len(n.Children, 1)
}

func TestOpenDocumentParseErrorKeepsDocument(t *testing.T) {
	ctx := context.Background()
	s := newActiveSession(t, testConfig(t))

	root, err := s.ImportDocument(ctx, strings.NewReader(`<a><b/></a>`), -1)
	require.NoError(t, err)

	_, err = s.ImportDocument(ctx, strings.NewReader(`<a><b></a>`), -1)
	assert.Error(t, err)
	assert.Equal(t, root, s.Document.Root())
	assert.Equal(t, 1, s.State.Counters.Documents)
}

func TestDocumentSize(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	cfg.LargeDocumentWarning = 5
	cfg.LargeDocumentLimit = 10
	s := newActiveSession(t, cfg)

	for _, tc := range []struct {
		name    string
		size    int64
		wantErr error
	}{
		{name: "unknown size", size: -1},
		{name: "small", size: 4},
		{name: "warning", size: 8},
		{name: "at limit", size: 10},
		{name: "over limit", size: 11, wantErr: ErrDocumentTooLarge},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := s.ImportDocument(ctx, strings.NewReader("<a/>"), tc.size)
			if tc.wantErr != nil {
				assert.True(t, errors.Is(err, tc.wantErr), "got %v", err)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestLargeDocument(t *testing.T) {
	a := assert.New(t)
	cfg := testConfig(t)
	cfg.LargeDocumentWarning = 8
	s := newActiveSession(t, cfg)
	doc := `<book><title/><chapter n="1"/><chapter n="2"/></book>`

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.ImportDocument(ctx, strings.NewReader(doc), int64(len(doc)))
	a.True(errors.Is(err, context.Canceled), "got %v", err)
	empty, err := s.Store.IsProfileEmpty(context.Background())
	a.NoError(err)
	a.True(empty, "cancelled document must not be reconciled")
	a.Equal(0, s.State.Counters.Documents)

	_, err = s.ImportDocument(context.Background(), strings.NewReader(doc), int64(len(doc)))
	require.NoError(t, err)
	children, err := s.Query.ChildChoices(context.Background(), "book")
	a.NoError(err)
	a.Equal([]string{"chapter", "title"}, children)
	values, err := s.Query.ValueChoices(context.Background(), "chapter", "n")
	a.NoError(err)
	a.Equal([]string{"---", "1", "2"}, values)
	a.Equal(1, s.State.Counters.Documents)
}

func TestOpenFile(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	cfg.LargeDocumentLimit = 16
	cfg.LargeDocumentWarning = 8
	s := newActiveSession(t, cfg)

	dir := t.TempDir()
	small := filepath.Join(dir, "small.xml")
	large := filepath.Join(dir, "large.xml")
	require.NoError(t, os.WriteFile(small, []byte("<a><b/></a>"), 0o644))
	require.NoError(t, os.WriteFile(large, []byte("<a><b/><c/><d/><e/></a>"), 0o644))

	_, err := s.OpenFile(ctx, small, true)
	assert.NoError(t, err)
	_, err = s.OpenFile(ctx, large, true)
	assert.True(t, errors.Is(err, ErrDocumentTooLarge), "got %v", err)
	_, err = s.OpenFile(ctx, filepath.Join(dir, "missing.xml"), true)
	assert.Error(t, err)
}

func TestWriteDocument(t *testing.T) {
	ctx := context.Background()
	s := newActiveSession(t, testConfig(t))

	var buf bytes.Buffer
	assert.Error(t, s.WriteDocument(&buf, ""), "no document loaded")

	_, err := s.ImportDocument(ctx, strings.NewReader(`<!--c--><book id="1"><title>Go</title></book>`), -1)
	require.NoError(t, err)
	require.NoError(t, s.WriteDocument(&buf, ""))
	assert.Equal(t, `<!-- c --><book id="1"><title>Go</title></book>`, buf.String())
}

func TestRestoreActive(t *testing.T) {
	cfg := testConfig(t)
	s, err := New(cfg)
	require.NoError(t, err)
	require.NoError(t, s.Registry.Add("books", "books.db"))
	require.NoError(t, s.Registry.Activate("books"))
	require.NoError(t, s.Close())

	s, err = New(cfg)
	require.NoError(t, err)
	assert.Equal(t, "books", s.Registry.Active())
	assert.True(t, s.Store.Active())
	require.NoError(t, s.Close())

	cfg.RestoreActive = false
	s, err = New(cfg)
	require.NoError(t, err)
	defer s.Close()
	assert.False(t, s.Registry.HasActive())
	assert.False(t, s.Store.Active())
}

func TestRestoreFailureIsRecorded(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "blocker")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))
	cfg := DefaultConfig()
	cfg.RegistryPath = filepath.Join(dir, "registry.json")
	require.NoError(t, os.WriteFile(cfg.RegistryPath, []byte(`{
	// the location cannot be created: its parent is a file
	"connections": [{"name": "bad", "location": "blocker/sub/p.db"}],
	"active": "bad",
}`), 0o644))

	s, err := New(cfg)
	require.NoError(t, err)
	defer s.Close()
	require.Len(t, s.Errors(), 1)
	assert.True(t, errors.Is(s.Errors()[0], xmerr.ErrOpenFailed), "got %v", s.Errors()[0])
	assert.False(t, s.Store.Active())
}

func TestClose(t *testing.T) {
	ctx := context.Background()
	s := newActiveSession(t, testConfig(t))
	_, err := s.ImportDocument(ctx, strings.NewReader(`<a/>`), -1)
	require.NoError(t, err)

	assert.NoError(t, s.Close())
	assert.NoError(t, s.Close())
	assert.Equal(t, StatusClosed, s.State.Status)
	assert.False(t, s.Store.Active())
	assert.Equal(t, 0, s.Document.Len())
	_, err = s.ImportDocument(ctx, strings.NewReader(`<a/>`), -1)
	assert.Error(t, err)
}

func TestNewInvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.RegistryPath = ""
	_, err := New(cfg)
	assert.True(t, errors.Is(err, ErrInvalidConfig))
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "idle", StatusIdle.String())
	assert.Equal(t, "editing", StatusEditing.String())
	assert.Equal(t, "closed", StatusClosed.String())
	assert.Equal(t, "unknown", Status(42).String())
}
