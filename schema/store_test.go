package schema

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/williamhallatt/xmlmill/message"
	"github.com/williamhallatt/xmlmill/xmerr"
)

func openTestConn(t *testing.T) *Conn {
	t.Helper()
	c, err := Open(filepath.Join(t.TempDir(), "profiles", "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func newTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	s := NewStore(opts...)
	s.Attach(openTestConn(t))
	return s
}

func TestBookScenario(t *testing.T) {
	ctx := context.Background()
	a := assert.New(t)
	s := newTestStore(t)

	empty, err := s.IsProfileEmpty(ctx)
	a.NoError(err)
	a.True(empty)

	created, err := s.AddElement(ctx, "book", nil, nil, []string{"isbn"})
	a.NoError(err)
	a.True(created)
	a.NoError(s.UpdateAttributeValues(ctx, "book", "isbn", []string{"978-0"}))

	attrs, err := s.AttributesOf(ctx, "book")
	a.NoError(err)
	a.Equal([]string{"isbn"}, attrs)
	values, err := s.ValuesOf(ctx, "book", "isbn")
	a.NoError(err)
	a.Equal([]string{"978-0"}, values)
	empty, err = s.IsProfileEmpty(ctx)
	a.NoError(err)
	a.False(empty)
}

func TestAdditivity(t *testing.T) {
	ctx := context.Background()
	a := assert.New(t)
	s := newTestStore(t)

	_, err := s.AddElement(ctx, "e", nil, nil, nil)
	require.NoError(t, err)
	a.NoError(s.UpdateElementAttributes(ctx, "e", []string{"a", "b"}))
	a.NoError(s.UpdateElementAttributes(ctx, "e", []string{"b", "c"}))
	attrs, err := s.AttributesOf(ctx, "e")
	a.NoError(err)
	a.Equal([]string{"a", "b", "c"}, attrs)

	a.NoError(s.UpdateAttributeValues(ctx, "e", "a", []string{"2", "1"}))
	a.NoError(s.UpdateAttributeValues(ctx, "e", "a", []string{"1", "3", ""}))
	values, err := s.ValuesOf(ctx, "e", "a")
	a.NoError(err)
	a.Equal([]string{"", "1", "2", "3"}, values)

	a.NoError(s.UpdateElementChildren(ctx, "e", []string{"y", "x"}))
	a.NoError(s.UpdateElementChildren(ctx, "e", []string{"x"}))
	children, err := s.ChildrenOf(ctx, "e")
	a.NoError(err)
	a.Equal([]string{"x", "y"}, children)

	a.NoError(s.UpdateElementComments(ctx, "e", []string{"first", "second"}))
	a.NoError(s.UpdateElementComments(ctx, "e", []string{"first"}))
	comments, err := s.CommentsOf(ctx, "e")
	a.NoError(err)
	a.Equal([]string{"first", "second", "first"}, comments)
}

func TestAddElementIdempotent(t *testing.T) {
	ctx := context.Background()
	a := assert.New(t)
	s := newTestStore(t)

	created, err := s.AddElement(ctx, "x", []string{"c"}, []string{"y"}, []string{"id"})
	a.NoError(err)
	a.True(created)
	once, err := s.Snapshot(ctx)
	require.NoError(t, err)

	created, err = s.AddElement(ctx, "x", []string{"other"}, []string{"z"}, []string{"name"})
	a.NoError(err)
	a.False(created)
	twice, err := s.Snapshot(ctx)
	require.NoError(t, err)
	if diff := cmp.Diff(once, twice); diff != "" {
		t.Errorf("second AddElement changed the profile (-once +twice):\n%s", diff)
	}
}

func TestPreconditions(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	_, err := s.AddElement(ctx, "e", nil, nil, []string{"known"})
	require.NoError(t, err)

	for _, tc := range []struct {
		name string
		op   func() error
		want error
	}{
		{
			name: "values for unassociated attribute",
			op:   func() error { return s.UpdateAttributeValues(ctx, "e", "attr", []string{"v"}) },
			want: xmerr.ErrUnknownAttribute,
		},
		{
			name: "values for unknown element",
			op:   func() error { return s.UpdateAttributeValues(ctx, "nope", "attr", []string{"v"}) },
			want: xmerr.ErrUnknownElement,
		},
		{
			name: "attributes for unknown element",
			op:   func() error { return s.UpdateElementAttributes(ctx, "nope", []string{"a"}) },
			want: xmerr.ErrUnknownElement,
		},
		{
			name: "children for unknown element",
			op:   func() error { return s.UpdateElementChildren(ctx, "nope", []string{"a"}) },
			want: xmerr.ErrUnknownElement,
		},
		{
			name: "comments for unknown element",
			op:   func() error { return s.UpdateElementComments(ctx, "nope", []string{"a"}) },
			want: xmerr.ErrUnknownElement,
		},
		{
			name: "mark unknown root",
			op:   func() error { return s.MarkRoot(ctx, "nope") },
			want: xmerr.ErrUnknownElement,
		},
		{
			name: "empty element name",
			op: func() error {
				_, err := s.AddElement(ctx, "", nil, nil, nil)
				return err
			},
			want: xmerr.ErrEmptyName,
		},
		{
			name: "empty attribute name",
			op:   func() error { return s.UpdateElementAttributes(ctx, "e", []string{"ok", ""}) },
			want: xmerr.ErrEmptyName,
		},
		{
			name: "values of unknown attribute",
			op: func() error {
				_, err := s.ValuesOf(ctx, "e", "attr")
				return err
			},
			want: xmerr.ErrUnknownAttribute,
		},
		{
			name: "attributes of unknown element",
			op: func() error {
				_, err := s.AttributesOf(ctx, "nope")
				return err
			},
			want: xmerr.ErrUnknownElement,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.op()
			assert.True(t, errors.Is(err, tc.want), "got %v, want %v", err, tc.want)
		})
	}

	// A rejected batch of attributes leaves no partial result.
	attrs, err := s.AttributesOf(ctx, "e")
	assert.NoError(t, err)
	assert.Equal(t, []string{"known"}, attrs)
}

func TestNoActiveConnection(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	a := assert.New(t)
	a.False(s.Active())

	for name, op := range map[string]func() error{
		"AddElement":              func() error { _, err := s.AddElement(ctx, "e", nil, nil, nil); return err },
		"UpdateElementComments":   func() error { return s.UpdateElementComments(ctx, "e", nil) },
		"UpdateElementChildren":   func() error { return s.UpdateElementChildren(ctx, "e", nil) },
		"UpdateElementAttributes": func() error { return s.UpdateElementAttributes(ctx, "e", nil) },
		"UpdateAttributeValues":   func() error { return s.UpdateAttributeValues(ctx, "e", "a", nil) },
		"RemoveElement":           func() error { return s.RemoveElement(ctx, "e") },
		"RemoveComment":           func() error { return s.RemoveComment(ctx, "e", "c") },
		"RemoveChild":             func() error { return s.RemoveChild(ctx, "e", "c") },
		"RemoveAttribute":         func() error { return s.RemoveAttribute(ctx, "e", "a") },
		"RemoveValue":             func() error { return s.RemoveValue(ctx, "e", "a", "v") },
		"Elements":                func() error { _, err := s.Elements(ctx); return err },
		"AttributesOf":            func() error { _, err := s.AttributesOf(ctx, "e"); return err },
		"ValuesOf":                func() error { _, err := s.ValuesOf(ctx, "e", "a"); return err },
		"ChildrenOf":              func() error { _, err := s.ChildrenOf(ctx, "e"); return err },
		"CommentsOf":              func() error { _, err := s.CommentsOf(ctx, "e"); return err },
		"KnownRoots":              func() error { _, err := s.KnownRoots(ctx); return err },
		"IsKnownRoot":             func() error { _, err := s.IsKnownRoot(ctx, "e"); return err },
		"MarkRoot":                func() error { return s.MarkRoot(ctx, "e") },
		"IsProfileEmpty":          func() error { _, err := s.IsProfileEmpty(ctx); return err },
		"Element":                 func() error { _, err := s.Element(ctx, "e"); return err },
		"Snapshot":                func() error { _, err := s.Snapshot(ctx); return err },
		"Apply": func() error {
			_, err := s.Apply(ctx, func(*Tx) error { return nil })
			return err
		},
	} {
		t.Run(name, func(t *testing.T) {
			assert.True(t, errors.Is(op(), xmerr.ErrNoActiveConnection))
		})
	}
}

func TestRemove(t *testing.T) {
	ctx := context.Background()
	a := assert.New(t)
	s := newTestStore(t)

	_, err := s.Apply(ctx, func(tx *Tx) error {
		if _, err := tx.AddElement("doc", []string{"top"}, []string{"sec", "para"}, nil); err != nil {
			return err
		}
		if _, err := tx.AddElement("sec", []string{"note", "note"}, []string{"para"}, []string{"id", "role"}); err != nil {
			return err
		}
		if err := tx.UpdateAttributeValues("sec", "id", []string{"s1", "s2"}); err != nil {
			return err
		}
		if err := tx.UpdateAttributeValues("sec", "role", []string{"intro"}); err != nil {
			return err
		}
		if err := tx.MarkRoot("doc"); err != nil {
			return err
		}
		return tx.MarkRoot("sec")
	})
	require.NoError(t, err)

	a.NoError(s.RemoveValue(ctx, "sec", "id", "s1"))
	values, err := s.ValuesOf(ctx, "sec", "id")
	a.NoError(err)
	a.Equal([]string{"s2"}, values)

	a.NoError(s.RemoveAttribute(ctx, "sec", "id"))
	attrs, err := s.AttributesOf(ctx, "sec")
	a.NoError(err)
	a.Equal([]string{"role"}, attrs)
	_, err = s.ValuesOf(ctx, "sec", "id")
	a.True(errors.Is(err, xmerr.ErrUnknownAttribute))
	// Re-adding the attribute does not resurrect its values.
	a.NoError(s.UpdateElementAttributes(ctx, "sec", []string{"id"}))
	values, err = s.ValuesOf(ctx, "sec", "id")
	a.NoError(err)
	a.Empty(values)

	a.NoError(s.RemoveComment(ctx, "sec", "note"))
	comments, err := s.CommentsOf(ctx, "sec")
	a.NoError(err)
	a.Empty(comments)

	a.NoError(s.RemoveChild(ctx, "doc", "para"))
	children, err := s.ChildrenOf(ctx, "doc")
	a.NoError(err)
	a.Equal([]string{"sec"}, children)

	a.NoError(s.RemoveElement(ctx, "sec"))
	snap, err := s.Snapshot(ctx)
	a.NoError(err)
	want := Snapshot{
		Elements: []Element{{
			Name:       "doc",
			Comments:   []string{"top"},
			Children:   []string{},
			Attributes: []string{},
			Values:     map[string][]string{},
		}},
		Roots: []string{"doc"},
	}
	if diff := cmp.Diff(want, snap); diff != "" {
		t.Errorf("snapshot after RemoveElement (-want +got):\n%s", diff)
	}
	a.True(errors.Is(s.RemoveElement(ctx, "sec"), xmerr.ErrUnknownElement))
}

func TestCaseSensitiveOrdering(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	for _, n := range []string{"b", "B", "a", "A", "_x"} {
		_, err := s.AddElement(ctx, n, nil, nil, nil)
		require.NoError(t, err)
	}
	names, err := s.Elements(ctx)
	assert.NoError(t, err)
	assert.Equal(t, []string{"A", "B", "_x", "a", "b"}, names)
}

func TestApplyAtomic(t *testing.T) {
	ctx := context.Background()
	a := assert.New(t)
	c := openTestConn(t)
	s := NewStore()
	s.Attach(c)

	_, err := s.AddElement(ctx, "a", nil, []string{"b"}, []string{"x"})
	require.NoError(t, err)
	before, err := s.Snapshot(ctx)
	require.NoError(t, err)

	_, err = c.DB().Exec(`CREATE TRIGGER inject_failure BEFORE INSERT ON attribute_values
		WHEN NEW.value = 'boom'
		BEGIN SELECT RAISE(ABORT, 'injected failure'); END`)
	require.NoError(t, err)

	sum, err := s.Apply(ctx, func(tx *Tx) error {
		if _, err := tx.AddElement("b", []string{"note"}, nil, []string{"y"}); err != nil {
			return err
		}
		if err := tx.UpdateAttributeValues("a", "x", []string{"1", "2"}); err != nil {
			return err
		}
		return tx.UpdateAttributeValues("b", "y", []string{"ok", "boom"})
	})
	a.True(errors.Is(err, xmerr.ErrStorageFailure), "got %v", err)
	a.True(sum.IsZero())

	after, err := s.Snapshot(ctx)
	require.NoError(t, err)
	if diff := cmp.Diff(before, after); diff != "" {
		t.Errorf("failed batch left partial writes (-before +after):\n%s", diff)
	}

	// The store stays usable.
	_, err = s.AddElement(ctx, "c", nil, nil, nil)
	a.NoError(err)
}

func TestApplyFunctionError(t *testing.T) {
	ctx := context.Background()
	a := assert.New(t)
	s := newTestStore(t)

	plain := errors.New("abandoned")
	_, err := s.Apply(ctx, func(tx *Tx) error {
		if _, err := tx.AddElement("a", nil, nil, nil); err != nil {
			return err
		}
		return plain
	})
	a.True(errors.Is(err, xmerr.ErrStorageFailure))
	a.True(errors.Is(err, plain))

	empty, err := s.IsProfileEmpty(ctx)
	a.NoError(err)
	a.True(empty)
}

func TestApplySummaryAndEvents(t *testing.T) {
	ctx := context.Background()
	a := assert.New(t)
	bus := message.NewBus()
	s := newTestStore(t, WithBus(bus))

	var got []Summary
	bus.Subscribe(func(e message.Event) {
		a.Equal(message.ProfileMutated, e.Kind)
		got = append(got, e.Data.(Summary))
		// Subscribers may read the store.
		_, err := s.Elements(ctx)
		a.NoError(err)
	})

	sum, err := s.Apply(ctx, func(tx *Tx) error {
		if _, err := tx.AddElement("a", []string{"c"}, []string{"b"}, []string{"x"}); err != nil {
			return err
		}
		if _, err := tx.AddElement("b", nil, nil, nil); err != nil {
			return err
		}
		if err := tx.UpdateAttributeValues("a", "x", []string{"1", "2", "1"}); err != nil {
			return err
		}
		return tx.MarkRoot("a")
	})
	a.NoError(err)
	want := Summary{Elements: 2, Comments: 1, Children: 1, Attributes: 1, Values: 2, Roots: 1}
	a.Equal(want, sum)
	a.Equal("elements:2 comments:1 children:1 attributes:1 values:2 roots:1", sum.String())

	// Nothing new: no event.
	_, err = s.AddElement(ctx, "a", nil, nil, nil)
	a.NoError(err)
	a.NoError(s.UpdateAttributeValues(ctx, "a", "x", []string{"2"}))
	a.Equal([]Summary{want}, got)
	a.Equal("nothing learned", Summary{}.String())
}

func TestElementAndRoots(t *testing.T) {
	ctx := context.Background()
	a := assert.New(t)
	s := newTestStore(t)

	_, err := s.AddElement(ctx, "chapter", []string{"one"}, []string{"title", "para"}, []string{"id", "lang"})
	require.NoError(t, err)
	require.NoError(t, s.UpdateAttributeValues(ctx, "chapter", "lang", []string{"en", "de"}))
	require.NoError(t, s.MarkRoot(ctx, "chapter"))

	el, err := s.Element(ctx, "chapter")
	a.NoError(err)
	a.Equal(Element{
		Name:       "chapter",
		Comments:   []string{"one"},
		Children:   []string{"para", "title"},
		Attributes: []string{"id", "lang"},
		Values:     map[string][]string{"lang": {"de", "en"}},
	}, el)

	ok, err := s.IsKnownRoot(ctx, "chapter")
	a.NoError(err)
	a.True(ok)
	ok, err = s.IsKnownRoot(ctx, "para")
	a.NoError(err)
	a.False(ok)
	roots, err := s.KnownRoots(ctx)
	a.NoError(err)
	a.Equal([]string{"chapter"}, roots)
}

func TestAttachDetach(t *testing.T) {
	ctx := context.Background()
	a := assert.New(t)
	s := NewStore()
	c1, c2 := openTestConn(t), openTestConn(t)

	a.Nil(s.Attach(c1))
	a.Equal(c1.Location, s.Location())
	_, err := s.AddElement(ctx, "only-in-one", nil, nil, nil)
	a.NoError(err)

	a.Equal(c1, s.Attach(c2))
	names, err := s.Elements(ctx)
	a.NoError(err)
	a.Empty(names)

	a.Equal(c2, s.Detach())
	a.False(s.Active())
	a.Equal("", s.Location())
}

func TestOpenFailed(t *testing.T) {
	a := assert.New(t)

	_, err := Open("")
	a.True(errors.Is(err, xmerr.ErrOpenFailed))

	saved := openDB
	defer func() { openDB = saved }()
	cause := errors.New("no driver")
	openDB = func(string, string) (*sql.DB, error) { return nil, cause }
	_, err = Open(filepath.Join(t.TempDir(), "p.db"))
	a.True(errors.Is(err, xmerr.ErrOpenFailed))
	a.True(errors.Is(err, cause))
}

func TestReopenPersists(t *testing.T) {
	ctx := context.Background()
	a := assert.New(t)
	loc := filepath.Join(t.TempDir(), "p.db")

	c, err := Open(loc)
	require.NoError(t, err)
	s := NewStore()
	s.Attach(c)
	_, err = s.AddElement(ctx, "kept", nil, nil, []string{"a"})
	require.NoError(t, err)
	require.NoError(t, s.Detach().Close())

	c, err = Open(loc)
	require.NoError(t, err)
	defer c.Close()
	s.Attach(c)
	attrs, err := s.AttributesOf(ctx, "kept")
	a.NoError(err)
	a.Equal([]string{"a"}, attrs)
}
