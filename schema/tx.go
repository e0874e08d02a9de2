package schema

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"

	"github.com/williamhallatt/xmlmill/xmerr"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Tx is a view of the profile bound to one storage transaction. Mutations
// made through a Tx are committed or discarded together by Store.Apply.
//
// A Tx must not be retained after the function passed to Apply returns.
type Tx struct {
	ctx context.Context
	q   querier
	sum Summary
}

// Summary returns what the transaction has learned so far.
func (t *Tx) Summary() Summary { return t.sum }

func storageErr(err error, op string) error {
	return xmerr.StorageFailure(errors.Wrap(err, op))
}

func (t *Tx) exec(op, query string, args ...interface{}) (int, error) {
	res, err := t.q.ExecContext(t.ctx, query, args...)
	if err != nil {
		return 0, storageErr(err, op)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, storageErr(err, op)
	}
	return int(n), nil
}

func (t *Tx) strings(op, query string, args ...interface{}) ([]string, error) {
	rows, err := t.q.QueryContext(t.ctx, query, args...)
	if err != nil {
		return nil, storageErr(err, op)
	}
	defer rows.Close()
	out := []string{}
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, storageErr(err, op)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr(err, op)
	}
	return out, nil
}

func (t *Tx) exists(op, query string, args ...interface{}) (bool, error) {
	var one int
	switch err := t.q.QueryRowContext(t.ctx, query, args...).Scan(&one); {
	case err == sql.ErrNoRows:
		return false, nil
	case err != nil:
		return false, storageErr(err, op)
	}
	return true, nil
}

func checkNames(names ...string) error {
	for _, n := range names {
		if n == "" {
			return xmerr.EmptyName()
		}
	}
	return nil
}

// HasElement reports whether name is recorded.
func (t *Tx) HasElement(name string) (bool, error) {
	return t.exists("lookup element", `SELECT 1 FROM elements WHERE name = ?`, name)
}

// HasAttribute reports whether attribute is associated with element name.
func (t *Tx) HasAttribute(name, attribute string) (bool, error) {
	return t.exists("lookup attribute",
		`SELECT 1 FROM element_attributes WHERE element = ? AND attribute = ?`, name, attribute)
}

func (t *Tx) mustElement(name string) error {
	if err := checkNames(name); err != nil {
		return err
	}
	ok, err := t.HasElement(name)
	if err != nil {
		return err
	}
	if !ok {
		return xmerr.UnknownElement(name)
	}
	return nil
}

func (t *Tx) mustAttribute(name, attribute string) error {
	if err := t.mustElement(name); err != nil {
		return err
	}
	if err := checkNames(attribute); err != nil {
		return err
	}
	ok, err := t.HasAttribute(name, attribute)
	if err != nil {
		return err
	}
	if !ok {
		return xmerr.UnknownAttribute(attribute, name)
	}
	return nil
}

// AddElement records name with the given comments, children and attributes.
// If name is already recorded nothing changes and created is false; the
// existing record is never overwritten.
func (t *Tx) AddElement(name string, comments, children, attributes []string) (created bool, err error) {
	if err := checkNames(name); err != nil {
		return false, err
	}
	if err := checkNames(children...); err != nil {
		return false, err
	}
	if err := checkNames(attributes...); err != nil {
		return false, err
	}
	n, err := t.exec("insert element", `INSERT OR IGNORE INTO elements(name) VALUES (?)`, name)
	if err != nil || n == 0 {
		return false, err
	}
	t.sum.Elements++
	if err := t.appendComments(name, comments); err != nil {
		return false, err
	}
	if err := t.addChildren(name, children); err != nil {
		return false, err
	}
	if err := t.addAttributes(name, attributes); err != nil {
		return false, err
	}
	return true, nil
}

// UpdateElementComments appends comments to the element's comment list.
// Empty comments are skipped.
func (t *Tx) UpdateElementComments(name string, comments []string) error {
	if err := t.mustElement(name); err != nil {
		return err
	}
	return t.appendComments(name, comments)
}

func (t *Tx) appendComments(name string, comments []string) error {
	for _, c := range comments {
		if c == "" {
			continue
		}
		if _, err := t.exec("insert comment",
			`INSERT INTO element_comments(element, comment) VALUES (?, ?)`, name, c); err != nil {
			return err
		}
		t.sum.Comments++
	}
	return nil
}

// UpdateElementChildren adds children to the element's child set.
func (t *Tx) UpdateElementChildren(name string, children []string) error {
	if err := t.mustElement(name); err != nil {
		return err
	}
	if err := checkNames(children...); err != nil {
		return err
	}
	return t.addChildren(name, children)
}

func (t *Tx) addChildren(name string, children []string) error {
	for _, c := range children {
		n, err := t.exec("insert child",
			`INSERT OR IGNORE INTO element_children(element, child) VALUES (?, ?)`, name, c)
		if err != nil {
			return err
		}
		t.sum.Children += n
	}
	return nil
}

// UpdateElementAttributes adds attributes to the element's attribute set.
func (t *Tx) UpdateElementAttributes(name string, attributes []string) error {
	if err := t.mustElement(name); err != nil {
		return err
	}
	if err := checkNames(attributes...); err != nil {
		return err
	}
	return t.addAttributes(name, attributes)
}

func (t *Tx) addAttributes(name string, attributes []string) error {
	for _, a := range attributes {
		n, err := t.exec("insert attribute",
			`INSERT OR IGNORE INTO element_attributes(element, attribute) VALUES (?, ?)`, name, a)
		if err != nil {
			return err
		}
		t.sum.Attributes += n
	}
	return nil
}

// UpdateAttributeValues adds values to the (name, attribute) value set.
// The attribute must already be associated with the element.
func (t *Tx) UpdateAttributeValues(name, attribute string, values []string) error {
	if err := t.mustAttribute(name, attribute); err != nil {
		return err
	}
	for _, v := range values {
		n, err := t.exec("insert value",
			`INSERT OR IGNORE INTO attribute_values(element, attribute, value) VALUES (?, ?, ?)`,
			name, attribute, v)
		if err != nil {
			return err
		}
		t.sum.Values += n
	}
	return nil
}

// MarkRoot adds name to the set of known root elements.
func (t *Tx) MarkRoot(name string) error {
	if err := t.mustElement(name); err != nil {
		return err
	}
	n, err := t.exec("insert root", `INSERT OR IGNORE INTO root_elements(name) VALUES (?)`, name)
	t.sum.Roots += n
	return err
}

// RemoveElement deletes the element record together with its comments,
// children, attributes, values and root mark, and drops it from every
// other element's child set.
func (t *Tx) RemoveElement(name string) error {
	if err := t.mustElement(name); err != nil {
		return err
	}
	if _, err := t.exec("delete child references",
		`DELETE FROM element_children WHERE child = ?`, name); err != nil {
		return err
	}
	_, err := t.exec("delete element", `DELETE FROM elements WHERE name = ?`, name)
	return err
}

// RemoveComment deletes every occurrence of comment from the element.
func (t *Tx) RemoveComment(name, comment string) error {
	if err := t.mustElement(name); err != nil {
		return err
	}
	_, err := t.exec("delete comment",
		`DELETE FROM element_comments WHERE element = ? AND comment = ?`, name, comment)
	return err
}

// RemoveChild deletes child from the element's child set.
func (t *Tx) RemoveChild(name, child string) error {
	if err := t.mustElement(name); err != nil {
		return err
	}
	_, err := t.exec("delete child",
		`DELETE FROM element_children WHERE element = ? AND child = ?`, name, child)
	return err
}

// RemoveAttribute deletes the attribute and all of its recorded values.
func (t *Tx) RemoveAttribute(name, attribute string) error {
	if err := t.mustAttribute(name, attribute); err != nil {
		return err
	}
	_, err := t.exec("delete attribute",
		`DELETE FROM element_attributes WHERE element = ? AND attribute = ?`, name, attribute)
	return err
}

// RemoveValue deletes one recorded value.
func (t *Tx) RemoveValue(name, attribute, value string) error {
	if err := t.mustAttribute(name, attribute); err != nil {
		return err
	}
	_, err := t.exec("delete value",
		`DELETE FROM attribute_values WHERE element = ? AND attribute = ? AND value = ?`,
		name, attribute, value)
	return err
}

// Elements returns all element names in ascending byte order.
func (t *Tx) Elements() ([]string, error) {
	return t.strings("list elements", `SELECT name FROM elements ORDER BY name`)
}

// AttributesOf returns the element's attributes in ascending order.
func (t *Tx) AttributesOf(name string) ([]string, error) {
	if err := t.mustElement(name); err != nil {
		return nil, err
	}
	return t.strings("list attributes",
		`SELECT attribute FROM element_attributes WHERE element = ? ORDER BY attribute`, name)
}

// ValuesOf returns the values recorded for (name, attribute) in ascending order.
func (t *Tx) ValuesOf(name, attribute string) ([]string, error) {
	if err := t.mustAttribute(name, attribute); err != nil {
		return nil, err
	}
	return t.strings("list values",
		`SELECT value FROM attribute_values WHERE element = ? AND attribute = ? ORDER BY value`,
		name, attribute)
}

// ChildrenOf returns the element's known children in ascending order.
func (t *Tx) ChildrenOf(name string) ([]string, error) {
	if err := t.mustElement(name); err != nil {
		return nil, err
	}
	return t.strings("list children",
		`SELECT child FROM element_children WHERE element = ? ORDER BY child`, name)
}

// CommentsOf returns the element's comments in insertion order.
func (t *Tx) CommentsOf(name string) ([]string, error) {
	if err := t.mustElement(name); err != nil {
		return nil, err
	}
	return t.strings("list comments",
		`SELECT comment FROM element_comments WHERE element = ? ORDER BY id`, name)
}

// KnownRoots returns the root element names in ascending order.
func (t *Tx) KnownRoots() ([]string, error) {
	return t.strings("list roots", `SELECT name FROM root_elements ORDER BY name`)
}

// IsKnownRoot reports whether name is in the root element set.
func (t *Tx) IsKnownRoot(name string) (bool, error) {
	return t.exists("lookup root", `SELECT 1 FROM root_elements WHERE name = ?`, name)
}

// IsProfileEmpty reports whether no element is recorded.
func (t *Tx) IsProfileEmpty() (bool, error) {
	ok, err := t.exists("count elements", `SELECT 1 FROM elements LIMIT 1`)
	return !ok, err
}

// Element returns the full record for name.
func (t *Tx) Element(name string) (Element, error) {
	el := Element{Name: name}
	var err error
	if el.Comments, err = t.CommentsOf(name); err != nil {
		return Element{}, err
	}
	if el.Children, err = t.ChildrenOf(name); err != nil {
		return Element{}, err
	}
	if el.Attributes, err = t.AttributesOf(name); err != nil {
		return Element{}, err
	}
	el.Values = map[string][]string{}
	for _, a := range el.Attributes {
		vs, err := t.ValuesOf(name, a)
		if err != nil {
			return Element{}, err
		}
		if len(vs) > 0 {
			el.Values[a] = vs
		}
	}
	return el, nil
}

// Snapshot returns every element record and the root set.
func (t *Tx) Snapshot() (Snapshot, error) {
	names, err := t.Elements()
	if err != nil {
		return Snapshot{}, err
	}
	snap := Snapshot{Elements: make([]Element, 0, len(names))}
	for _, n := range names {
		el, err := t.Element(n)
		if err != nil {
			return Snapshot{}, err
		}
		snap.Elements = append(snap.Elements, el)
	}
	if snap.Roots, err = t.KnownRoots(); err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}
