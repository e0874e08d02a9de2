package schema

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"

	"github.com/golang/glog"
	"github.com/pkg/errors"

	"github.com/williamhallatt/xmlmill/xmerr"

	// Registers the "sqlite" driver.
	_ "modernc.org/sqlite"
)

const ddl = `
CREATE TABLE IF NOT EXISTS elements (
	name TEXT NOT NULL PRIMARY KEY
);
CREATE TABLE IF NOT EXISTS element_comments (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	element TEXT NOT NULL REFERENCES elements(name) ON DELETE CASCADE,
	comment TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS element_children (
	element TEXT NOT NULL REFERENCES elements(name) ON DELETE CASCADE,
	child TEXT NOT NULL,
	PRIMARY KEY (element, child)
);
CREATE TABLE IF NOT EXISTS element_attributes (
	element TEXT NOT NULL REFERENCES elements(name) ON DELETE CASCADE,
	attribute TEXT NOT NULL,
	PRIMARY KEY (element, attribute)
);
CREATE TABLE IF NOT EXISTS attribute_values (
	element TEXT NOT NULL,
	attribute TEXT NOT NULL,
	value TEXT NOT NULL,
	PRIMARY KEY (element, attribute, value),
	FOREIGN KEY (element, attribute)
		REFERENCES element_attributes(element, attribute) ON DELETE CASCADE
);
CREATE TABLE IF NOT EXISTS root_elements (
	name TEXT NOT NULL PRIMARY KEY REFERENCES elements(name) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS element_comments_element ON element_comments(element);
`

// openDB is replaced in tests.
var openDB = sql.Open

// Conn is an open profile storage location.
type Conn struct {
	// Location is the path of the SQLite file.
	Location string

	db   *sql.DB
	lock *fileLock
}

// Open opens the profile at location, creating the file, any missing parent
// directories and the profile tables if absent. The process holds an
// exclusive lock on "<location>.lock" until Close.
func Open(location string) (*Conn, error) {
	if location == "" {
		return nil, xmerr.OpenFailed(location, errors.New("empty location"))
	}
	if dir := filepath.Dir(location); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, xmerr.OpenFailed(location, err)
		}
	}
	lock, err := acquireLock(location + ".lock")
	if err != nil {
		return nil, xmerr.OpenFailed(location, err)
	}

	db, err := openDB("sqlite", location+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		lock.release()
		return nil, xmerr.OpenFailed(location, err)
	}
	// One connection keeps the pragmas and the transaction view consistent.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(context.Background(), ddl); err != nil {
		db.Close()
		lock.release()
		return nil, xmerr.OpenFailed(location, errors.Wrap(err, "create tables"))
	}
	glog.V(1).Infof("opened profile %s", location)
	return &Conn{Location: location, db: db, lock: lock}, nil
}

// DB returns the underlying database handle.
func (c *Conn) DB() *sql.DB { return c.db }

// Close closes the database and releases the location lock.
func (c *Conn) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	err := c.db.Close()
	if lerr := c.lock.release(); err == nil {
		err = lerr
	}
	c.db = nil
	glog.V(1).Infof("closed profile %s", c.Location)
	if err != nil {
		return xmerr.StorageFailure(err)
	}
	return nil
}
