package server

import (
	"database/sql"
	"encoding/json"
	"log"
	"time"

	// no _ in import mysql since we need mysql.NullTime
	"github.com/BurntSushi/migration"
	"github.com/go-sql-driver/mysql"

	"github.com/stinyanont/DRAGONS/exposures"
)

// implements the exposures.ExposureCache interface and the VerifyDB
// interface using MySQL as the backing store.
type msqlCache struct {
	db *sql.DB
}

var _ exposures.ExposureCache = &msqlCache{}
var _ VerifyDB = &msqlCache{}

// List of migrations to perform. Add new ones to the end.
// DO NOT change the order of items already in this list.
var mysqlMigrations = []migration.Migrator{
	mysqlschema1,
}

// The migration package wants get and set hooks for the schema
// version number. schemaVersion keeps them in a plain table, creating
// it the first time a version is recorded.
type schemaVersion struct {
	get    string // one row, one column: the current version
	set    string // records a version, given as the sole parameter
	create string // creates the version table
}

func (v schemaVersion) Get(tx migration.LimitedTx) (int, error) {
	var version int
	err := tx.QueryRow(v.get).Scan(&version)
	if err != nil {
		// no version table yet
		log.Println(err)
		return 0, nil
	}
	return version, nil
}

func (v schemaVersion) Set(tx migration.LimitedTx, version int) error {
	if _, err := tx.Exec(v.set, version); err == nil {
		return nil
	}
	if _, err := tx.Exec(v.create); err != nil {
		return err
	}
	if _, err := tx.Exec(v.set, 0); err != nil {
		return err
	}
	_, err := tx.Exec(v.set, version)
	return err
}

var mysqlVersioning = schemaVersion{
	get:    `SELECT max(version) FROM migration_version`,
	set:    `INSERT INTO migration_version (version, applied) VALUES (?, now())`,
	create: `CREATE TABLE migration_version (version INTEGER, applied datetime)`,
}

// NewMysqlCache connects to a MySQL database and returns a structure
// satisfying both the ExposureCache and VerifyDB interfaces.
func NewMysqlCache(dial string) (*msqlCache, error) {
	db, err := migration.OpenWith(
		"mysql",
		dial,
		mysqlMigrations,
		mysqlVersioning.Get,
		mysqlVersioning.Set)
	if err != nil {
		log.Printf("Open Mysql: %s", err.Error())
		return nil, err
	}
	return &msqlCache{db: db}, nil
}

func (ms *msqlCache) Lookup(id string) *exposures.Exposure {
	const dbLookup = `SELECT value FROM exposures WHERE exposure = ? LIMIT 1`

	var value string
	err := ms.db.QueryRow(dbLookup, id).Scan(&value)
	if err != nil {
		if err != sql.ErrNoRows {
			// some kind of error...treat it as a miss
			log.Printf("Exposure Cache: %s", err.Error())
		}
		return nil
	}
	// unserialize the json string
	var e = new(exposures.Exposure)
	err = json.Unmarshal([]byte(value), e)
	if err != nil {
		log.Printf("Exposure Cache: error in lookup: %s", err.Error())
		return nil
	}
	return e
}

func (ms *msqlCache) Set(id string, e *exposures.Exposure) {
	if e == nil {
		// an eviction
		_, err := ms.db.Exec(`DELETE FROM exposures WHERE exposure = ?`, id)
		if err != nil {
			log.Printf("Exposure Cache: %s", err.Error())
		}
		return
	}
	var size int64
	for i := range e.Exts {
		x := &e.Exts[i]
		for _, si := range []*exposures.StreamInfo{x.Image, x.Mask, x.Variance} {
			if si != nil {
				size += si.Size
			}
		}
	}
	value, err := json.Marshal(e)
	if err != nil {
		log.Printf("Exposure Cache: %s", err.Error())
		return
	}
	stmt := `INSERT INTO exposures (exposure, created, modified, size, value) VALUES (?, ?, ?, ?, ?) ON DUPLICATE KEY UPDATE created=?, modified=?, size=?, value=?`

	_, err = ms.db.Exec(stmt, id, e.SaveDate, e.SaveDate, size, value, e.SaveDate, e.SaveDate, size, value)
	if err != nil {
		log.Printf("Exposure Cache: %s", err.Error())
		return
	}
}

func (ms *msqlCache) NextVerify(cutoff time.Time) string {
	const query = `
		SELECT exposure
		FROM verify
		WHERE status = "scheduled" AND scheduled_time <= ?
		ORDER BY scheduled_time
		LIMIT 1`

	var id string
	err := ms.db.QueryRow(query, cutoff).Scan(&id)
	if err == sql.ErrNoRows {
		// no next record
		return ""
	} else if err != nil {
		log.Println("nextverify", err.Error())
		return ""
	}
	return id
}

func (ms *msqlCache) UpdateVerify(id string, status string, notes string) error {
	const query = `
		UPDATE verify
		SET status = ?, notes = ?
		WHERE exposure = ? and status = "scheduled"
		ORDER BY scheduled_time
		LIMIT 1`
	result, err := ms.db.Exec(query, status, notes, id)
	if err != nil {
		return err
	}
	nrows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if nrows == 0 {
		// record didn't exist. create it
		const newquery = `INSERT INTO verify (exposure, scheduled_time, status, notes) VALUES (?,?,?,?)`

		_, err = ms.db.Exec(newquery, id, time.Now(), status, notes)
	}
	return err
}

func (ms *msqlCache) SetVerify(id string, when time.Time) error {
	const query = `INSERT INTO verify (exposure, scheduled_time, status, notes) VALUES (?,?,?,?)`

	_, err := ms.db.Exec(query, id, when, "scheduled", "")
	return err
}

func (ms *msqlCache) LookupVerify(id string) (time.Time, error) {
	const query = `
		SELECT scheduled_time
		FROM verify
		WHERE exposure = ? AND status = "scheduled"
		ORDER BY scheduled_time
		LIMIT 1`

	var when mysql.NullTime
	err := ms.db.QueryRow(query, id).Scan(&when)
	if err == sql.ErrNoRows {
		err = nil
	}
	if when.Valid {
		return when.Time, err
	}
	return time.Time{}, err
}

// database migrations. each one is a go function. Add them to the
// list mysqlMigrations at top of this file for them to be run.

func mysqlschema1(tx migration.LimitedTx) error {
	var s = []string{
		`CREATE TABLE IF NOT EXISTS exposures (
		id int PRIMARY KEY AUTO_INCREMENT,
		exposure varchar(255),
		created datetime,
		modified datetime,
		size BIGINT,
		value LONGTEXT,
		UNIQUE INDEX exposures_exposure (exposure))`,

		`CREATE TABLE IF NOT EXISTS verify (
		id int PRIMARY KEY AUTO_INCREMENT,
		exposure varchar(255),
		scheduled_time datetime,
		status varchar(32),
		notes text)`,
	}
	return execlist(tx, s)
}

// execlist exec's each item in the list, return if there is an error.
// Used to work around mysql driver not handling compound exec statements.
func execlist(tx migration.LimitedTx, stms []string) error {
	var err error
	for _, s := range stms {
		_, err = tx.Exec(s)
		if err != nil {
			break
		}
	}
	return err
}
