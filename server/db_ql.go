package server

import (
	"database/sql"
	"encoding/json"
	"log"
	"time"

	_ "github.com/cznic/ql/driver"

	"github.com/stinyanont/DRAGONS/exposures"
)

// This file implements the metadata cache and the verification
// schedule on top of the QL embedded database. Intended for
// development and small installs; use MySQL otherwise.

type qlCache struct {
	db *sql.DB
}

var _ exposures.ExposureCache = &qlCache{}
var _ VerifyDB = &qlCache{}

const qlExposureInit = `
	CREATE TABLE IF NOT EXISTS exposures (
		id string,
		created time,
		modified time,
		size int,
		value blob
	);
	CREATE INDEX IF NOT EXISTS exposureid ON exposures (id);
	CREATE INDEX IF NOT EXISTS exposuremodified ON exposures (modified);
`

const qlVerifyInit = `
	CREATE TABLE IF NOT EXISTS verify (
		id string,
		scheduled_time time,
		status string,
		notes string
	);
	CREATE INDEX IF NOT EXISTS verifyid ON verify (id);
	CREATE INDEX IF NOT EXISTS verifytime ON verify (scheduled_time);
	CREATE INDEX IF NOT EXISTS verifystatus ON verify (status);
`

// NewQlCache makes a QL database cache saved in the given file. The
// filename "memory" keeps everything in memory.
func NewQlCache(filename string) (*qlCache, error) {
	var db *sql.DB
	var err error
	if filename == "memory" {
		db, err = sql.Open("ql-mem", "mem.db")
	} else {
		db, err = sql.Open("ql", filename)
	}
	if err == nil {
		_, err = performExec(db, qlExposureInit)
	}
	if err == nil {
		_, err = performExec(db, qlVerifyInit)
	}
	if err != nil {
		log.Printf("Open QL: %s", err.Error())
		return nil, err
	}
	return &qlCache{db: db}, nil
}

func (qc *qlCache) Lookup(id string) *exposures.Exposure {
	const dbLookup = `SELECT value FROM exposures WHERE id == ?1 LIMIT 1`

	var value []byte
	err := qc.db.QueryRow(dbLookup, id).Scan(&value)
	if err != nil {
		if err != sql.ErrNoRows {
			log.Printf("Exposure Cache QL: %s", err.Error())
		}
		return nil
	}
	var e = new(exposures.Exposure)
	err = json.Unmarshal(value, e)
	if err != nil {
		return nil
	}
	return e
}

func (qc *qlCache) Set(id string, e *exposures.Exposure) {
	const dbDelete = `DELETE FROM exposures WHERE id == ?1`
	const dbUpdate = `UPDATE exposures SET created = ?2, modified = ?3, size = ?4, value = ?5 WHERE id == ?1`
	const dbInsert = `INSERT INTO exposures VALUES (?1, ?2, ?3, ?4, ?5)`
	if e == nil {
		// an eviction
		if _, err := performExec(qc.db, dbDelete, id); err != nil {
			log.Printf("Exposure Cache QL: %s", err.Error())
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
		log.Printf("Exposure Cache QL: %s", err.Error())
		return
	}
	result, err := performExec(qc.db, dbUpdate, id, e.SaveDate, e.SaveDate, size, value)
	if err != nil {
		log.Printf("Exposure Cache QL: %s", err.Error())
		return
	}
	nrows, err := result.RowsAffected()
	if err != nil {
		log.Printf("Exposure Cache QL: %s", err.Error())
		return
	}
	if nrows == 0 {
		// record didn't exist. create it
		_, err = performExec(qc.db, dbInsert, id, e.SaveDate, e.SaveDate, size, value)
		if err != nil {
			log.Printf("Exposure Cache QL: %s", err.Error())
		}
	}
}

func (qc *qlCache) NextVerify(cutoff time.Time) string {
	const query = `
		SELECT id, scheduled_time
		FROM verify
		WHERE status == "scheduled" AND scheduled_time <= ?1
		ORDER BY scheduled_time
		LIMIT 1;`

	var id string
	var when time.Time
	err := qc.db.QueryRow(query, cutoff).Scan(&id, &when)
	if err == sql.ErrNoRows {
		// no next record
		return ""
	} else if err != nil {
		log.Println("nextverify QL", err.Error())
		return ""
	}
	return id
}

func (qc *qlCache) UpdateVerify(id string, status string, notes string) error {
	const query = `
		UPDATE verify
		SET status = ?2, notes = ?3
		WHERE id() in
			(SELECT id from
				(SELECT id() as id, scheduled_time
				FROM verify
				WHERE id == ?1 and status == "scheduled"
				ORDER BY scheduled_time
				LIMIT 1))`

	result, err := performExec(qc.db, query, id, status, notes)
	if err != nil {
		return err
	}
	nrows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if nrows == 0 {
		// record didn't exist. create it
		const newquery = `INSERT INTO verify VALUES (?1,?2,?3,?4)`

		_, err = performExec(qc.db, newquery, id, time.Now(), status, notes)
	}
	return err
}

func (qc *qlCache) SetVerify(id string, when time.Time) error {
	const query = `INSERT INTO verify VALUES (?1,?2,?3,?4)`

	_, err := performExec(qc.db, query, id, when, "scheduled", "")
	return err
}

func (qc *qlCache) LookupVerify(id string) (time.Time, error) {
	const query = `
		SELECT scheduled_time
		FROM verify
		WHERE id == ?1 AND status == "scheduled"
		ORDER BY scheduled_time ASC
		LIMIT 1`

	var when time.Time
	err := qc.db.QueryRow(query, id).Scan(&when)
	if err == sql.ErrNoRows {
		err = nil
	}
	return when, err
}

func performExec(db *sql.DB, query string, args ...interface{}) (sql.Result, error) {
	tx, err := db.Begin()
	if err != nil {
		return nil, err
	}
	var result sql.Result
	result, err = tx.Exec(query, args...)
	if err != nil {
		_ = tx.Rollback()
		return nil, err
	}
	err = tx.Commit()
	return result, err
}
