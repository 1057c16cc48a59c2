package server

import (
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/julienschmidt/httprouter"

	"github.com/stinyanont/DRAGONS/util"
)

// A VerifyDB tracks the past and future checksum verifications of
// saved exposures.
type VerifyDB interface {
	// NextVerify returns the id of the exposure having the earliest
	// scheduled verification no later than cutoff. It returns the
	// empty string if there is no such exposure.
	NextVerify(cutoff time.Time) string

	// UpdateVerify resolves the earliest scheduled verification for
	// the given exposure with a status of "ok" or "error". A record is
	// created if none is scheduled.
	UpdateVerify(id string, status string, notes string) error

	// SetVerify schedules a verification of the exposure at the given
	// time.
	SetVerify(id string, when time.Time) error

	// LookupVerify returns the time of the next scheduled
	// verification, or the zero time if none is scheduled.
	LookupVerify(id string) (time.Time, error)
}

// verifyWorker walks the verification schedule until the server stops.
// Everything due is re-checksummed, one exposure at a time.
func (s *RESTServer) verifyWorker() {
	defer s.verifywg.Done()
	tick := time.NewTicker(time.Minute)
	defer tick.Stop()
	for {
		select {
		case <-s.verifystop:
			return
		case <-tick.C:
		}
		for {
			id := s.VerifyDatabase.NextVerify(time.Now())
			if id == "" {
				break
			}
			s.verifyExposure(id)
			select {
			case <-s.verifystop:
				return
			default:
			}
		}
	}
}

// verifyExposure re-checksums one exposure, records the outcome, and
// schedules the next check.
func (s *RESTServer) verifyExposure(id string) {
	_, problems, err := s.Exposures.Validate(id)
	status := "ok"
	var notes string
	if err != nil {
		status = "error"
		notes = err.Error()
	} else if len(problems) > 0 {
		status = "error"
		notes = strings.Join(problems, "; ")
	}
	if err := s.VerifyDatabase.UpdateVerify(id, status, notes); err != nil {
		log.Println("verify", id, err)
	}
	_ = s.VerifyDatabase.SetVerify(id, time.Now().Add(s.VerifyInterval))
}

// scheduleVerify makes sure a newly saved exposure has a verification
// scheduled.
func (s *RESTServer) scheduleVerify(id string) {
	if s.VerifyDatabase == nil {
		return
	}
	when, err := s.VerifyDatabase.LookupVerify(id)
	if err != nil || !when.IsZero() {
		return
	}
	if s.VerifyInterval == 0 {
		s.VerifyInterval = 90 * 24 * time.Hour
	}
	_ = s.VerifyDatabase.SetVerify(id, time.Now().Add(s.VerifyInterval))
}

// gate returns the concurrent-read limiter, making one if Run has not.
func (s *RESTServer) gate() *util.Gate {
	if s.readgate == nil {
		s.readgate = util.NewGate(MaxConcurrentReads)
	}
	return s.readgate
}

// GetVerifyHandler handles GET requests to "/verify", returning the id
// of the next exposure due for verification.
func (s *RESTServer) GetVerifyHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	if s.VerifyDatabase == nil {
		w.WriteHeader(404)
		fmt.Fprintln(w, "no verification database")
		return
	}
	writeJSON(w, map[string]string{"next": s.VerifyDatabase.NextVerify(time.Now())})
}

// GetVerifyIdHandler handles GET requests to "/verify/:id".
func (s *RESTServer) GetVerifyIdHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	if s.VerifyDatabase == nil {
		w.WriteHeader(404)
		fmt.Fprintln(w, "no verification database")
		return
	}
	id := ps.ByName("id")
	when, err := s.VerifyDatabase.LookupVerify(id)
	if err != nil {
		w.WriteHeader(500)
		fmt.Fprintln(w, err.Error())
		return
	}
	writeJSON(w, map[string]interface{}{"id": id, "scheduled": when})
}

// PostVerifyHandler handles POST requests to "/verify/:id", running an
// immediate verification and returning the problems found.
func (s *RESTServer) PostVerifyHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id := ps.ByName("id")
	n, problems, err := s.Exposures.Validate(id)
	if err != nil {
		w.WriteHeader(404)
		fmt.Fprintln(w, err.Error())
		return
	}
	if s.VerifyDatabase != nil {
		status := "ok"
		if len(problems) > 0 {
			status = "error"
		}
		_ = s.VerifyDatabase.UpdateVerify(id, status, strings.Join(problems, "; "))
	}
	writeJSON(w, map[string]interface{}{
		"id":       id,
		"bytes":    n,
		"problems": problems,
	})
}
