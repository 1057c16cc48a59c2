package server

import (
	"encoding/json"
	"expvar"
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof" // for pprof server
	"path/filepath"
	"sync"
	"time"

	"github.com/facebookgo/httpdown"
	"github.com/julienschmidt/httprouter"

	"github.com/stinyanont/DRAGONS/exposures"
	"github.com/stinyanont/DRAGONS/util"
)

// Version of the server. Reported on the welcome page.
const Version = "1.0.0"

// RESTServer holds the configuration for an exposure REST API server.
//
// Set the public fields and then call Run. Run listens on the given
// port and handles requests until Stop is called. Do not change any
// fields after calling Run.
//
// Run also starts a goroutine walking the verification schedule and
// re-checksumming saved exposures.
type RESTServer struct {
	// Port number to listen on. defaults to 14000
	PortNumber string
	PProfPort  string

	// Exposures is the base exposure store. Run panics if it is nil.
	Exposures *exposures.Store

	// CacheDir is a directory for the embedded database. If empty the
	// database is kept in memory.
	CacheDir string

	// Pass in a dial command to use a MySQL server as the database.
	// Otherwise the embedded QL database is used, placed inside
	// CacheDir. e.g. "user:password@tcp(localhost:5555)/dbname", or
	// "user@unix(/path/to/socket)/dbname" for a domain socket.
	MySQL string

	// Validator decodes any user tokens presented to the API. If nil
	// no authentication is done and every caller is an admin.
	Validator TokenDecoder

	// VerifyDatabase keeps the records of past and future checksum
	// verifications. If nil, the main database is used.
	VerifyDatabase VerifyDB
	DisableVerify  bool

	// VerifyInterval is how long a verified exposure waits until its
	// next check. Defaults to 90 days.
	VerifyInterval time.Duration

	server     httpdown.Server // used to close our listening socket
	readgate   *util.Gate      // limits concurrent payload reads
	verifystop chan struct{}
	verifywg   sync.WaitGroup
}

// the number of payload streams we read from the store at a given time.
// More requests than this will wait.
const MaxConcurrentReads = 8

// Run initializes the databases and background workers and then blocks
// listening for and handling http requests.
func (s *RESTServer) Run() error {
	log.Println("==========")
	log.Printf("Starting Exposure Server version %s", Version)
	log.Printf("CacheDir = %s", s.CacheDir)

	if s.Exposures == nil {
		panic("No base storage given. Exposures is nil.")
	}
	if s.PortNumber == "" {
		s.PortNumber = "14000"
	}
	if s.Validator == nil {
		log.Println("No Validator given")
		s.Validator = NewNobodyDecoder()
	}
	if s.VerifyInterval == 0 {
		s.VerifyInterval = 90 * 24 * time.Hour
	}

	// init database
	var db interface {
		VerifyDB
		exposures.ExposureCache
	}
	var err error
	if s.MySQL != "" {
		log.Printf("Using MySQL")
		db, err = NewMysqlCache(s.MySQL)
	} else {
		path := "memory"
		if s.CacheDir != "" {
			path = filepath.Join(s.CacheDir, "exposures.ql")
		}
		log.Printf("Using internal database at %s", path)
		db, err = NewQlCache(path)
	}
	if db == nil || err != nil {
		panic("problem setting up database")
	}
	s.Exposures.SetCache(db)

	if s.VerifyDatabase == nil {
		s.VerifyDatabase = db
	}
	s.readgate = util.NewGate(MaxConcurrentReads)
	s.verifystop = make(chan struct{})
	if !s.DisableVerify {
		log.Println("Starting verification worker")
		s.verifywg.Add(1)
		go s.verifyWorker()
	}

	// for pprof
	if s.PProfPort != "" {
		log.Println("Starting PProf on port", s.PProfPort)
		go func() {
			log.Println(http.ListenAndServe(":"+s.PProfPort, nil))
		}()
	}
	log.Println("Listening on", s.PortNumber)

	h := httpdown.HTTP{}
	s.server, err = h.ListenAndServe(&http.Server{
		Addr:    ":" + s.PortNumber,
		Handler: s.addRoutes(),
	})
	if err != nil {
		log.Println(err)
		return err
	}
	return s.server.Wait()
}

// Stop stops the server and returns when the background goroutines have
// exited and the socket is closed.
func (s *RESTServer) Stop() error {
	close(s.verifystop)
	s.verifywg.Wait()
	s.readgate.Stop()
	return s.server.Stop()
}

func (s *RESTServer) addRoutes() http.Handler {
	var routes = []struct {
		method  string
		route   string
		role    Role // RoleUnknown means no API key is needed to access
		handler httprouter.Handle
	}{
		{"GET", "/exposure/:id", RoleMDOnly, s.ExposureHandler},
		{"HEAD", "/exposure/:id", RoleMDOnly, s.ExposureHandler},
		{"GET", "/exposure/:id/ext/:name/:ver", RoleRead, s.ExtHandler},
		{"POST", "/exposure/:id", RoleWrite, s.CreateExposureHandler},
		{"POST", "/exposure/:id/append", RoleWrite, s.AppendHandler},
		{"DELETE", "/exposure/:id/ext/:pos", RoleWrite, s.DeleteExtHandler},
		{"DELETE", "/exposure/:id", RoleAdmin, s.DeleteExposureHandler},

		// verification records
		{"GET", "/verify", RoleRead, s.GetVerifyHandler},
		{"GET", "/verify/:id", RoleRead, s.GetVerifyIdHandler},
		{"POST", "/verify/:id", RoleWrite, s.PostVerifyHandler},

		// the read only raw stream stuff
		{"GET", "/stream/list/", RoleRead, s.StreamListHandler},
		{"GET", "/stream/list/:prefix", RoleRead, s.StreamListPrefixHandler},
		{"GET", "/stream/open/:key", RoleRead, s.StreamOpenHandler},

		// other
		{"GET", "/", RoleUnknown, WelcomeHandler},
		{"GET", "/debug/vars", RoleUnknown, VarHandler}, // standard route for expvars data
	}

	r := httprouter.New()
	for _, route := range routes {
		r.Handle(route.method,
			route.route,
			logWrapper(s.authzWrapper(route.handler, route.role)))
	}
	return r
}

// General route handlers and convenience functions

// WelcomeHandler says hello.
func WelcomeHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	fmt.Fprintf(w, "Exposure Server (%s)\n", Version)
}

// VarHandler adapts the expvar default handler to the httprouter three
// parameter handler.
func VarHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	// this code is taken from the stdlib expvar package.
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	fmt.Fprintf(w, "{\n")
	first := true
	expvar.Do(func(kv expvar.KeyValue) {
		if !first {
			fmt.Fprintf(w, ",\n")
		}
		first = false
		fmt.Fprintf(w, "%q: %s", kv.Key, kv.Value)
	})
	fmt.Fprintf(w, "\n}\n")
}

// NotImplementedHandler returns a 501 not implemented error.
func NotImplementedHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	w.WriteHeader(http.StatusNotImplemented)
	fmt.Fprintf(w, "Not Implemented\n")
}

func writeJSON(w http.ResponseWriter, val interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	json.NewEncoder(w).Encode(val)
}

// authzWrapper returns a Handler which first verifies the user token as
// having at least the given Role. The user name is added as a parameter
// "username".
func (s *RESTServer) authzWrapper(handler httprouter.Handle, leastRole Role) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		token := r.Header.Get("X-Api-Key")
		user, role, err := s.Validator.TokenDecode(token)
		if err != nil {
			w.WriteHeader(500)
			fmt.Fprintln(w, err.Error())
			return
		}
		if role < leastRole {
			w.WriteHeader(401)
			fmt.Fprintln(w, "Forbidden")
			return
		}
		// remove any previous username
		for i := range ps {
			if ps[i].Key == "username" {
				ps[i].Value = user
				goto out
			}
		}
		ps = append(ps, httprouter.Param{Key: "username", Value: user})
	out:
		handler(w, r, ps)
	}
}

// logWrapper takes a handler and returns a handler which does the same
// thing, after first logging the request URL.
func logWrapper(handler httprouter.Handle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		log.Println(r.Method, r.URL)
		handler(w, r, ps)
	}
}
