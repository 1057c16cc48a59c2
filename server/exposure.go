package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/julienschmidt/httprouter"

	"github.com/stinyanont/DRAGONS/astrodata"
	"github.com/stinyanont/DRAGONS/store"
)

// uploadExt is one extension of an uploaded document.
type uploadExt struct {
	Name   string            `json:"name"`
	Ver    int               `json:"ver,omitempty"`
	Header *astrodata.Header `json:"header,omitempty"`
	Image  *astrodata.Image  `json:"image,omitempty"`
	Table  *astrodata.Table  `json:"table,omitempty"`
}

// uploadDoc is the JSON body of a create or append request.
type uploadDoc struct {
	PHU  *astrodata.Header `json:"phu,omitempty"`
	Exts []uploadExt       `json:"exts"`
}

func (u *uploadExt) extension() *astrodata.Extension {
	hdr := u.Header
	if hdr == nil {
		hdr = astrodata.NewHeader()
	}
	e := &astrodata.Extension{Name: u.Name, Ver: u.Ver, Header: hdr}
	switch {
	case u.Image != nil:
		e.Data = u.Image
	case u.Table != nil:
		e.Data = u.Table
	}
	return e
}

// extlist lets an uploaded document act as a merge source without
// building a second container first.
type extlist []*astrodata.Extension

func (l extlist) Extensions() []*astrodata.Extension { return l }

// ExposureHandler handles GET and HEAD requests to "/exposure/:id".
func (s *RESTServer) ExposureHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id := ps.ByName("id")
	info, err := s.Exposures.Info(id)
	if err != nil {
		w.WriteHeader(404)
		fmt.Fprintln(w, err.Error())
		return
	}
	w.Header().Set("ETag", fmt.Sprintf("%d", info.MaxStream))
	writeJSON(w, info)
}

// ExtHandler handles GET requests to "/exposure/:id/ext/:name/:ver",
// streaming the raw pixel payload of one extension. A :ver of 0
// addresses an unversioned extension.
func (s *RESTServer) ExtHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id := ps.ByName("id")
	ver, err := strconv.Atoi(ps.ByName("ver"))
	if err != nil || ver < 0 {
		w.WriteHeader(400)
		fmt.Fprintln(w, "bad version")
		return
	}
	if !s.gate().Enter() {
		w.WriteHeader(503)
		fmt.Fprintln(w, "shutting down")
		return
	}
	defer s.gate().Leave()
	src, size, err := s.Exposures.OpenImage(id, ps.ByName("name"), ver)
	if err != nil {
		w.WriteHeader(404)
		fmt.Fprintln(w, err.Error())
		return
	}
	defer src.Close()
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", fmt.Sprintf("%d", size))
	io.Copy(w, src)
}

// CreateExposureHandler handles POST requests to "/exposure/:id". The
// body is a JSON document holding the primary header and the
// extensions; identities are taken from the document as-is.
func (s *RESTServer) CreateExposureHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id := ps.ByName("id")
	if _, err := s.Exposures.Info(id); err == nil {
		w.WriteHeader(409)
		fmt.Fprintln(w, "exposure already exists")
		return
	}
	var doc uploadDoc
	if err := json.NewDecoder(r.Body).Decode(&doc); err != nil {
		w.WriteHeader(400)
		fmt.Fprintln(w, err.Error())
		return
	}
	ad := astrodata.New(doc.PHU)
	for i := range doc.Exts {
		err := ad.Append(doc.Exts[i].extension(), astrodata.AppendOptions{})
		if err != nil {
			writeAppendError(w, err)
			return
		}
	}
	if err := s.Exposures.Save(id, ad); err != nil {
		w.WriteHeader(500)
		fmt.Fprintln(w, err.Error())
		return
	}
	s.scheduleVerify(id)
	w.WriteHeader(201)
	info, _ := s.Exposures.Info(id)
	writeJSON(w, info)
}

// AppendHandler handles POST requests to "/exposure/:id/append". A
// one-extension document is a single append; more than one extension is
// a bulk merge. The query parameters control numbering:
//
//	auto_number=1   let the container pick version numbers
//	name=XX         file the data under this name
//	ver=N           request this version
func (s *RESTServer) AppendHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id := ps.ByName("id")
	ad, err := s.Exposures.Load(id)
	if err != nil {
		w.WriteHeader(404)
		fmt.Fprintln(w, err.Error())
		return
	}
	var doc uploadDoc
	if err := json.NewDecoder(r.Body).Decode(&doc); err != nil {
		w.WriteHeader(400)
		fmt.Fprintln(w, err.Error())
		return
	}
	var opt astrodata.AppendOptions
	q := r.URL.Query()
	opt.AutoNumber = q.Get("auto_number") == "1"
	opt.Name = q.Get("name")
	if v := q.Get("ver"); v != "" {
		opt.Ver, err = strconv.Atoi(v)
		if err != nil || opt.Ver < 0 {
			w.WriteHeader(400)
			fmt.Fprintln(w, "bad version")
			return
		}
	}
	switch len(doc.Exts) {
	case 0:
		w.WriteHeader(400)
		fmt.Fprintln(w, "no extensions in document")
		return
	case 1:
		err = ad.Append(doc.Exts[0].extension(), opt)
	default:
		var src extlist
		for i := range doc.Exts {
			src = append(src, doc.Exts[i].extension())
		}
		err = ad.Append(src, opt)
	}
	if err != nil {
		writeAppendError(w, err)
		return
	}
	if err := s.Exposures.Save(id, ad); err != nil {
		w.WriteHeader(500)
		fmt.Fprintln(w, err.Error())
		return
	}
	info, _ := s.Exposures.Info(id)
	writeJSON(w, info)
}

// DeleteExtHandler handles DELETE requests to "/exposure/:id/ext/:pos".
func (s *RESTServer) DeleteExtHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id := ps.ByName("id")
	pos, err := strconv.Atoi(ps.ByName("pos"))
	if err != nil {
		w.WriteHeader(400)
		fmt.Fprintln(w, "bad position")
		return
	}
	ad, err := s.Exposures.Load(id)
	if err != nil {
		w.WriteHeader(404)
		fmt.Fprintln(w, err.Error())
		return
	}
	if err := ad.Delete(pos); err != nil {
		w.WriteHeader(404)
		fmt.Fprintln(w, err.Error())
		return
	}
	if err := s.Exposures.Save(id, ad); err != nil {
		w.WriteHeader(500)
		fmt.Fprintln(w, err.Error())
		return
	}
	info, _ := s.Exposures.Info(id)
	writeJSON(w, info)
}

// DeleteExposureHandler handles DELETE requests to "/exposure/:id".
func (s *RESTServer) DeleteExposureHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	err := s.Exposures.Delete(ps.ByName("id"))
	if err != nil {
		w.WriteHeader(500)
		fmt.Fprintln(w, err.Error())
	}
}

// writeAppendError maps the container's typed errors onto status codes.
func writeAppendError(w http.ResponseWriter, err error) {
	var conflict *astrodata.ConflictError
	var notfound astrodata.NotFoundError
	switch {
	case errors.As(err, &conflict):
		w.WriteHeader(409)
	case errors.As(err, &notfound):
		w.WriteHeader(404)
	default:
		w.WriteHeader(400)
	}
	fmt.Fprintln(w, err.Error())
}

// StreamListHandler handles GET requests to "/stream/list/". It lists
// the raw keys of the underlying store.
func (s *RESTServer) StreamListHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	c := s.Exposures.S.List()
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Write([]byte("["))
	// comma starts as a space
	var comma = ' '
	for key := range c {
		fmt.Fprintf(w, "%c%q", comma, key)
		comma = ','
	}
	w.Write([]byte("]"))
}

// StreamListPrefixHandler handles GET requests to "/stream/list/:prefix".
func (s *RESTServer) StreamListPrefixHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	result, err := s.Exposures.S.ListPrefix(ps.ByName("prefix"))
	if err != nil {
		fmt.Fprintln(w, err)
		return
	}
	writeJSON(w, result)
}

// StreamOpenHandler handles GET requests to "/stream/open/:key",
// returning the raw bytes of one store key.
func (s *RESTServer) StreamOpenHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	if !s.gate().Enter() {
		w.WriteHeader(503)
		fmt.Fprintln(w, "shutting down")
		return
	}
	defer s.gate().Leave()
	data, _, err := s.Exposures.S.Open(ps.ByName("key"))
	if err != nil {
		w.WriteHeader(404)
		fmt.Fprintln(w, err)
		return
	}
	io.Copy(w, store.NewReader(data))
	data.Close()
}
