package server

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stinyanont/DRAGONS/astrodata"
	"github.com/stinyanont/DRAGONS/exposures"
	"github.com/stinyanont/DRAGONS/store"
)

func newTestServer(t *testing.T, decoder TokenDecoder) (*RESTServer, *httptest.Server) {
	db, err := NewQlCache("memory")
	if err != nil {
		t.Fatalf("Got %v, expected nil", err)
	}
	s := &RESTServer{
		Exposures:      exposures.New(store.NewMemory()),
		Validator:      decoder,
		VerifyDatabase: db,
	}
	if s.Validator == nil {
		s.Validator = NewNobodyDecoder()
	}
	ts := httptest.NewServer(s.addRoutes())
	t.Cleanup(ts.Close)
	return s, ts
}

func uploadBody(t *testing.T, doc uploadDoc) io.Reader {
	data, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("Got %v, expected nil", err)
	}
	return bytes.NewReader(data)
}

func checkStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		body, _ := io.ReadAll(resp.Body)
		t.Errorf("Got status %d (%s), expected %d", resp.StatusCode, body, expected)
	}
	resp.Body.Close()
}

func flatImage(v float64) *astrodata.Image {
	img := astrodata.NewImage(2, 2)
	for i := range img.Pixels {
		img.Pixels[i] = v
	}
	return img
}

func TestExposureRoutes(t *testing.T) {
	_, ts := newTestServer(t, nil)

	resp, err := http.Get(ts.URL + "/exposure/srv1")
	if err != nil {
		t.Fatalf("Got %v, expected nil", err)
	}
	checkStatus(t, resp, 404)

	phu := astrodata.NewHeader()
	phu.Set("INSTRUME", "GMOS-N")
	doc := uploadDoc{
		PHU: phu,
		Exts: []uploadExt{
			{Name: "MDF", Table: &astrodata.Table{Names: []string{"slit"}, Rows: [][]string{{"c"}}}},
			{Name: "SCI", Ver: 1, Image: flatImage(1)},
			{Name: "SCI", Ver: 2, Image: flatImage(2)},
		},
	}
	resp, err = http.Post(ts.URL+"/exposure/srv1", "application/json", uploadBody(t, doc))
	if err != nil {
		t.Fatalf("Got %v, expected nil", err)
	}
	checkStatus(t, resp, 201)

	// creating again conflicts
	resp, _ = http.Post(ts.URL+"/exposure/srv1", "application/json", uploadBody(t, doc))
	checkStatus(t, resp, 409)

	resp, err = http.Get(ts.URL + "/exposure/srv1")
	if err != nil {
		t.Fatalf("Got %v, expected nil", err)
	}
	var info exposures.Exposure
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		t.Fatalf("Got %v, expected nil", err)
	}
	resp.Body.Close()
	if len(info.Exts) != 3 {
		t.Fatalf("Got %d extensions, expected 3", len(info.Exts))
	}

	// the raw pixel stream of (SCI, 2)
	resp, err = http.Get(ts.URL + "/exposure/srv1/ext/SCI/2")
	if err != nil {
		t.Fatalf("Got %v, expected nil", err)
	}
	data, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != 200 || len(data) != 32 {
		t.Errorf("Got status %d with %d bytes, expected 200 with 32", resp.StatusCode, len(data))
	}

	// the MDF is addressable with a version of zero
	resp, _ = http.Get(ts.URL + "/exposure/srv1/ext/MDF/0")
	// the MDF is a table, it has no pixel stream
	checkStatus(t, resp, 404)

	// auto numbering continues the SCI sequence
	app := uploadDoc{Exts: []uploadExt{{Name: "SCI", Image: flatImage(3)}}}
	resp, err = http.Post(ts.URL+"/exposure/srv1/append?auto_number=1", "application/json", uploadBody(t, app))
	if err != nil {
		t.Fatalf("Got %v, expected nil", err)
	}
	var after exposures.Exposure
	if err := json.NewDecoder(resp.Body).Decode(&after); err != nil {
		t.Fatalf("Got %v, expected nil", err)
	}
	resp.Body.Close()
	last := after.Exts[len(after.Exts)-1]
	if last.Name != "SCI" || last.Ver != 3 {
		t.Errorf("Got (%s, %d), expected (SCI, 3)", last.Name, last.Ver)
	}

	// an occupied version without auto numbering conflicts
	app = uploadDoc{Exts: []uploadExt{{Name: "SCI", Ver: 1, Image: flatImage(9)}}}
	resp, _ = http.Post(ts.URL+"/exposure/srv1/append", "application/json", uploadBody(t, app))
	checkStatus(t, resp, 409)

	// remove the MDF at position 0
	req, _ := http.NewRequest("DELETE", ts.URL+"/exposure/srv1/ext/0", nil)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Got %v, expected nil", err)
	}
	checkStatus(t, resp, 200)

	// an immediate verification finds no problems
	resp, err = http.Post(ts.URL+"/verify/srv1", "application/json", nil)
	if err != nil {
		t.Fatalf("Got %v, expected nil", err)
	}
	var vr struct {
		Problems []string `json:"problems"`
		Bytes    int64    `json:"bytes"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&vr); err != nil {
		t.Fatalf("Got %v, expected nil", err)
	}
	resp.Body.Close()
	if len(vr.Problems) != 0 || vr.Bytes != 96 {
		t.Errorf("Got %v problems and %d bytes, expected none and 96", vr.Problems, vr.Bytes)
	}

	// delete the whole exposure
	req, _ = http.NewRequest("DELETE", ts.URL+"/exposure/srv1", nil)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Got %v, expected nil", err)
	}
	checkStatus(t, resp, 200)
	resp, _ = http.Get(ts.URL + "/exposure/srv1")
	checkStatus(t, resp, 404)
}

func TestMergeRoute(t *testing.T) {
	_, ts := newTestServer(t, nil)
	doc := uploadDoc{
		Exts: []uploadExt{
			{Name: "SCI", Ver: 1, Image: flatImage(1)},
			{Name: "SCI", Ver: 2, Image: flatImage(2)},
			{Name: "SCI", Ver: 3, Image: flatImage(3)},
		},
	}
	resp, err := http.Post(ts.URL+"/exposure/srv2", "application/json", uploadBody(t, doc))
	if err != nil {
		t.Fatalf("Got %v, expected nil", err)
	}
	checkStatus(t, resp, 201)

	// merge a var/dq pair; each name group numbers from the global max
	merge := uploadDoc{
		Exts: []uploadExt{
			{Name: "VAR", Ver: 1, Image: flatImage(10)},
			{Name: "DQ", Ver: 1, Image: flatImage(11)},
		},
	}
	resp, err = http.Post(ts.URL+"/exposure/srv2/append?auto_number=1", "application/json", uploadBody(t, merge))
	if err != nil {
		t.Fatalf("Got %v, expected nil", err)
	}
	var info exposures.Exposure
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		t.Fatalf("Got %v, expected nil", err)
	}
	resp.Body.Close()
	if len(info.Exts) != 5 {
		t.Fatalf("Got %d extensions, expected 5", len(info.Exts))
	}
	for i, expected := range []int{1, 2, 3, 4, 4} {
		if info.Exts[i].Ver != expected {
			t.Errorf("Got version %d at %d, expected %d", info.Exts[i].Ver, i, expected)
		}
	}
}

func TestAuthz(t *testing.T) {
	decoder, err := NewListDecoder(strings.NewReader(`
ops    admin  tok-admin
scope  read   tok-read
`))
	if err != nil {
		t.Fatalf("Got %v, expected nil", err)
	}
	_, ts := newTestServer(t, decoder)

	// no key at all: the welcome page is open, the API is not
	resp, _ := http.Get(ts.URL + "/")
	checkStatus(t, resp, 200)
	resp, _ = http.Get(ts.URL + "/exposure/none")
	checkStatus(t, resp, 401)

	get := func(key, path string) *http.Response {
		req, _ := http.NewRequest("GET", ts.URL+path, nil)
		if key != "" {
			req.Header.Set("X-Api-Key", key)
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("Got %v, expected nil", err)
		}
		return resp
	}
	// a read key can read but not write
	checkStatus(t, get("tok-read", "/exposure/none"), 404)
	req, _ := http.NewRequest("POST", ts.URL+"/exposure/none", strings.NewReader("{}"))
	req.Header.Set("X-Api-Key", "tok-read")
	resp, _ = http.DefaultClient.Do(req)
	checkStatus(t, resp, 401)
	// an admin key can write
	req, _ = http.NewRequest("POST", ts.URL+"/exposure/au1", strings.NewReader(`{"exts":[{"name":"SCI","ver":1,"image":{"shape":[1],"pixels":[5]}}]}`))
	req.Header.Set("X-Api-Key", "tok-admin")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Got %v, expected nil", err)
	}
	checkStatus(t, resp, 201)
}
