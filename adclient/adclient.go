// Package adclient exposes the exposure server's REST API to Go
// callers. A Connection may be shared between goroutines.
package adclient

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/antonholmquist/jason"
)

// Exported errors
var (
	ErrNotFound       = errors.New("exposure not found on server")
	ErrNotAuthorized  = errors.New("access denied")
	ErrConflict       = errors.New("identity already in use")
	ErrUnexpectedResp = errors.New("unexpected response code")
)

// A Connection represents a connection with an exposure server.
type Connection struct {
	// The server this connection is to, e.g. "http://localhost:14000"
	HostURL string

	// Token is passed as the X-Api-Key on every request.
	Token string

	clientinit sync.Once
	client     *http.Client
}

// ExposureInfo returns the metadata document of an exposure.
func (c *Connection) ExposureInfo(id string) (*jason.Object, error) {
	return c.doJasonGet("/exposure/" + id)
}

// Download copies the raw pixel stream of the extension (name, ver) to
// the given io.Writer. Use a ver of 0 for an unversioned extension.
func (c *Connection) Download(w io.Writer, id, name string, ver int) error {
	var path = fmt.Sprintf("%s/exposure/%s/ext/%s/%d", c.HostURL, id, name, ver)

	req, _ := http.NewRequest("GET", path, nil)
	resp, err := c.do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := statusError(resp.StatusCode); err != nil {
		return err
	}
	_, err = io.Copy(w, resp.Body)
	return err
}

// Create makes a new exposure from the JSON document read from r. The
// document's extension identities are used as given.
func (c *Connection) Create(id string, r io.Reader) (*jason.Object, error) {
	req, _ := http.NewRequest("POST", c.HostURL+"/exposure/"+id, r)
	return c.doJason(req)
}

// AppendOptions control the numbering of an Append, mirroring the
// container's append options.
type AppendOptions struct {
	Name       string
	Ver        int
	AutoNumber bool
}

// Append sends the JSON document read from r to be appended to the
// exposure. One extension is a single append; several are a bulk merge.
// The updated metadata document is returned.
func (c *Connection) Append(id string, r io.Reader, opt AppendOptions) (*jason.Object, error) {
	v := url.Values{}
	if opt.AutoNumber {
		v.Set("auto_number", "1")
	}
	if opt.Name != "" {
		v.Set("name", opt.Name)
	}
	if opt.Ver != 0 {
		v.Set("ver", strconv.Itoa(opt.Ver))
	}
	path := c.HostURL + "/exposure/" + id + "/append"
	if len(v) > 0 {
		path += "?" + v.Encode()
	}
	req, _ := http.NewRequest("POST", path, r)
	return c.doJason(req)
}

// DeleteExt removes the extension at the given position.
func (c *Connection) DeleteExt(id string, pos int) error {
	return c.doDelete(fmt.Sprintf("%s/exposure/%s/ext/%d", c.HostURL, id, pos))
}

// Delete removes the whole exposure. Needs an admin token.
func (c *Connection) Delete(id string) error {
	return c.doDelete(c.HostURL + "/exposure/" + id)
}

// Verify asks the server to re-checksum the exposure now. It returns
// the problems found; an empty list means the exposure is intact.
func (c *Connection) Verify(id string) ([]string, error) {
	req, _ := http.NewRequest("POST", c.HostURL+"/verify/"+id, nil)
	v, err := c.doJason(req)
	if err != nil {
		return nil, err
	}
	problems, _ := v.GetStringArray("problems")
	return problems, nil
}

func (c *Connection) doDelete(path string) error {
	req, _ := http.NewRequest("DELETE", path, nil)
	resp, err := c.do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return statusError(resp.StatusCode)
}

// do performs an http request using our client with a timeout. The
// timeout is arbitrary, and is just there so we don't hang indefinitely
// should the server never close the connection.
func (c *Connection) do(req *http.Request) (*http.Response, error) {
	if c.Token != "" {
		req.Header.Add("X-Api-Key", c.Token)
	}
	c.clientinit.Do(func() {
		c.client = &http.Client{
			Timeout: 10 * time.Minute, // arbitrary
		}
	})
	return c.client.Do(req)
}

func (c *Connection) doJasonGet(path string) (*jason.Object, error) {
	req, err := http.NewRequest("GET", c.HostURL+path, nil)
	if err != nil {
		return nil, err
	}
	return c.doJason(req)
}

func (c *Connection) doJason(req *http.Request) (*jason.Object, error) {
	resp, err := c.do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if err := statusError(resp.StatusCode); err != nil {
		return nil, err
	}
	return jason.NewObjectFromReader(resp.Body)
}

func statusError(code int) error {
	switch {
	case code == 404:
		return ErrNotFound
	case code == 401:
		return ErrNotAuthorized
	case code == 409:
		return ErrConflict
	case code >= 200 && code < 300:
		return nil
	}
	return ErrUnexpectedResp
}
