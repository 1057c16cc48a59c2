package exposures

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/golang/groupcache/singleflight"

	"github.com/stinyanont/DRAGONS/astrodata"
	"github.com/stinyanont/DRAGONS/store"
)

// We have two levels of exposure knowledge:
//   1. We know an exposure exists, from the presence of its info key
//   2. We have read the info key and hold the full metadata document
// We can get (1) by listing keys. Knowledge of type (2) requires a read
// from the backing store, so we fill it in on demand and remember it in
// the cache.

// Store provides exposures saved in an underlying stream store.
type Store struct {
	cache ExposureCache
	S     store.Store        // the underlying stream store
	table singleflight.Group // for metadata loads. keyed by exposure id
}

// New returns a Store with no metadata cache.
func New(s store.Store) *Store {
	return &Store{S: s, cache: nullcache}
}

// NewWithCache returns a Store remembering metadata in the given cache.
func NewWithCache(s store.Store, cache ExposureCache) *Store {
	return &Store{S: s, cache: cache}
}

// SetCache assigns the metadata cache. Do this before sharing the Store
// between goroutines.
func (s *Store) SetCache(cache ExposureCache) {
	s.cache = cache
}

var (
	// ErrNoExposure means there is no exposure under the given id
	ErrNoExposure = errors.New("no exposure, bad exposure id")

	// ErrNoStream means the metadata references a payload the store lacks
	ErrNoStream = errors.New("no payload stream")
)

// The store keys for pixel stream n and for the metadata document.
// The document key carries a stream number too, so each save writes a
// new document beside the old one and a reader always finds a complete
// document under the highest number.
func streamKey(id string, n int) string { return fmt.Sprintf("%s-ext-%04d", id, n) }
func infoKey(id string, n int) string   { return fmt.Sprintf("%s-info-%04d", id, n) }
func infoPrefix(id string) string       { return id + "-info-" }

// List returns a channel giving the id of every exposure in the store.
func (s *Store) List() <-chan string {
	out := make(chan string)
	go func() {
		// more than one document generation may exist briefly, so
		// dedup the ids
		seen := make(map[string]bool)
		for key := range s.S.List() {
			i := strings.LastIndex(key, "-info-")
			if i < 0 {
				continue
			}
			id := key[:i]
			if !seen[id] {
				seen[id] = true
				out <- id
			}
		}
		close(out)
	}()
	return out
}

// Info loads and returns an exposure's metadata document. Concurrent
// calls for the same id share one read.
func (s *Store) Info(id string) (*Exposure, error) {
	result := s.cache.Lookup(id)
	if result != nil {
		return result, nil
	}
	val, err := s.table.Do(id, func() (interface{}, error) {
		v, err := s.infoload(id)
		if err == nil {
			s.cache.Set(id, v)
		}
		return v, err
	})
	if val != nil {
		result = val.(*Exposure)
	}
	return result, err
}

func (s *Store) infoload(id string) (*Exposure, error) {
	key, err := s.infokey(id)
	if err != nil {
		return nil, err
	}
	rac, _, err := s.S.Open(key)
	if err != nil {
		return nil, ErrNoExposure
	}
	defer rac.Close()
	result := new(Exposure)
	err = json.NewDecoder(store.NewReader(rac)).Decode(result)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// infokey returns the key of the current metadata document for id,
// which is the one with the highest generation number.
func (s *Store) infokey(id string) (string, error) {
	keys, err := s.S.ListPrefix(infoPrefix(id))
	if err != nil {
		return "", err
	}
	best := -1
	var bestkey string
	for _, key := range keys {
		n, err := strconv.Atoi(key[len(infoPrefix(id)):])
		if err == nil && n > best {
			best = n
			bestkey = key
		}
	}
	if best < 0 {
		return "", ErrNoExposure
	}
	return bestkey, nil
}

// Load rebuilds the container for the given exposure, pixel payloads
// and attachments included.
func (s *Store) Load(id string) (*astrodata.AstroData, error) {
	info, err := s.Info(id)
	if err != nil {
		return nil, err
	}
	p := &provider{phu: info.PHU.Clone()}
	for i := range info.Exts {
		x := &info.Exts[i]
		hdr := x.Header.Clone()
		hdr.Set(astrodata.KeyExtName, x.Name)
		if x.Ver > 0 {
			hdr.Set(astrodata.KeyExtVer, x.Ver)
		} else {
			hdr.Del(astrodata.KeyExtVer)
		}
		var data astrodata.Payload
		switch {
		case x.Image != nil:
			img, err := s.readImage(id, x.Image)
			if err != nil {
				return nil, err
			}
			data = img
		case x.Table != nil:
			data = x.Table
		}
		p.recs = append(p.recs, astrodata.Record{Header: hdr, Data: data})
	}
	ad, err := astrodata.NewFromProvider(p)
	if err != nil {
		return nil, err
	}
	// attachments are not part of the provider contract. fill them in
	// directly.
	for i := range info.Exts {
		x := &info.Exts[i]
		if x.Mask == nil && x.Variance == nil && len(x.Extras) == 0 {
			continue
		}
		e, err := ad.At(i)
		if err != nil {
			return nil, err
		}
		if x.Mask != nil {
			if e.Mask, err = s.readImage(id, x.Mask); err != nil {
				return nil, err
			}
		}
		if x.Variance != nil {
			if e.Variance, err = s.readImage(id, x.Variance); err != nil {
				return nil, err
			}
		}
		for name, extra := range x.Extras {
			var pay astrodata.Payload
			if extra.Image != nil {
				img, err := s.readImage(id, extra.Image)
				if err != nil {
					return nil, err
				}
				pay = img
			} else {
				pay = extra.Table
			}
			if e.Extras == nil {
				e.Extras = make(map[string]astrodata.Payload)
			}
			e.Extras[name] = pay
		}
	}
	return ad, nil
}

// readImage loads one pixel stream back into an image.
func (s *Store) readImage(id string, si *StreamInfo) (*astrodata.Image, error) {
	rac, size, err := s.S.Open(streamKey(id, si.Stream))
	if err != nil {
		return nil, ErrNoStream
	}
	defer rac.Close()
	img := astrodata.NewImage(si.Shape...)
	if want := int64(8 * len(img.Pixels)); size != want || si.Size != want {
		return nil, fmt.Errorf("stream %s: got %d bytes, expected %d",
			streamKey(id, si.Stream), size, want)
	}
	err = binary.Read(store.NewReader(rac), binary.LittleEndian, img.Pixels)
	if err != nil {
		return nil, err
	}
	return img, nil
}

// OpenImage returns the raw pixel stream of the extension stored under
// (name, ver) along with its length. A ver of zero addresses an
// unversioned extension, or the sole versioned instance of the name.
func (s *Store) OpenImage(id, name string, ver int) (io.ReadCloser, int64, error) {
	info, err := s.Info(id)
	if err != nil {
		return nil, 0, err
	}
	x := info.findExt(name, ver)
	if x == nil || x.Image == nil {
		return nil, 0, ErrNoStream
	}
	rac, size, err := s.S.Open(streamKey(id, x.Image.Stream))
	if err != nil {
		return nil, 0, err
	}
	return &streamReadCloser{Reader: store.NewReader(rac), rac: rac}, size, nil
}

// findExt resolves (name, ver) against the saved extensions the same
// way the container resolves a lookup.
func (e *Exposure) findExt(name string, ver int) *ExtInfo {
	var sole *ExtInfo
	n := 0
	for i := range e.Exts {
		x := &e.Exts[i]
		if x.Name != name {
			continue
		}
		if x.Ver == ver {
			return x
		}
		sole = x
		n++
	}
	if ver == 0 && n == 1 {
		return sole
	}
	return nil
}

type streamReadCloser struct {
	io.Reader
	rac store.ReadAtCloser
}

func (r *streamReadCloser) Close() error { return r.rac.Close() }

// Delete removes the exposure and all of its payload streams. It is not
// an error if the exposure does not exist.
func (s *Store) Delete(id string) error {
	info, err := s.infoload(id)
	if err == ErrNoExposure {
		return nil
	} else if err != nil {
		return err
	}
	for _, n := range info.streams() {
		if err := s.S.Delete(streamKey(id, n)); err != nil {
			return err
		}
	}
	// every document generation, including strays from failed saves
	keys, err := s.S.ListPrefix(infoPrefix(id))
	if err != nil {
		return err
	}
	for _, key := range keys {
		if err := s.S.Delete(key); err != nil {
			return err
		}
	}
	s.cache.Set(id, nil)
	return nil
}

// streams returns every stream number the document references.
func (e *Exposure) streams() []int {
	var result []int
	add := func(si *StreamInfo) {
		if si != nil {
			result = append(result, si.Stream)
		}
	}
	for i := range e.Exts {
		x := &e.Exts[i]
		add(x.Image)
		add(x.Mask)
		add(x.Variance)
		for _, extra := range x.Extras {
			add(extra.Image)
		}
	}
	return result
}

// provider feeds a saved exposure into the container constructor.
type provider struct {
	phu  *astrodata.Header
	recs []astrodata.Record
}

func (p *provider) PrimaryHeader() *astrodata.Header { return p.phu }
func (p *provider) Records() []astrodata.Record      { return p.recs }

type cache struct{}

var nullcache cache

func (cache) Lookup(id string) *Exposure { return nil }
func (cache) Set(id string, e *Exposure) {}
