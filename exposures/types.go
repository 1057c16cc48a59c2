package exposures

import (
	"time"

	"github.com/stinyanont/DRAGONS/astrodata"
)

// StreamInfo records where one pixel payload lives and how to verify it.
type StreamInfo struct {
	Stream int    `json:"stream"` // the NNNN of the <id>-ext-NNNN key
	Shape  []int  `json:"shape"`
	Size   int64  `json:"size"` // bytes in the stream
	MD5    string `json:"md5"`
	SHA256 string `json:"sha256"`
}

// ExtraInfo is one named attachment: either a pixel stream or an
// inlined table.
type ExtraInfo struct {
	Image *StreamInfo      `json:"image,omitempty"`
	Table *astrodata.Table `json:"table,omitempty"`
}

// ExtInfo records one extension of a saved exposure.
type ExtInfo struct {
	Name     string               `json:"name"`
	Ver      int                  `json:"ver,omitempty"` // 0 for singletons
	Header   *astrodata.Header    `json:"header"`
	Image    *StreamInfo          `json:"image,omitempty"`
	Table    *astrodata.Table     `json:"table,omitempty"`
	Mask     *StreamInfo          `json:"mask,omitempty"`
	Variance *StreamInfo          `json:"variance,omitempty"`
	Extras   map[string]ExtraInfo `json:"extras,omitempty"`
}

// An Exposure is the metadata document for one saved exposure.
type Exposure struct {
	ID        string            `json:"id"`
	SaveDate  time.Time         `json:"save_date"`
	PHU       *astrodata.Header `json:"phu"`
	Exts      []ExtInfo         `json:"exts"`
	MaxStream int               `json:"max_stream"` // highest stream number ever used
}

// An ExposureCache defines the methods a Store uses to interact with a
// metadata cache. Set with a nil exposure evicts the entry.
type ExposureCache interface {
	// Lookup tries to return the metadata record with the given id.
	// It returns nil if there is nothing matching in the cache.
	Lookup(id string) *Exposure

	Set(id string, e *Exposure)
}
