package astrodata

// Well-known extension names.
const (
	NameSci = "SCI" // science pixels
	NameVar = "VAR" // variance plane
	NameDQ  = "DQ"  // data-quality mask
	NameMDF = "MDF" // mask definition table, root-only singleton
)

// A Payload is the data carried by an extension: either an *Image or a
// *Table.
type Payload interface {
	payload()
}

// An Image is an n-dimensional pixel array stored in row-major order.
type Image struct {
	Shape  []int     `json:"shape"`
	Pixels []float64 `json:"pixels"`
}

func (*Image) payload() {}

// NewImage allocates an image with the given shape.
func NewImage(shape ...int) *Image {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return &Image{Shape: shape, Pixels: make([]float64, n)}
}

// A Table is a simple column-oriented table. Every row has one cell per
// column name.
type Table struct {
	Names []string   `json:"names"`
	Rows  [][]string `json:"rows"`
}

func (*Table) payload() {}

// An Extension is one named, optionally versioned unit of header plus
// payload inside a container. Ver is zero for singleton extensions.
// Mask, Variance and Extras are payloads attached directly to this
// extension; they are not addressable as extensions of the container.
type Extension struct {
	Name     string
	Ver      int
	Header   *Header
	Data     Payload
	Mask     *Image
	Variance *Image
	Extras   map[string]Payload
}

// versioned reports whether the extension takes part in version
// numbering. Image extensions always do; tables only when they already
// carry a version.
func (e *Extension) versioned() bool {
	if e.Ver > 0 {
		return true
	}
	_, isImage := e.Data.(*Image)
	return isImage
}

// clone returns a copy of the extension which owns its own header but
// shares the payload and attachments with the original.
func (e *Extension) clone() *Extension {
	c := *e
	c.Header = e.Header.Clone()
	if e.Extras != nil {
		c.Extras = make(map[string]Payload, len(e.Extras))
		for k, v := range e.Extras {
			c.Extras[k] = v
		}
	}
	return &c
}

// stamp writes the extension's identity into its header.
func (e *Extension) stamp() {
	if e.Header == nil {
		e.Header = NewHeader()
	}
	e.Header.Set(KeyExtName, e.Name)
	if e.Ver > 0 {
		e.Header.Set(KeyExtVer, e.Ver)
	} else {
		e.Header.Del(KeyExtVer)
	}
}
