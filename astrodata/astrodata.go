package astrodata

import (
	"fmt"
	"io"
	"text/tabwriter"
)

// A DataProvider supplies the physical records an exposure was read
// from. The container does not know or care how the records came off
// disk; it only needs a header and a payload per record, in order.
type DataProvider interface {
	PrimaryHeader() *Header
	Records() []Record
}

// A Record is one physical unit handed over by a DataProvider. The
// header's EXTNAME and EXTVER cards identify the extension.
type Record struct {
	Header *Header
	Data   Payload
}

// An ExtensionSource is anything that can be merged into a container:
// an ordered sequence of extensions. *AstroData satisfies this, and so
// may any foreign container representation.
type ExtensionSource interface {
	Extensions() []*Extension
}

// AstroData is the container for one exposure: a primary header plus an
// ordered, indexed list of extensions.
type AstroData struct {
	phu    *Header
	x      extIndex
	sliced bool
}

// New returns an empty container holding only the given primary header.
// A nil phu starts a fresh one.
func New(phu *Header) *AstroData {
	if phu == nil {
		phu = NewHeader()
	}
	ad := &AstroData{phu: phu}
	ad.x.rebuild()
	return ad
}

// NewFromProvider builds a container from the records of a provider.
// Every record must carry an EXTNAME; duplicate identities fail with a
// ConflictError.
func NewFromProvider(p DataProvider) (*AstroData, error) {
	ad := New(p.PrimaryHeader())
	for _, rec := range p.Records() {
		hdr := rec.Header
		if hdr == nil {
			hdr = NewHeader()
		}
		name, _ := hdr.GetString(KeyExtName)
		if name == "" {
			return nil, ErrNoName
		}
		ver, _ := hdr.GetInt(KeyExtVer)
		if ver < 0 {
			return nil, ErrBadVersion
		}
		e := &Extension{Name: name, Ver: ver, Header: hdr, Data: rec.Data}
		if err := ad.x.insert(e, -1); err != nil {
			return nil, err
		}
	}
	return ad, nil
}

// PHU returns the primary header. Views share the primary header with
// the container they were sliced from.
func (ad *AstroData) PHU() *Header {
	return ad.phu
}

// Len returns the number of extensions. The primary header does not
// count.
func (ad *AstroData) Len() int {
	return ad.x.len()
}

// Sliced reports whether this container is a view of another one.
func (ad *AstroData) Sliced() bool {
	return ad.sliced
}

// Extensions returns the extensions in container order. The slice is a
// copy; the extensions are not.
func (ad *AstroData) Extensions() []*Extension {
	result := make([]*Extension, len(ad.x.exts))
	copy(result, ad.x.exts)
	return result
}

// At returns the extension at position i.
func (ad *AstroData) At(i int) (*Extension, error) {
	if i < 0 || i >= ad.x.len() {
		return nil, NotFoundError(fmt.Sprintf("at position %d", i))
	}
	return ad.x.at(i), nil
}

// MaxVer returns the highest version in use by the given name, or by
// any name when name is empty. Zero means none.
func (ad *AstroData) MaxVer(name string) int {
	return ad.x.maxVer(name)
}

// Lookup returns the extensions stored under (name, ver). With a ver of
// zero it returns every extension of that name, leaving disambiguation
// to the caller.
func (ad *AstroData) Lookup(name string, ver int) ([]*Extension, error) {
	if ver != 0 {
		e, err := ad.x.lookup(name, ver)
		if err != nil {
			return nil, err
		}
		return []*Extension{e}, nil
	}
	all := ad.x.all(name)
	if len(all) == 0 {
		return nil, NotFoundError(name)
	}
	return all, nil
}

// view wraps a subset of extensions in a new container sharing the
// primary header and the extension objects themselves.
func (ad *AstroData) view(exts []*Extension) *AstroData {
	v := &AstroData{phu: ad.phu, sliced: true}
	v.x.exts = exts
	v.x.rebuild()
	return v
}

// Ext returns a single-extension view of position i.
func (ad *AstroData) Ext(i int) (*AstroData, error) {
	if i < 0 || i >= ad.x.len() {
		return nil, NotFoundError(fmt.Sprintf("at position %d", i))
	}
	return ad.view([]*Extension{ad.x.at(i)}), nil
}

// ExtRange returns a view of the half-open position range [lo, hi).
func (ad *AstroData) ExtRange(lo, hi int) (*AstroData, error) {
	if lo < 0 || hi > ad.x.len() || lo > hi {
		return nil, NotFoundError(fmt.Sprintf("range [%d:%d]", lo, hi))
	}
	sub := make([]*Extension, hi-lo)
	copy(sub, ad.x.exts[lo:hi])
	return ad.view(sub), nil
}

// ExtNamed returns a view of the extensions stored under (name, ver).
// A ver of zero selects every extension of that name.
func (ad *AstroData) ExtNamed(name string, ver int) (*AstroData, error) {
	exts, err := ad.Lookup(name, ver)
	if err != nil {
		return nil, err
	}
	return ad.view(exts), nil
}

// Delete removes the extension at position i. Automatic numbering of
// later appends works from the reduced set.
func (ad *AstroData) Delete(i int) error {
	return ad.x.removeAt(i)
}

// AppendOptions control naming and numbering of an append. A zero
// value takes every identity hint from the source itself.
type AppendOptions struct {
	// Name files the appended data under this name, overriding any
	// name the source carries.
	Name string

	// Ver requests this version. With AutoNumber set it is a hint,
	// honored when free. Without AutoNumber a collision is an error.
	Ver int

	// AutoNumber lets the container pick version numbers.
	AutoNumber bool
}

// Append adds data to the container. The source may be a bare *Image
// or *Table, a complete *Extension bundle, or an ExtensionSource such
// as another *AstroData, which merges all of its extensions. Called on
// a single-extension view, Append instead attaches the data to that
// extension without consuming a version number. Either the whole
// append succeeds or the container is left unchanged.
func (ad *AstroData) Append(src interface{}, opt AppendOptions) error {
	if opt.Ver < 0 {
		return ErrBadVersion
	}
	if ad.sliced {
		return ad.attach(src, opt)
	}
	switch s := src.(type) {
	case *Image:
		return ad.appendExt(&Extension{Header: NewHeader(), Data: s}, opt, true)
	case *Table:
		return ad.appendExt(&Extension{Header: NewHeader(), Data: s}, opt, true)
	case *Extension:
		return ad.appendExt(s.clone(), opt, false)
	case ExtensionSource:
		return ad.merge(s, opt)
	}
	return fmt.Errorf("cannot append %T to a container", src)
}

// appendExt files one extension at the top level. bare marks payloads
// appended without a surrounding bundle; those may not claim the
// mask/variance names, which only make sense attached to an extension.
func (ad *AstroData) appendExt(e *Extension, opt AppendOptions, bare bool) error {
	name := opt.Name
	if name == "" {
		name = e.Name
	}
	if name == "" {
		name, _ = e.Header.GetString(KeyExtName)
	}
	if name == "" {
		return ErrNoName
	}
	if bare && (name == NameVar || name == NameDQ) {
		return ErrRootAttachment
	}
	ver := opt.Ver
	if ver == 0 {
		ver = e.Ver
	}
	if ver == 0 {
		ver, _ = e.Header.GetInt(KeyExtVer)
	}
	if ver < 0 {
		return ErrBadVersion
	}
	e.Name = name
	e.Ver = ver
	if e.versioned() {
		if opt.AutoNumber {
			// Only a version the caller asked for is a hint. A version
			// the source carries in its own header gets renumbered.
			e.Ver = ad.x.nextVer(name, opt.Ver)
		} else {
			if e.Ver == 0 {
				e.Ver = 1
			}
			if ad.x.occupied(name, e.Ver) {
				return &ConflictError{Name: name, Ver: e.Ver}
			}
		}
	} else if ad.x.occupied(name, 0) {
		return &ConflictError{Name: name}
	}
	e.stamp()
	return ad.x.insert(e, -1)
}

// merge appends every extension of the source. Each name group is
// renumbered independently: consecutive versions in the group's
// original order, starting one past the host's pre-merge maximum for
// that name, or the host's pre-merge global maximum for a name not
// present here. Nothing is committed until the whole merge has been
// planned without conflict.
func (ad *AstroData) merge(src ExtensionSource, opt AppendOptions) error {
	incoming := src.Extensions()
	global := ad.x.maxVer("")
	bases := make(map[string]int)
	seen := make(map[extkey]bool)
	adds := make([]*Extension, 0, len(incoming))
	for _, in := range incoming {
		e := in.clone()
		if e.Name == "" && e.Header != nil {
			e.Name, _ = e.Header.GetString(KeyExtName)
		}
		if e.Name == "" {
			return ErrNoName
		}
		if e.Ver < 0 {
			return ErrBadVersion
		}
		if e.versioned() {
			if opt.AutoNumber {
				base, ok := bases[e.Name]
				if !ok {
					base = ad.x.mergeBase(e.Name, global)
				}
				base++
				bases[e.Name] = base
				e.Ver = base
			} else if e.Ver == 0 {
				e.Ver = 1
			}
		}
		k := extkey{e.Name, e.Ver}
		if ad.x.occupied(k.name, k.ver) || seen[k] {
			return &ConflictError{Name: k.name, Ver: k.ver}
		}
		seen[k] = true
		e.stamp()
		adds = append(adds, e)
	}
	ad.x.exts = append(ad.x.exts, adds...)
	ad.x.rebuild()
	return nil
}

// attach adds a secondary payload to the extension a single-extension
// view addresses. DQ and VAR become the mask and variance planes; any
// other name lands in the extension's extras. No version number is
// consumed.
func (ad *AstroData) attach(src interface{}, opt AppendOptions) error {
	if ad.x.len() != 1 {
		return ErrSliceAppend
	}
	target := ad.x.at(0)
	var name string
	var p Payload
	switch s := src.(type) {
	case *Image:
		p = s
	case *Table:
		p = s
	case *Extension:
		p = s.Data
		name = s.Name
		if name == "" && s.Header != nil {
			name, _ = s.Header.GetString(KeyExtName)
		}
	default:
		return fmt.Errorf("cannot attach %T to an extension", src)
	}
	if opt.Name != "" {
		name = opt.Name
	}
	if name == "" {
		return ErrNoName
	}
	switch name {
	case NameDQ:
		img, ok := p.(*Image)
		if !ok {
			return fmt.Errorf("a %s attachment must be an image", name)
		}
		target.Mask = img
	case NameVar:
		img, ok := p.(*Image)
		if !ok {
			return fmt.Errorf("a %s attachment must be an image", name)
		}
		target.Variance = img
	case NameMDF:
		return ErrExtAttachment
	default:
		if target.Extras == nil {
			target.Extras = make(map[string]Payload)
		}
		target.Extras[name] = p
	}
	return nil
}

// Info writes a human-readable summary of the container to w.
func (ad *AstroData) Info(w io.Writer) {
	fmt.Fprintf(w, "Extensions: %d\n", ad.x.len())
	tw := tabwriter.NewWriter(w, 5, 1, 3, ' ', 0)
	fmt.Fprintf(tw, "Pos\tName\tVer\tKind\tSize\n")
	for i, e := range ad.x.exts {
		var kind, size string
		switch d := e.Data.(type) {
		case *Image:
			kind = "image"
			size = fmt.Sprintf("%v", d.Shape)
		case *Table:
			kind = "table"
			size = fmt.Sprintf("%d rows", len(d.Rows))
		default:
			kind = "empty"
		}
		ver := "-"
		if e.Ver > 0 {
			ver = fmt.Sprintf("%d", e.Ver)
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", i, e.Name, ver, kind, size)
	}
	tw.Flush()
}
