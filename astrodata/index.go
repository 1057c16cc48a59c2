package astrodata

import "fmt"

// extkey identifies an extension within one container. Singletons use
// a version of zero.
type extkey struct {
	name string
	ver  int
}

func (k extkey) String() string {
	if k.ver > 0 {
		return fmt.Sprintf("(%s, %d)", k.name, k.ver)
	}
	return k.name
}

// extIndex keeps the ordered extension list along with a derived
// mapping from (name, version) to position. The mapping is rebuilt on
// every mutation, so it can never dangle.
type extIndex struct {
	exts []*Extension
	pos  map[extkey]int
}

func (x *extIndex) rebuild() {
	x.pos = make(map[extkey]int, len(x.exts))
	for i, e := range x.exts {
		x.pos[extkey{e.Name, e.Ver}] = i
	}
}

func (x *extIndex) len() int {
	return len(x.exts)
}

func (x *extIndex) at(i int) *Extension {
	return x.exts[i]
}

// occupied reports whether the (name, ver) pair is already in use.
func (x *extIndex) occupied(name string, ver int) bool {
	_, ok := x.pos[extkey{name, ver}]
	return ok
}

// insert adds the extension at position i, or at the end when i is
// negative. Inserting a key already present fails with a
// ConflictError.
func (x *extIndex) insert(e *Extension, i int) error {
	if e.Ver < 0 {
		return ErrBadVersion
	}
	if x.occupied(e.Name, e.Ver) {
		return &ConflictError{Name: e.Name, Ver: e.Ver}
	}
	if i < 0 || i >= len(x.exts) {
		x.exts = append(x.exts, e)
	} else {
		x.exts = append(x.exts, nil)
		copy(x.exts[i+1:], x.exts[i:])
		x.exts[i] = e
	}
	x.rebuild()
	return nil
}

// lookup returns the extension stored under (name, ver). A ver of zero
// matches the singleton of that name, or, failing that, the sole
// versioned instance of the name.
func (x *extIndex) lookup(name string, ver int) (*Extension, error) {
	if i, ok := x.pos[extkey{name, ver}]; ok {
		return x.exts[i], nil
	}
	if ver == 0 {
		all := x.all(name)
		if len(all) == 1 {
			return all[0], nil
		}
	}
	return nil, NotFoundError(extkey{name, ver}.String())
}

// all returns every extension with the given name, in container order.
func (x *extIndex) all(name string) []*Extension {
	var result []*Extension
	for _, e := range x.exts {
		if e.Name == name {
			result = append(result, e)
		}
	}
	return result
}

// removeAt deletes the extension at position i.
func (x *extIndex) removeAt(i int) error {
	if i < 0 || i >= len(x.exts) {
		return NotFoundError(fmt.Sprintf("at position %d", i))
	}
	x.exts = append(x.exts[:i], x.exts[i+1:]...)
	x.rebuild()
	return nil
}

// remove deletes the extension stored under (name, ver).
func (x *extIndex) remove(name string, ver int) error {
	i, ok := x.pos[extkey{name, ver}]
	if !ok {
		return NotFoundError(extkey{name, ver}.String())
	}
	return x.removeAt(i)
}

// maxVer returns the highest version assigned to the given name, or,
// when name is empty, the highest version assigned anywhere in the
// container. Zero means no versioned extension matched.
func (x *extIndex) maxVer(name string) int {
	var max int
	for _, e := range x.exts {
		if name != "" && e.Name != name {
			continue
		}
		if e.Ver > max {
			max = e.Ver
		}
	}
	return max
}
