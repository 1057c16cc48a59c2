package astrodata

// nextVer picks the version for a single automatic append of a
// versioned name. A positive hint is honored verbatim when free.
// Otherwise the new version is one past the highest already used by
// the name, or one past the container's global maximum when the name
// is new here. Seeding new names from the global maximum keeps a later
// bulk merge of that name from colliding with the numbering of the
// rest of the container.
func (x *extIndex) nextVer(name string, hint int) int {
	if hint > 0 && !x.occupied(name, hint) {
		return hint
	}
	if m := x.maxVer(name); m > 0 {
		return m + 1
	}
	return x.maxVer("") + 1
}

// mergeBase returns the starting version for a name group arriving in
// a bulk merge, computed from the host state before the merge touched
// anything. global is the host's pre-merge global maximum.
func (x *extIndex) mergeBase(name string, global int) int {
	if m := x.maxVer(name); m > 0 {
		return m
	}
	return global
}
