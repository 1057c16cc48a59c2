package astrodata

import (
	"bytes"
	"errors"
	"testing"
)

// sciN returns a container holding SCI versions 1..n.
func sciN(t *testing.T, n int) *AstroData {
	t.Helper()
	ad := New(nil)
	for i := 0; i < n; i++ {
		err := ad.Append(NewImage(2, 2), AppendOptions{Name: NameSci, AutoNumber: true})
		if err != nil {
			t.Fatalf("Got %v, expected nil", err)
		}
	}
	return ad
}

// mosaic returns a container holding MDF plus SCI, VAR and DQ all at
// version 1, like a typical spectroscopic exposure.
func mosaic(t *testing.T) *AstroData {
	t.Helper()
	ad := New(nil)
	mdf := &Table{Names: []string{"slit"}, Rows: [][]string{{"a"}}}
	if err := ad.Append(mdf, AppendOptions{Name: NameMDF}); err != nil {
		t.Fatalf("Got %v, expected nil", err)
	}
	for _, name := range []string{NameSci, NameVar, NameDQ} {
		e := &Extension{Name: name, Ver: 1, Header: NewHeader(), Data: NewImage(2, 2)}
		if err := ad.Append(e, AppendOptions{}); err != nil {
			t.Fatalf("Got %v, expected nil", err)
		}
	}
	return ad
}

// triple returns a container with SCI, DQ and VAR at versions 1..3 each.
func triple(t *testing.T) *AstroData {
	t.Helper()
	ad := New(nil)
	for _, name := range []string{NameSci, NameDQ, NameVar} {
		for v := 1; v <= 3; v++ {
			e := &Extension{Name: name, Ver: v, Header: NewHeader(), Data: NewImage(2, 2)}
			if err := ad.Append(e, AppendOptions{}); err != nil {
				t.Fatalf("Got %v, expected nil", err)
			}
		}
	}
	return ad
}

func checkExt(t *testing.T, ad *AstroData, i int, name string, ver int) {
	t.Helper()
	e, err := ad.At(i)
	if err != nil {
		t.Fatalf("At(%d): got %v, expected nil", i, err)
	}
	if e.Name != name || e.Ver != ver {
		t.Errorf("At(%d): got (%s, %d), expected (%s, %d)", i, e.Name, e.Ver, name, ver)
	}
}

func TestAppendAutoNumber(t *testing.T) {
	ad := sciN(t, 3)
	// existing name continues its own numbering
	err := ad.Append(NewImage(2, 2), AppendOptions{Name: NameSci, AutoNumber: true})
	if err != nil {
		t.Fatalf("Got %v, expected nil", err)
	}
	checkExt(t, ad, 3, NameSci, 4)
	// a brand-new name seeds from the global maximum
	err = ad.Append(NewImage(2, 2), AppendOptions{Name: "FLAT", AutoNumber: true})
	if err != nil {
		t.Fatalf("Got %v, expected nil", err)
	}
	checkExt(t, ad, 4, "FLAT", 5)
}

func TestAppendVersionHint(t *testing.T) {
	ad := sciN(t, 3)
	// a free hint is honored verbatim
	err := ad.Append(NewImage(2, 2), AppendOptions{Name: NameSci, Ver: 10, AutoNumber: true})
	if err != nil {
		t.Fatalf("Got %v, expected nil", err)
	}
	checkExt(t, ad, 3, NameSci, 10)
	// an occupied hint falls through to the automatic rule
	err = ad.Append(NewImage(2, 2), AppendOptions{Name: NameSci, Ver: 10, AutoNumber: true})
	if err != nil {
		t.Fatalf("Got %v, expected nil", err)
	}
	checkExt(t, ad, 4, NameSci, 11)
}

func TestAppendSourceVersionRenumbered(t *testing.T) {
	// a version the source header carries is not a hint: with
	// auto-numbering it gets replaced by the policy's choice.
	ad := sciN(t, 3)
	src := &Extension{Header: NewHeader(), Data: NewImage(2, 2)}
	src.Header.Set(KeyExtName, NameVar)
	src.Header.Set(KeyExtVer, 2)
	err := ad.Append(src, AppendOptions{AutoNumber: true})
	if err != nil {
		t.Fatalf("Got %v, expected nil", err)
	}
	checkExt(t, ad, 3, NameVar, 4)
}

func TestAppendConflict(t *testing.T) {
	ad := sciN(t, 3)
	src := &Extension{Name: NameSci, Ver: 1, Header: NewHeader(), Data: NewImage(2, 2)}
	err := ad.Append(src, AppendOptions{})
	var conflict *ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("Got %v, expected a ConflictError", err)
	}
	if conflict.Name != NameSci || conflict.Ver != 1 {
		t.Errorf("Got (%s, %d), expected (SCI, 1)", conflict.Name, conflict.Ver)
	}
	if ad.Len() != 3 {
		t.Errorf("Got %d extensions, expected 3", ad.Len())
	}
}

func TestAppendBareArrayNeedsName(t *testing.T) {
	ad := sciN(t, 1)
	if err := ad.Append(NewImage(2, 2), AppendOptions{AutoNumber: true}); err != ErrNoName {
		t.Errorf("Got %v, expected ErrNoName", err)
	}
	if err := ad.Append(NewImage(2, 2), AppendOptions{Name: NameDQ}); err != ErrRootAttachment {
		t.Errorf("Got %v, expected ErrRootAttachment", err)
	}
	if ad.Len() != 1 {
		t.Errorf("Got %d extensions, expected 1", ad.Len())
	}
}

func TestSingletonTable(t *testing.T) {
	ad := New(nil)
	mdf := &Table{Names: []string{"slit"}}
	// auto-numbering leaves a table unversioned
	if err := ad.Append(mdf, AppendOptions{Name: NameMDF, AutoNumber: true}); err != nil {
		t.Fatalf("Got %v, expected nil", err)
	}
	checkExt(t, ad, 0, NameMDF, 0)
	err := ad.Append(mdf, AppendOptions{Name: NameMDF})
	var conflict *ConflictError
	if !errors.As(err, &conflict) {
		t.Errorf("Got %v, expected a ConflictError", err)
	}
}

func TestMergeSpecScenario(t *testing.T) {
	// host SCI 1-3, source MDF + SCI/VAR/DQ at 1: all four incoming
	// extensions follow the host's numbering, VAR and DQ seeded from
	// the host's global maximum.
	host := sciN(t, 3)
	if err := host.Append(mosaic(t), AppendOptions{AutoNumber: true}); err != nil {
		t.Fatalf("Got %v, expected nil", err)
	}
	if host.Len() != 7 {
		t.Fatalf("Got %d extensions, expected 7", host.Len())
	}
	checkExt(t, host, 0, NameSci, 1)
	checkExt(t, host, 2, NameSci, 3)
	checkExt(t, host, 3, NameMDF, 0)
	checkExt(t, host, 4, NameSci, 4)
	checkExt(t, host, 5, NameVar, 4)
	checkExt(t, host, 6, NameDQ, 4)
}

func TestMergeGroupsRenumberIndependently(t *testing.T) {
	host := sciN(t, 3)
	if err := host.Append(triple(t), AppendOptions{AutoNumber: true}); err != nil {
		t.Fatalf("Got %v, expected nil", err)
	}
	if host.Len() != 12 {
		t.Fatalf("Got %d extensions, expected 12", host.Len())
	}
	for i, want := range []struct {
		name string
		ver  int
	}{
		{NameSci, 4}, {NameSci, 5}, {NameSci, 6},
		{NameDQ, 4}, {NameDQ, 5}, {NameDQ, 6},
		{NameVar, 4}, {NameVar, 5}, {NameVar, 6},
	} {
		checkExt(t, host, 3+i, want.name, want.ver)
	}
}

func TestMergeContinuesPerName(t *testing.T) {
	// every incoming name already exists at version 1 in the host, so
	// each group continues from its own maximum.
	host := mosaic(t)
	if err := host.Append(triple(t), AppendOptions{AutoNumber: true}); err != nil {
		t.Fatalf("Got %v, expected nil", err)
	}
	for i, want := range []struct {
		name string
		ver  int
	}{
		{NameSci, 2}, {NameSci, 3}, {NameSci, 4},
		{NameDQ, 2}, {NameDQ, 3}, {NameDQ, 4},
		{NameVar, 2}, {NameVar, 3}, {NameVar, 4},
	} {
		checkExt(t, host, 4+i, want.name, want.ver)
	}
}

func TestMergeConflictLeavesHostUnchanged(t *testing.T) {
	host := sciN(t, 3)
	err := host.Append(triple(t), AppendOptions{})
	var conflict *ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("Got %v, expected a ConflictError", err)
	}
	if host.Len() != 3 {
		t.Errorf("Got %d extensions, expected 3", host.Len())
	}
}

func TestMergeDuplicateSingleton(t *testing.T) {
	host := mosaic(t)
	err := host.Append(mosaic(t), AppendOptions{AutoNumber: true})
	var conflict *ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("Got %v, expected a ConflictError", err)
	}
	if conflict.Name != NameMDF {
		t.Errorf("Got %s, expected MDF", conflict.Name)
	}
	if host.Len() != 4 {
		t.Errorf("Got %d extensions, expected 4", host.Len())
	}
}

func TestDeleteThenAppend(t *testing.T) {
	ad := sciN(t, 3)
	if err := ad.Delete(2); err != nil {
		t.Fatalf("Got %v, expected nil", err)
	}
	// numbering works from the reduced set: global max is now 2
	err := ad.Append(NewImage(2, 2), AppendOptions{Name: "FLAT", AutoNumber: true})
	if err != nil {
		t.Fatalf("Got %v, expected nil", err)
	}
	checkExt(t, ad, 2, "FLAT", 3)
}

func TestSliceSharesPayload(t *testing.T) {
	ad := sciN(t, 3)
	view, err := ad.Ext(1)
	if err != nil {
		t.Fatalf("Got %v, expected nil", err)
	}
	ve, _ := view.At(0)
	ve.Data.(*Image).Pixels[0] = 42
	oe, _ := ad.At(1)
	if oe.Data.(*Image).Pixels[0] != 42 {
		t.Errorf("Got %v, expected mutation through the view to be shared", oe.Data.(*Image).Pixels[0])
	}
	// structural changes to the view stay in the view
	if err := view.Delete(0); err != nil {
		t.Fatalf("Got %v, expected nil", err)
	}
	if view.Len() != 0 {
		t.Errorf("Got view length %d, expected 0", view.Len())
	}
	if ad.Len() != 3 {
		t.Errorf("Got %d extensions, expected 3", ad.Len())
	}
}

func TestSliceRangeAndNamed(t *testing.T) {
	ad := sciN(t, 3)
	view, err := ad.ExtRange(1, 3)
	if err != nil {
		t.Fatalf("Got %v, expected nil", err)
	}
	if view.Len() != 2 || !view.Sliced() {
		t.Errorf("Got len %d sliced %v, expected 2 true", view.Len(), view.Sliced())
	}
	named, err := ad.ExtNamed(NameSci, 2)
	if err != nil {
		t.Fatalf("Got %v, expected nil", err)
	}
	checkExt(t, named, 0, NameSci, 2)
	all, err := ad.ExtNamed(NameSci, 0)
	if err != nil {
		t.Fatalf("Got %v, expected nil", err)
	}
	if all.Len() != 3 {
		t.Errorf("Got %d extensions, expected 3", all.Len())
	}
	if _, err := ad.ExtNamed("NOPE", 0); err == nil {
		t.Errorf("Got nil, expected a NotFoundError")
	}
}

func TestAttachToExtension(t *testing.T) {
	ad := sciN(t, 2)
	view, err := ad.Ext(0)
	if err != nil {
		t.Fatalf("Got %v, expected nil", err)
	}
	mask := NewImage(2, 2)
	if err := view.Append(mask, AppendOptions{Name: NameDQ}); err != nil {
		t.Fatalf("Got %v, expected nil", err)
	}
	if err := view.Append(NewImage(2, 2), AppendOptions{Name: NameVar}); err != nil {
		t.Fatalf("Got %v, expected nil", err)
	}
	if err := view.Append(NewImage(2, 2), AppendOptions{Name: "PROFILE"}); err != nil {
		t.Fatalf("Got %v, expected nil", err)
	}
	e, _ := ad.At(0)
	if e.Mask != mask {
		t.Errorf("Got %v, expected the mask to be attached to the host's extension", e.Mask)
	}
	if e.Variance == nil || e.Extras["PROFILE"] == nil {
		t.Errorf("Got variance %v extras %v, expected both attached", e.Variance, e.Extras)
	}
	// attachments never consume extensions or version numbers
	if ad.Len() != 2 {
		t.Errorf("Got %d extensions, expected 2", ad.Len())
	}
	if ad.MaxVer("") != 2 {
		t.Errorf("Got max version %d, expected 2", ad.MaxVer(""))
	}
	// root-only names are rejected at extension scope
	err = view.Append(&Table{}, AppendOptions{Name: NameMDF})
	if err != ErrExtAttachment {
		t.Errorf("Got %v, expected ErrExtAttachment", err)
	}
	// a multi-extension slice cannot be appended to
	wide, _ := ad.ExtRange(0, 2)
	if err := wide.Append(NewImage(2, 2), AppendOptions{Name: NameDQ}); err != ErrSliceAppend {
		t.Errorf("Got %v, expected ErrSliceAppend", err)
	}
}

type memProvider struct {
	phu  *Header
	recs []Record
}

func (p *memProvider) PrimaryHeader() *Header { return p.phu }
func (p *memProvider) Records() []Record      { return p.recs }

func TestNewFromProvider(t *testing.T) {
	phu := NewHeader()
	phu.Set("INSTRUME", "GMOS")
	rec := func(name string, ver int) Record {
		h := NewHeader()
		h.Set(KeyExtName, name)
		if ver > 0 {
			h.Set(KeyExtVer, ver)
		}
		return Record{Header: h, Data: NewImage(2, 2)}
	}
	ad, err := NewFromProvider(&memProvider{phu: phu, recs: []Record{
		rec(NameSci, 1), rec(NameSci, 2),
	}})
	if err != nil {
		t.Fatalf("Got %v, expected nil", err)
	}
	if ad.Len() != 2 {
		t.Errorf("Got %d extensions, expected 2", ad.Len())
	}
	if v, _ := ad.PHU().GetString("INSTRUME"); v != "GMOS" {
		t.Errorf("Got %q, expected GMOS", v)
	}
	// duplicate identities in the provider are rejected
	_, err = NewFromProvider(&memProvider{recs: []Record{rec(NameSci, 1), rec(NameSci, 1)}})
	var conflict *ConflictError
	if !errors.As(err, &conflict) {
		t.Errorf("Got %v, expected a ConflictError", err)
	}
	// as are anonymous records
	_, err = NewFromProvider(&memProvider{recs: []Record{{Header: NewHeader()}}})
	if err != ErrNoName {
		t.Errorf("Got %v, expected ErrNoName", err)
	}
}

func TestInfo(t *testing.T) {
	var buf bytes.Buffer
	mosaic(t).Info(&buf)
	if !bytes.Contains(buf.Bytes(), []byte("MDF")) {
		t.Errorf("Got %q, expected a summary mentioning MDF", buf.String())
	}
}
