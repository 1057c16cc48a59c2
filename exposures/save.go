package exposures

import (
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"log"
	"time"

	"github.com/stinyanont/DRAGONS/astrodata"
	"github.com/stinyanont/DRAGONS/util"
)

// Save writes the container into the store under the given id,
// replacing any previous save. New pixel streams and the new metadata
// document are numbered past the previous high-water mark, and the
// previous document and streams are removed only after the new
// document is in place, so a failed save leaves the previous state
// readable.
func (s *Store) Save(id string, ad *astrodata.AstroData) error {
	prev, err := s.infoload(id)
	if err != nil && err != ErrNoExposure {
		return err
	}
	err = nil
	n := 0
	if prev != nil {
		n = prev.MaxStream
	}
	var written []int // stream numbers to undo on error
	writeImage := func(img *astrodata.Image) (*StreamInfo, error) {
		n++
		si, err := s.writeStream(id, n, img)
		if err == nil {
			written = append(written, n)
		}
		return si, err
	}
	var exts []ExtInfo
	for _, e := range ad.Extensions() {
		x := ExtInfo{Name: e.Name, Ver: e.Ver, Header: e.Header.Clone()}
		switch d := e.Data.(type) {
		case *astrodata.Image:
			x.Image, err = writeImage(d)
		case *astrodata.Table:
			x.Table = d
		}
		if err == nil && e.Mask != nil {
			x.Mask, err = writeImage(e.Mask)
		}
		if err == nil && e.Variance != nil {
			x.Variance, err = writeImage(e.Variance)
		}
		for name, p := range e.Extras {
			if err != nil {
				break
			}
			var extra ExtraInfo
			switch d := p.(type) {
			case *astrodata.Image:
				extra.Image, err = writeImage(d)
			case *astrodata.Table:
				extra.Table = d
			}
			if x.Extras == nil {
				x.Extras = make(map[string]ExtraInfo)
			}
			x.Extras[name] = extra
		}
		if err != nil {
			s.undoStreams(id, written)
			return err
		}
		exts = append(exts, x)
	}
	// the document itself takes the next number, giving it a fresh key
	n++
	doc := &Exposure{
		ID:        id,
		SaveDate:  time.Now(),
		PHU:       ad.PHU().Clone(),
		Exts:      exts,
		MaxStream: n,
	}
	err = s.writeInfo(infoKey(id, n), doc)
	if err != nil {
		s.undoStreams(id, written)
		return err
	}
	// the new document is committed. now the old save is garbage.
	if prev != nil {
		s.undoStreams(id, prev.streams())
	}
	s.dropOldInfo(id, n)
	s.cache.Set(id, doc)
	return nil
}

// writeStream saves one pixel stream and returns its stream record.
func (s *Store) writeStream(id string, n int, img *astrodata.Image) (*StreamInfo, error) {
	w, err := s.S.Create(streamKey(id, n))
	if err != nil {
		return nil, err
	}
	hw := util.NewHashWriter(w)
	err = binary.Write(hw, binary.LittleEndian, img.Pixels)
	err2 := w.Close()
	if err == nil {
		err = err2
	}
	if err != nil {
		return nil, err
	}
	md5sum, _ := hw.CheckMD5(nil)
	sha256sum, _ := hw.CheckSHA256(nil)
	shape := make([]int, len(img.Shape))
	copy(shape, img.Shape)
	return &StreamInfo{
		Stream: n,
		Shape:  shape,
		Size:   int64(8 * len(img.Pixels)),
		MD5:    hex.EncodeToString(md5sum),
		SHA256: hex.EncodeToString(sha256sum),
	}, nil
}

// writeInfo saves the metadata document under the given key. The key
// is always a new one; a partial write is removed.
func (s *Store) writeInfo(key string, doc *Exposure) error {
	w, err := s.S.Create(key)
	if err != nil {
		return err
	}
	err = json.NewEncoder(w).Encode(doc)
	err2 := w.Close()
	if err == nil {
		err = err2
	}
	if err != nil {
		_ = s.S.Delete(key)
	}
	return err
}

// dropOldInfo removes every metadata document of the exposure except
// the one with generation keep.
func (s *Store) dropOldInfo(id string, keep int) {
	keys, err := s.S.ListPrefix(infoPrefix(id))
	if err != nil {
		log.Println("exposures: listing", infoPrefix(id), err)
		return
	}
	for _, key := range keys {
		if key == infoKey(id, keep) {
			continue
		}
		if err := s.S.Delete(key); err != nil {
			log.Println("exposures: removing", key, err)
		}
	}
}

// undoStreams removes the given pixel streams, keeping going past
// individual failures.
func (s *Store) undoStreams(id string, ns []int) {
	for _, n := range ns {
		if err := s.S.Delete(streamKey(id, n)); err != nil {
			log.Println("exposures: removing", streamKey(id, n), err)
		}
	}
}
