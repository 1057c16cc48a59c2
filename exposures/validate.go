package exposures

import (
	"encoding/hex"
	"fmt"
	"io"

	"github.com/stinyanont/DRAGONS/store"
	"github.com/stinyanont/DRAGONS/util"
)

// Validate re-checksums every pixel stream of the exposure against the
// metadata document. It returns the number of bytes hashed and a list
// of problems found, one string per bad stream. An empty list means the
// exposure is intact.
func (s *Store) Validate(id string) (int64, []string, error) {
	// read the current document, not a cached one
	info, err := s.infoload(id)
	if err != nil {
		return 0, nil, err
	}
	var total int64
	var problems []string
	for i := range info.Exts {
		x := &info.Exts[i]
		label := fmt.Sprintf("(%s, %d)", x.Name, x.Ver)
		check := func(kind string, si *StreamInfo) {
			if si == nil {
				return
			}
			n, err := s.validateStream(id, si)
			total += n
			if err != nil {
				problems = append(problems, fmt.Sprintf("%s %s: %s", label, kind, err))
			}
		}
		check("image", x.Image)
		check("mask", x.Mask)
		check("variance", x.Variance)
		for name, extra := range x.Extras {
			check(name, extra.Image)
		}
	}
	return total, problems, nil
}

// validateStream hashes one stream and compares against its record.
func (s *Store) validateStream(id string, si *StreamInfo) (int64, error) {
	rac, size, err := s.S.Open(streamKey(id, si.Stream))
	if err != nil {
		return 0, err
	}
	defer rac.Close()
	if size != si.Size {
		return 0, fmt.Errorf("got %d bytes, expected %d", size, si.Size)
	}
	md5goal, err := hex.DecodeString(si.MD5)
	if err != nil {
		return 0, err
	}
	sha256goal, err := hex.DecodeString(si.SHA256)
	if err != nil {
		return 0, err
	}
	hw := util.NewHashWriterPlain()
	n, err := io.Copy(hw, store.NewReader(rac))
	if err != nil {
		return n, err
	}
	if _, ok := hw.CheckMD5(md5goal); !ok {
		return n, fmt.Errorf("MD5 mismatch")
	}
	if _, ok := hw.CheckSHA256(sha256goal); !ok {
		return n, fmt.Errorf("SHA256 mismatch")
	}
	return n, nil
}
