package util

import (
	"bytes"
	"encoding/hex"
	"strings"
	"testing"
)

func TestHashWriter(t *testing.T) {
	const input = "hello1 hello2 hello3 hello4 hello5abcdefghijklmnopqrstuvwxyz0123456789"
	goalMD5, _ := hex.DecodeString("0101fc798d94a730b0f0bf1bd2cc1959")
	goalSHA256, _ := hex.DecodeString("fef15edd82b33633582c723562d192fec2d2003df12d4aeac89df17c279a1658")
	var w = new(bytes.Buffer)
	hw := NewHashWriter(w)
	hw.Write([]byte(input))
	if h, ok := hw.CheckMD5(goalMD5); !ok {
		t.Fatalf("Got %v, expected %v", h, goalMD5)
	}
	if h, ok := hw.CheckSHA256(goalSHA256); !ok {
		t.Fatalf("Got %v, expected %v", h, goalSHA256)
	}
	if w.String() != input {
		t.Errorf("Got %q, expected the data to pass through", w.String())
	}

	ok, err := VerifyStreamHash(strings.NewReader(input), goalMD5, goalSHA256)
	if err != nil || !ok {
		t.Errorf("Got %v/%v, expected a clean verification", ok, err)
	}
	ok, err = VerifyStreamHash(strings.NewReader(input+"!"), goalMD5, nil)
	if err != nil || ok {
		t.Errorf("Got %v/%v, expected a failed verification", ok, err)
	}
}
