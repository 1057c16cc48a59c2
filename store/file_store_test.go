package store

import (
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestKeySubdir(t *testing.T) {
	var table = []struct{ input, output string }{
		{"x", "x/"},
		{"xy", "xy/"},
		{"xyz", "xy/z/"},
		{"wxyz", "wx/yz/"},
		{"vwxyz", "vw/xy/"},
		{"N20260615S0123-info", "N2/02/"},
	}
	for _, s := range table {
		result := keySubdir(s.input)
		if result != s.output {
			t.Errorf("Got %s, expected %s", result, s.output)
		}
	}
}

func TestIsKeyValid(t *testing.T) {
	var table = []struct {
		key string
		err error
	}{
		{"N20260615S0123-info", nil},
		{"a/b", ErrKeyContainsSlash},
		{"a b", ErrKeyContainsWhiteSpace},
		{"a\tb", ErrKeyContainsWhiteSpace},
		{"a\x01b", ErrKeyContainsControlChar},
		{"a\xc3\x28", ErrKeyContainsNonUnicode},
	}
	for _, test := range table {
		if err := isKeyValid(test.key); err != test.err {
			t.Errorf("isKeyValid(%q): got %v, expected %v", test.key, err, test.err)
		}
	}
}

func TestFSListPrefix(t *testing.T) {
	var files = []string{
		"ab/",
		"ab/cd/",
		"ab/cd/abcd-0001",
		"ab/cd/abcd-0002",
		"ab/cd/abcdef-info",
		"ab/ce/",
		"ab/ce/abcez-0001",
		"ab/qw/",
		"ab/qw/abqw-0001",
		"ac/",
		"ac/zx/",
		"ac/zx/aczx-0001",
		"bc/",
		"bc/de/",
		"bc/de/bcde-0001",
	}
	var table = []struct {
		prefix   string
		expected []string
	}{
		{"", []string{
			"abcd-0001",
			"abcd-0002",
			"abcdef-info",
			"abcez-0001",
			"abqw-0001",
			"aczx-0001",
			"bcde-0001",
		}},
		{"a", []string{
			"abcd-0001",
			"abcd-0002",
			"abcdef-info",
			"abcez-0001",
			"abqw-0001",
			"aczx-0001",
		}},
		{"ab", []string{
			"abcd-0001",
			"abcd-0002",
			"abcdef-info",
			"abcez-0001",
			"abqw-0001",
		}},
		{"abc", []string{
			"abcd-0001",
			"abcd-0002",
			"abcdef-info",
			"abcez-0001",
		}},
		{"abcd", []string{
			"abcd-0001",
			"abcd-0002",
			"abcdef-info",
		}},
		{"abcde", []string{
			"abcdef-info",
		}},
	}
	dir := makeTmpTree(files)
	defer os.RemoveAll(dir)
	s := NewFileSystem(dir)
	for _, tab := range table {
		t.Logf("Trying prefix %s", tab.prefix)
		result, err := s.ListPrefix(tab.prefix)
		if err != nil {
			t.Errorf("Got unexpected error: %s", err.Error())
		} else if !equal(tab.expected, result) {
			t.Errorf("Got result %v, expected %v", result, tab.expected)
		}
	}
}

func TestWalkTree(t *testing.T) {
	var files = []string{
		"ab/",
		"ab/cd/",
		"ab/cd/abcd-ext-0001",
		"ab/cd/abcd-ext-0002",
		"ab/cd/abcd-info",
		"ab/ce/",
		"ab/ce/abce-info",
		"xy/",
		"xy/zw/",
		"xy/zw/xyzw-ext-0001",
		"xy/zw/xyzw-info",
	}
	var goal = []string{
		"abcd-ext-0001",
		"abcd-ext-0002",
		"abcd-info",
		"abce-info",
		"xyzw-ext-0001",
		"xyzw-info",
	}
	dir := makeTmpTree(files)
	defer os.RemoveAll(dir)
	c := make(chan string)
	go walkTree(c, dir, 0)
	var result []string
	for name := range c {
		result = append(result, name)
		t.Log(name)
	}
	if len(result) != len(goal) {
		t.Errorf("Got %d keys, expected %d", len(result), len(goal))
	}
}

func TestFSRoundTrip(t *testing.T) {
	dir, _ := ioutil.TempDir("", "")
	defer os.RemoveAll(dir)
	for _, s := range []*FileSystem{NewFileSystem(dir), NewFileSystemMmap(dir)} {
		key := fmt.Sprintf("roundtrip-%v", s.mmap)
		add(t, s, key, "some pixel bytes")
		rac, size, err := s.Open(key)
		if err != nil {
			t.Fatalf("Got %v, expected nil", err)
		}
		if size != 16 {
			t.Errorf("Got size %d, expected 16", size)
		}
		buf := make([]byte, 5)
		if _, err := rac.ReadAt(buf, 5); err != nil {
			t.Errorf("Got %v, expected nil", err)
		}
		if string(buf) != "pixel" {
			t.Errorf("Got %s, expected pixel", buf)
		}
		rac.Close()

		// a second create under the same key must fail
		_, err = s.Create(key)
		if err != ErrKeyExists {
			t.Errorf("Got %v, expected ErrKeyExists", err)
		}

		if err := s.Delete(key); err != nil {
			t.Errorf("Got %v, expected nil", err)
		}
		if err := s.Delete(key); err != nil {
			t.Errorf("Got %v, expected nil deleting twice", err)
		}
		if _, _, err := s.Open(key); err == nil {
			t.Errorf("Got nil, expected an error opening a deleted key")
		}
	}
}

// returns abs path to the root of the new tree.
// remember to delete the new directory when finished.
func makeTmpTree(files []string) string {
	var data []byte
	root, _ := ioutil.TempDir("", "")
	for _, s := range files {
		var err error
		p := filepath.Join(root, s)
		if strings.HasSuffix(s, "/") {
			err = os.Mkdir(p, 0777)
		} else {
			err = ioutil.WriteFile(p, data, 0777)
		}
		if err != nil {
			fmt.Println(err)
		}
	}
	return root
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
