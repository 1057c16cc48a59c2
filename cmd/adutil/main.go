// adutil is an operator tool working directly against an exposure
// storage directory.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/stinyanont/DRAGONS/exposures"
	"github.com/stinyanont/DRAGONS/store"
)

var (
	storeDir = flag.String("s", ".", "location of the storage directory")
	usage    = `
adutil <command> <command arguments>

Possible commands:
    list

    info <exposure id list>

    dump <exposure id> <ext name> <ext ver>

    validate <exposure id list>

    delete <exposure id list>
`
)

func main() {
	flag.Parse()

	fmt.Printf("Using storage dir %s\n", *storeDir)
	r := exposures.New(store.NewFileSystem(*storeDir))

	args := flag.Args()
	if len(args) == 0 {
		fmt.Println(usage)
		return
	}
	switch args[0] {
	case "list":
		dolist(r)
	case "info":
		doinfo(r, args[1:])
	case "dump":
		if len(args) != 4 {
			fmt.Println(usage)
			return
		}
		dodump(r, args[1], args[2], args[3])
	case "validate":
		dovalidate(r, args[1:])
	case "delete":
		dodelete(r, args[1:])
	default:
		fmt.Println(usage)
	}
}

func dolist(r *exposures.Store) {
	for id := range r.List() {
		fmt.Println(id)
	}
}

func doinfo(r *exposures.Store, ids []string) {
	for _, id := range ids {
		ad, err := r.Load(id)
		if err != nil {
			fmt.Printf("%s: Error %s\n", id, err.Error())
			continue
		}
		info, _ := r.Info(id)
		fmt.Println("Exposure:", id)
		fmt.Println("SaveDate:", info.SaveDate)
		ad.Info(os.Stdout)
	}
}

// dodump copies the raw pixel stream of one extension to stdout.
func dodump(r *exposures.Store, id, name, ver string) {
	v, err := strconv.Atoi(ver)
	if err != nil {
		fmt.Printf("%s: bad version %s\n", id, ver)
		return
	}
	rc, _, err := r.OpenImage(id, name, v)
	if err != nil {
		fmt.Printf("%s / (%s, %d): Error %s\n", id, name, v, err.Error())
		return
	}
	io.Copy(os.Stdout, rc)
	rc.Close()
}

func dovalidate(r *exposures.Store, ids []string) {
	for _, id := range ids {
		n, problems, err := r.Validate(id)
		if err != nil {
			fmt.Printf("%s: Error %s\n", id, err.Error())
			continue
		}
		fmt.Printf("%s: %d bytes checked\n", id, n)
		for _, p := range problems {
			fmt.Println("  *", p)
		}
		if len(problems) == 0 {
			fmt.Println("  ok")
		}
	}
}

func dodelete(r *exposures.Store, ids []string) {
	for _, id := range ids {
		err := r.Delete(id)
		if err != nil {
			fmt.Printf("%s: Error %s\n", id, err.Error())
		}
	}
}
