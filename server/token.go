package server

import (
	"bufio"
	"io"
	"os"
	"sort"
	"strings"
)

// A TokenDecoder validates and decodes the API keys passed in the
// X-Api-Key header. An invalid token decodes to the user "" with
// RoleUnknown. An error is returned only if the lookup itself failed
// and the status of the token is unknown.
type TokenDecoder interface {
	TokenDecode(token string) (user string, role Role, err error)
}

// A Role scopes what an API key may do. Roles are ordered, and a route
// requires at least its stated role.
type Role int

const (
	RoleUnknown Role = iota
	RoleMDOnly       // metadata reads only
	RoleRead         // payload reads
	RoleWrite        // appends and creates
	RoleAdmin        // exposure deletion
)

func atoRole(s string) Role {
	switch strings.ToLower(s) {
	case "mdonly":
		return RoleMDOnly
	case "read":
		return RoleRead
	case "write":
		return RoleWrite
	case "admin":
		return RoleAdmin
	default:
		return RoleUnknown
	}
}

// NewNobodyDecoder creates a TokenDecoder giving every possible token a
// user named "nobody" with the Admin role.
func NewNobodyDecoder() TokenDecoder {
	return nobodyDecoder{}
}

type nobodyDecoder struct{}

func (nobodyDecoder) TokenDecode(token string) (string, Role, error) {
	return "nobody", RoleAdmin, nil
}

// A list decoder is backed by a predefined list of users read from r
// upon creation. Each line of r is one entry of the form
//
//	<user name>  <role>  <token>
//
// with fields separated by whitespace, so neither the user name nor the
// token may contain spaces. The role is one of "MDOnly", "Read",
// "Write", "Admin" (case insensitive). Empty lines and lines beginning
// with a hash '#' are skipped.
func NewListDecoder(r io.Reader) (TokenDecoder, error) {
	var users []userEntry
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		pieces := strings.Fields(scanner.Text())
		if len(pieces) == 0 || pieces[0][0] == '#' {
			continue
		}
		if len(pieces) != 3 {
			// wrong number of columns
			continue
		}
		users = append(users, userEntry{
			token: pieces[2],
			user:  pieces[0],
			role:  atoRole(pieces[1]),
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	sort.Slice(users, func(i, j int) bool { return users[i].token < users[j].token })
	return listDecoder{users}, nil
}

// NewListDecoderFile reads the contents of the given file into a list
// decoder. The file has the format NewListDecoder expects.
func NewListDecoderFile(fname string) (TokenDecoder, error) {
	f, err := os.Open(fname)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return NewListDecoder(f)
}

type userEntry struct {
	token string
	user  string
	role  Role
}

type listDecoder struct {
	data []userEntry // sorted by token
}

func (ld listDecoder) TokenDecode(token string) (string, Role, error) {
	users := ld.data
	i := sort.Search(len(users), func(i int) bool { return users[i].token >= token })
	if i < len(users) && users[i].token == token {
		return users[i].user, users[i].role, nil
	}
	return "", RoleUnknown, nil
}
