// Package node defines the identity of a query-serving node.
package node

import (
	"fmt"
	"regexp"
)

// DefaultID is used when the configuration does not name the node.
const DefaultID ID = "default"

// MaxLength is the maximum number of characters in a node ID.
const MaxLength = 63

var validID = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// ID identifies a node in a deployment. It is reported to clients and
// attached to every response, so it must be safe to embed in headers and URLs.
//
// Valid IDs are 1 to 63 characters long and contain only ASCII letters,
// digits and underscores.
type ID string

// New validates s and returns it as an ID.
func New(s string) (ID, error) {
	if len(s) == 0 || len(s) > MaxLength {
		return "", fmt.Errorf("invalid node id %q: length must be between 1 and %d", s, MaxLength)
	}
	if !validID.MatchString(s) {
		return "", fmt.Errorf("invalid node id %q: only letters, digits and underscores are allowed", s)
	}
	return ID(s), nil
}

// MustNew is like New but panics on an invalid ID.
func MustNew(s string) ID {
	id, err := New(s)
	if err != nil {
		panic(err)
	}
	return id
}

func (id ID) String() string {
	return string(id)
}
