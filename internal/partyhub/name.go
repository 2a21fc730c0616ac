// Package partyhub names the party hub groups this service manages.
package partyhub

import (
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var canonicalPattern = regexp.MustCompile(`^\d{3,4}[A-Z0-9]+$`)

// Target is a group the local player is in or is headed for.
type Target struct {
	Name      string
	Canonical bool
}

func NewTarget(name string) Target {
	return Target{Name: name, Canonical: IsCanonical(name)}
}

// IsCanonical reports whether name has the <world><LEADER> shape of a group
// created by this service, e.g. 330WISEOLDMAN or 416JOHNCENA.
func IsCanonical(name string) bool {
	if len(name) < 4 {
		return false
	}
	return canonicalPattern.MatchString(name)
}

// CanonicalName builds the group name for a leader on a world.
func CanonicalName(world int, leader string) string {
	return strconv.Itoa(world) + cases.Upper(language.Und).String(strings.TrimSpace(leader))
}

// CanonicalLeader reports whether a leader name would yield a canonical
// group name on any valid world.
func CanonicalLeader(leader string) bool {
	return IsCanonical(CanonicalName(100, leader))
}

// Same compares group names the way the host does, ignoring case.
func Same(a, b string) bool {
	return strings.EqualFold(a, b)
}

func ValidWorld(world int) bool {
	return world > 0
}
