// Package version implements ordering, validation and bumping of
// version strings under the two supported conventions.
package version

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/mod/semver"

	"github.com/zjrosen/gto/internal/registry/errs"
)

// Convention selects how version strings are interpreted.
type Convention string

const (
	// Numbers is the v1, v2, v3 convention.
	Numbers Convention = "numbers"
	// SemVer is the v<MAJOR>.<MINOR>.<PATCH> convention per SemVer 2.0.0.
	SemVer Convention = "semver"
)

// Part selects which field a semver bump increments.
type Part string

const (
	Major Part = "major"
	Minor Part = "minor"
	Patch Part = "patch"
)

// Valid reports whether v is a well-formed version under the convention.
func Valid(v string, conv Convention) bool {
	switch conv {
	case Numbers:
		_, err := parseNumbered(v)
		return err == nil
	case SemVer:
		return validSemVer(v)
	default:
		return false
	}
}

func parseNumbered(v string) (int, error) {
	if len(v) < 2 || v[0] != 'v' {
		return 0, fmt.Errorf("missing v prefix")
	}
	digits := v[1:]
	if digits != "0" && strings.HasPrefix(digits, "0") {
		return 0, fmt.Errorf("leading zero")
	}
	n, err := strconv.Atoi(digits)
	if err != nil {
		return 0, err
	}
	if n < 1 {
		return 0, fmt.Errorf("numbered versions start at v1")
	}
	return n, nil
}

// validSemVer requires the full three-part form. x/mod/semver accepts
// shorthands like v1 and v1.2, which are not valid here.
func validSemVer(v string) bool {
	if !semver.IsValid(v) {
		return false
	}
	core := v
	if i := strings.IndexAny(core, "-+"); i >= 0 {
		core = core[:i]
	}
	return strings.Count(core, ".") == 2
}

// Compare orders a and b under the convention, returning -1, 0 or 1.
// Both inputs must already be valid.
func Compare(a, b string, conv Convention) int {
	if conv == Numbers {
		na, _ := parseNumbered(a)
		nb, _ := parseNumbered(b)
		switch {
		case na < nb:
			return -1
		case na > nb:
			return 1
		default:
			return 0
		}
	}
	// SemVer 2.0.0 precedence; build metadata is ignored by x/mod/semver.
	return semver.Compare(a, b)
}

// Bump computes the next version after previous. For Numbers the part is
// ignored. An empty previous yields the minimal version of the
// convention: v1 for Numbers, v0.0.1 for SemVer.
func Bump(previous string, part Part, conv Convention) (string, error) {
	if previous == "" {
		if conv == Numbers {
			return "v1", nil
		}
		return "v0.0.1", nil
	}
	if !Valid(previous, conv) {
		return "", errs.New(errs.KindValidation, "invalid %s version %q", conv, previous).WithInput(previous)
	}
	if conv == Numbers {
		n, _ := parseNumbered(previous)
		return fmt.Sprintf("v%d", n+1), nil
	}
	major, minor, patch, err := semverParts(previous)
	if err != nil {
		return "", errs.Wrap(errs.KindValidation, err, "invalid semver version %q", previous).WithInput(previous)
	}
	switch part {
	case Major:
		return fmt.Sprintf("v%d.0.0", major+1), nil
	case Minor:
		return fmt.Sprintf("v%d.%d.0", major, minor+1), nil
	case Patch, "":
		return fmt.Sprintf("v%d.%d.%d", major, minor, patch+1), nil
	default:
		return "", errs.New(errs.KindValidation, "unknown bump part %q", part).WithInput(string(part))
	}
}

func semverParts(v string) (major, minor, patch int, err error) {
	core := v[1:]
	if i := strings.IndexAny(core, "-+"); i >= 0 {
		core = core[:i]
	}
	fields := strings.SplitN(core, ".", 3)
	if len(fields) != 3 {
		return 0, 0, 0, fmt.Errorf("expected MAJOR.MINOR.PATCH, got %q", v)
	}
	if major, err = strconv.Atoi(fields[0]); err != nil {
		return
	}
	if minor, err = strconv.Atoi(fields[1]); err != nil {
		return
	}
	patch, err = strconv.Atoi(fields[2])
	return
}

// Prerelease reports whether v carries a pre-release suffix. Always
// false under Numbers.
func Prerelease(v string, conv Convention) bool {
	if conv != SemVer {
		return false
	}
	return semver.Prerelease(v) != ""
}

// Greatest returns the greatest version in vs under the convention.
// Pre-release versions are skipped unless includePrerelease is set or
// nothing else remains. Returns "" for an empty slice.
func Greatest(vs []string, conv Convention, includePrerelease bool) string {
	pick := func(candidates []string) string {
		best := ""
		for _, v := range candidates {
			if !Valid(v, conv) {
				continue
			}
			if best == "" || Compare(v, best, conv) > 0 {
				best = v
			}
		}
		return best
	}
	if !includePrerelease {
		stable := make([]string, 0, len(vs))
		for _, v := range vs {
			if !Prerelease(v, conv) {
				stable = append(stable, v)
			}
		}
		if best := pick(stable); best != "" {
			return best
		}
	}
	return pick(vs)
}
