// Package codec maps git tag names to typed events and back.
//
// Canonical grammars:
//
//	<name>@<version>            registration
//	<name>@<version>!           deregistration
//	<name>@deprecated           artifact deprecation
//	<name>@deprecated#<seq>     artifact deprecation, disambiguated
//	<name>#<stage>#<seq>        stage assignment (incremental form)
//	<name>#<stage>              stage assignment (simple form)
//	<name>#<stage>!#<seq>       stage unassignment (incremental form)
//	<name>#<stage>!             stage unassignment (simple form)
//
// Parsing is a single left-to-right pass: the leftmost sentinel (@ or #)
// classifies the tag. Tags matching no grammar are not errors, they are
// foreign tags and parse to nil.
package codec

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/zjrosen/gto/internal/registry/errs"
	"github.com/zjrosen/gto/internal/registry/event"
	"github.com/zjrosen/gto/internal/registry/version"
)

// deprecatedMark is the version slot spelling of an artifact-level
// deprecation tag.
const deprecatedMark = "deprecated"

// Parse decodes a tag name into an event, or nil when the name matches
// no grammar. Only Kind, Artifact, Version, Stage, Seq and Ref are
// populated; the collector enriches the rest from the tag object.
func Parse(name string, conv version.Convention) *event.Event {
	at := strings.IndexByte(name, '@')
	hash := strings.IndexByte(name, '#')

	switch {
	case at >= 0 && (hash < 0 || at < hash):
		return parseVersionTag(name, at, conv)
	case hash >= 0:
		return parseStageTag(name, hash)
	default:
		return nil
	}
}

func parseVersionTag(name string, at int, conv version.Convention) *event.Event {
	artifact, rest := name[:at], name[at+1:]
	if !event.ValidName(artifact) || rest == "" {
		return nil
	}

	// Artifact-level deprecation: <name>@deprecated[#<seq>]
	if rest == deprecatedMark {
		return &event.Event{
			Kind:     event.KindDeprecation,
			Artifact: artifact,
			Seq:      event.SeqAbsent,
			Ref:      name,
		}
	}
	if v, seqPart, ok := strings.Cut(rest, "#"); ok && v == deprecatedMark {
		seq, err := parseSeq(seqPart)
		if err != nil {
			return nil
		}
		return &event.Event{
			Kind:     event.KindDeprecation,
			Artifact: artifact,
			Seq:      seq,
			Ref:      name,
		}
	}

	kind := event.KindRegistration
	if strings.HasSuffix(rest, "!") {
		kind = event.KindDeregistration
		rest = rest[:len(rest)-1]
	}
	if !version.Valid(rest, conv) {
		return nil
	}
	return &event.Event{
		Kind:     kind,
		Artifact: artifact,
		Version:  rest,
		Seq:      event.SeqAbsent,
		Ref:      name,
	}
}

func parseStageTag(name string, hash int) *event.Event {
	artifact, rest := name[:hash], name[hash+1:]
	if !event.ValidName(artifact) || rest == "" {
		return nil
	}

	stage := rest
	seq := event.SeqAbsent
	if s, seqPart, ok := strings.Cut(rest, "#"); ok {
		n, err := parseSeq(seqPart)
		if err != nil {
			return nil
		}
		stage, seq = s, n
	}

	kind := event.KindAssignment
	if strings.HasSuffix(stage, "!") {
		kind = event.KindUnassignment
		stage = stage[:len(stage)-1]
	}
	if !event.ValidName(stage) {
		return nil
	}
	return &event.Event{
		Kind:     kind,
		Artifact: artifact,
		Stage:    stage,
		Seq:      seq,
		Ref:      name,
	}
}

func parseSeq(s string) (int, error) {
	if s == "" {
		return 0, fmt.Errorf("empty seq")
	}
	if len(s) > 1 && s[0] == '0' {
		return 0, fmt.Errorf("leading zero in seq %q", s)
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("bad seq %q", s)
	}
	return n, nil
}

// Format renders an event as a tag name, the inverse of Parse. Events
// produced by the mutator always round-trip: Parse(Format(e)) == e on
// the name-encoded fields.
func Format(e event.Event, conv version.Convention) (string, error) {
	if !event.ValidName(e.Artifact) {
		return "", errs.New(errs.KindValidation, "invalid artifact name %q", e.Artifact).WithInput(e.Artifact)
	}
	switch e.Kind {
	case event.KindRegistration, event.KindDeregistration:
		if !version.Valid(e.Version, conv) {
			return "", errs.New(errs.KindValidation, "invalid %s version %q", conv, e.Version).WithInput(e.Version)
		}
		suffix := ""
		if e.Kind == event.KindDeregistration {
			suffix = "!"
		}
		return e.Artifact + "@" + e.Version + suffix, nil
	case event.KindDeprecation:
		if e.Seq == event.SeqAbsent {
			return e.Artifact + "@" + deprecatedMark, nil
		}
		return fmt.Sprintf("%s@%s#%d", e.Artifact, deprecatedMark, e.Seq), nil
	case event.KindAssignment, event.KindUnassignment:
		if !event.ValidName(e.Stage) {
			return "", errs.New(errs.KindValidation, "invalid stage name %q", e.Stage).WithInput(e.Stage)
		}
		suffix := ""
		if e.Kind == event.KindUnassignment {
			suffix = "!"
		}
		if e.Seq == event.SeqAbsent {
			return e.Artifact + "#" + e.Stage + suffix, nil
		}
		return fmt.Sprintf("%s#%s%s#%d", e.Artifact, e.Stage, suffix, e.Seq), nil
	default:
		return "", errs.New(errs.KindValidation, "event kind %q has no tag form", e.Kind)
	}
}
