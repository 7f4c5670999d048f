// Package selector parses and matches the client-side addressing primitive
// used to target one or more apps: by id, name, tag, or all.
package selector

import (
	"strconv"
	"strings"
)

// Kind distinguishes the four selector shapes.
type Kind int

const (
	KindAll Kind = iota
	KindID
	KindName
	KindTag
)

// Selector addresses one or more apps.
type Selector struct {
	Kind Kind
	ID   int64
	Name string
	Tag  string
}

// Parse interprets s per spec: "all" (case-insensitive) -> All; leading
// '@' -> ByTag; pure decimal -> ById; else -> ByName.
func Parse(s string) Selector {
	if strings.EqualFold(s, "all") {
		return Selector{Kind: KindAll}
	}
	if strings.HasPrefix(s, "@") {
		return Selector{Kind: KindTag, Tag: s[1:]}
	}
	if id, err := strconv.ParseInt(s, 10, 64); err == nil {
		return Selector{Kind: KindID, ID: id}
	}
	return Selector{Kind: KindName, Name: s}
}

// String renders the selector back to its textual form, such that
// Parse(s).String() == s for canonical input ("all" in lowercase, "@tag", a
// decimal id without sign or leading zeros, or a name); "ALL" renders as
// "all" and "007" as "7".
func (s Selector) String() string {
	switch s.Kind {
	case KindAll:
		return "all"
	case KindID:
		return strconv.FormatInt(s.ID, 10)
	case KindTag:
		return "@" + s.Tag
	default:
		return s.Name
	}
}

// App is the minimal shape a selector needs to match against; supervisor's
// app records satisfy this with their own concrete struct.
type App interface {
	AppID() int64
	AppName() string
	AppTags() []string
}

// Match reports whether the selector targets the given app.
func (s Selector) Match(a App) bool {
	switch s.Kind {
	case KindAll:
		return true
	case KindID:
		return a.AppID() == s.ID
	case KindName:
		return a.AppName() == s.Name
	case KindTag:
		for _, t := range a.AppTags() {
			if t == s.Tag {
				return true
			}
		}
		return false
	default:
		return false
	}
}
