package logging

import (
	"context"
	"log/slog"
	"slices"
)

// handlerBase holds what the buffer and journal handlers accumulate
// through WithAttrs and WithGroup.
type handlerBase struct {
	level  slog.Leveler
	attrs  []visitedAttr
	groups []string
}

// visitedAttr is an attribute together with the groups open when it was
// added.
type visitedAttr struct {
	path []string
	attr slog.Attr
}

func (b handlerBase) Enabled(_ context.Context, level slog.Level) bool {
	return level >= b.level.Level()
}

func (b handlerBase) withAttrs(attrs []slog.Attr) handlerBase {
	next := b
	next.attrs = slices.Clip(b.attrs)
	for _, a := range attrs {
		next.attrs = append(next.attrs, visitedAttr{path: b.groups, attr: a})
	}
	return next
}

func (b handlerBase) withGroup(name string) handlerBase {
	if name == "" {
		return b
	}
	next := b
	next.groups = append(slices.Clip(b.groups), name)
	return next
}

// visit calls fn for every leaf attribute of the handler and the record,
// in that order. Groups are flattened into path; empty attributes are
// skipped.
func (b handlerBase) visit(r slog.Record, fn func(path []string, a slog.Attr)) {
	for _, va := range b.attrs {
		visitAttr(va.path, va.attr, fn)
	}
	r.Attrs(func(a slog.Attr) bool {
		visitAttr(b.groups, a, fn)
		return true
	})
}

func visitAttr(path []string, a slog.Attr, fn func(path []string, a slog.Attr)) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}
	if a.Value.Kind() != slog.KindGroup {
		fn(path, a)
		return
	}
	nested := path
	if a.Key != "" {
		nested = append(slices.Clip(path), a.Key)
	}
	for _, ga := range a.Value.Group() {
		visitAttr(nested, ga, fn)
	}
}

// levelToString converts slog.Level to a lowercase string.
func levelToString(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return "error"
	case level >= slog.LevelWarn:
		return "warn"
	case level >= slog.LevelInfo:
		return "info"
	default:
		return "debug"
	}
}
