// Package trace provides types for trace event collection and analysis.
package trace

import "time"

// Tag represents a trace event category.
// Tags are stored without # prefix; the prefix is added on rendering.
type Tag string

// Standard tags for trace events.
const (
	Console  Tag = "console"
	File     Tag = "file"
	Libc     Tag = "libc"
	String   Tag = "string"
	Number   Tag = "number"
	Exit     Tag = "exit"
	Fallback Tag = "fallback"
	Failed   Tag = "failed"
)

// Tags is a collection of tags with helper methods.
type Tags []Tag

// Has returns true if the tag collection contains the given tag.
func (t Tags) Has(tag Tag) bool {
	for _, x := range t {
		if x == tag {
			return true
		}
	}
	return false
}

// Add adds a tag if not already present.
func (t *Tags) Add(tag Tag) {
	if !t.Has(tag) {
		*t = append(*t, tag)
	}
}

// Strings returns tags as strings with # prefix for display.
func (t Tags) Strings() []string {
	out := make([]string, len(t))
	for i, tag := range t {
		out[i] = "#" + string(tag)
	}
	return out
}

// Primary returns the first tag or empty string if none.
func (t Tags) Primary() Tag {
	if len(t) > 0 {
		return t[0]
	}
	return ""
}

// Annotations holds key-value metadata for trace events.
type Annotations map[string]string

// Set adds or updates an annotation.
func (a Annotations) Set(k, v string) {
	a[k] = v
}

// Get retrieves an annotation value.
func (a Annotations) Get(k string) string {
	return a[k]
}

// Event represents a trace event with rich metadata.
type Event struct {
	PC          uint64      // Return address of the stub call, 0 outside the emulator
	Tags        Tags        // First tag is the category
	Name        string      // Function name (e.g., "putc", "open")
	Detail      string      // Arguments and result (e.g., "fd=3 n=5 -> 5")
	Annotations Annotations // Key-value metadata
	Timestamp   time.Time
}

// NewEvent creates a new trace event with the given parameters.
func NewEvent(pc uint64, category, name, detail string) *Event {
	return &Event{
		PC:          pc,
		Tags:        Tags{Tag(category)},
		Name:        name,
		Detail:      detail,
		Annotations: make(Annotations),
		Timestamp:   time.Now(),
	}
}

// AddTag adds a tag to the event.
func (e *Event) AddTag(tag Tag) {
	e.Tags.Add(tag)
}

// Annotate sets an annotation on the event.
func (e *Event) Annotate(k, v string) {
	if e.Annotations == nil {
		e.Annotations = make(Annotations)
	}
	e.Annotations.Set(k, v)
}

// PrimaryTag returns the primary (first) tag with # prefix.
func (e *Event) PrimaryTag() string {
	if p := e.Tags.Primary(); p != "" {
		return "#" + string(p)
	}
	return ""
}

// Enricher enriches trace events based on category and name.
type Enricher func(e *Event)

// DefaultEnricher adds secondary tags based on the function name.
func DefaultEnricher(e *Event) {
	if len(e.Tags) == 0 {
		return
	}

	switch e.Name {
	case "putc", "putchar", "getc", "getchar":
		e.AddTag(Console)
	case "open", "read", "write", "close":
		e.AddTag(File)
	case "puts", "strlen":
		e.AddTag(String)
	case "atoi":
		e.AddTag(Number)
	case "exit", "_exit", "_Exit", "abort", "__stack_chk_fail":
		e.AddTag(Exit)
	}

	if e.Annotations.Get("ret") == "-1" {
		e.AddTag(Failed)
	}
}
