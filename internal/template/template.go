// Package template expands the $x-style directives allowed in alert
// subjects, messages and SCP destination paths. One tokenizer feeds
// three renderers; each renderer only differs in its directive table,
// and unknown directives are echoed back literally.
package template

import (
	"fmt"
	"strings"
	"time"

	"vulnalert/pkg/models"
)

// Context carries everything a directive may reference.
type Context struct {
	Event models.Event
	Alert *models.Alert
	Task  *models.Task
	Actor models.Actor

	// TotalCount backs $T: result total for task events, feed count
	// for SecInfo events.
	TotalCount int

	// Message-renderer fields.
	HostSummary    string
	Report         string
	MaxIncludeSize int
	FormatName     string
	FilterName     string
	FilterTerm     string
	Timezone       string

	// Now overrides the clock for the SCP path renderer; zero means
	// time.Now().
	Now time.Time
}

func (c *Context) now() time.Time {
	if c.Now.IsZero() {
		return time.Now()
	}
	return c.Now
}

func (c *Context) taskName() string {
	if c.Task == nil {
		return ""
	}
	return c.Task.Name
}

func (c *Context) alertName() string {
	if c.Alert == nil {
		return ""
	}
	return c.Alert.Name
}

// username backs $u: the acting user, falling back to the alert owner.
func (c *Context) username() string {
	if c.Actor.Username != "" {
		return c.Actor.Username
	}
	if c.Alert != nil {
		return c.Alert.Owner
	}
	return ""
}

func (c *Context) truncated() bool {
	return c.MaxIncludeSize > 0 && len(c.Report) > c.MaxIncludeSize
}

// TruncationNotice is the text appended to an inlined report cut off
// at the include-size limit.
func TruncationNotice(max int) string {
	return fmt.Sprintf("... (report truncated after %d characters)", max)
}

func (c *Context) inlineReport() string {
	if !c.truncated() {
		return c.Report
	}
	return c.Report[:c.MaxIncludeSize] + "\n" + TruncationNotice(c.MaxIncludeSize) + "\n"
}

type directiveFunc func(*Context) string

// Renderer expands one directive table over template text.
type Renderer struct {
	directives map[byte]directiveFunc
}

// Expand renders the template. A $ consumes exactly the next
// character; directives outside the table come back as $<char>, and a
// trailing lone $ is kept.
func (r *Renderer) Expand(tmpl string, ctx *Context) string {
	var b strings.Builder
	for i := 0; i < len(tmpl); i++ {
		if tmpl[i] != '$' {
			b.WriteByte(tmpl[i])
			continue
		}
		if i+1 >= len(tmpl) {
			b.WriteByte('$')
			break
		}
		i++
		if fn, ok := r.directives[tmpl[i]]; ok {
			b.WriteString(fn(ctx))
		} else {
			b.WriteByte('$')
			b.WriteByte(tmpl[i])
		}
	}
	return b.String()
}

func subjectDirectives() map[byte]directiveFunc {
	return map[byte]directiveFunc{
		'$': func(*Context) string { return "$" },
		'c': func(c *Context) string {
			if c.Alert == nil {
				return ""
			}
			return c.Alert.ConditionDescription()
		},
		'd': func(c *Context) string {
			if c.Event.SecInfoCheckTime == 0 {
				return ""
			}
			return time.Unix(c.Event.SecInfoCheckTime, 0).UTC().Format("2006-01-02")
		},
		'e': func(c *Context) string { return c.Event.Description() },
		'n': func(c *Context) string { return c.taskName() },
		'N': func(c *Context) string { return c.alertName() },
		'q': func(c *Context) string {
			switch c.Event.Kind {
			case models.EventNewSecInfo:
				return "New"
			case models.EventUpdatedSecInfo:
				return "Updated"
			default:
				return ""
			}
		},
		's': func(c *Context) string { return models.SecInfoTypeName(c.Event.SecInfoType, false) },
		'S': func(c *Context) string { return models.SecInfoTypeName(c.Event.SecInfoType, true) },
		'T': func(c *Context) string { return fmt.Sprintf("%d", c.TotalCount) },
		'u': func(c *Context) string { return c.username() },
		'U': func(c *Context) string {
			if c.Alert == nil {
				return ""
			}
			return c.Alert.ID
		},
	}
}

// NewSubjectRenderer returns the renderer for alert subject lines.
func NewSubjectRenderer() *Renderer {
	return &Renderer{directives: subjectDirectives()}
}

// NewMessageRenderer returns the renderer for alert message bodies. It
// understands every subject directive plus the report-content ones.
func NewMessageRenderer() *Renderer {
	d := subjectDirectives()
	d['H'] = func(c *Context) string { return c.HostSummary }
	d['i'] = func(c *Context) string { return c.inlineReport() }
	d['r'] = func(c *Context) string { return c.FormatName }
	d['F'] = func(c *Context) string { return c.FilterName }
	d['f'] = func(c *Context) string { return c.FilterTerm }
	d['t'] = func(c *Context) string {
		if !c.truncated() {
			return ""
		}
		return TruncationNotice(c.MaxIncludeSize)
	}
	d['z'] = func(c *Context) string { return c.Timezone }
	return &Renderer{directives: d}
}

// NewRestrictedRenderer builds a renderer over a caller-supplied
// directive table, for methods allowing only a directive subset.
func NewRestrictedRenderer(directives map[byte]func(*Context) string) *Renderer {
	d := make(map[byte]directiveFunc, len(directives))
	for ch, fn := range directives {
		d[ch] = fn
	}
	return &Renderer{directives: d}
}

// NewSCPPathRenderer returns the minimal renderer for SCP destination
// paths: $D (date), $T (time), $n (task name) and $$ only.
func NewSCPPathRenderer() *Renderer {
	return &Renderer{directives: map[byte]directiveFunc{
		'$': func(*Context) string { return "$" },
		'D': func(c *Context) string { return c.now().Format("20060102") },
		'T': func(c *Context) string { return c.now().Format("150405") },
		'n': func(c *Context) string { return c.taskName() },
	}}
}
