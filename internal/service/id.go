package service

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"
)

const idTimeLayout = "20060102150405"

// IDGenerator mints "{UTC yyyyMMddHHmmss}{µs}_{filename}" ids. Ids from one
// generator are strictly increasing: when the clock has not moved past the last
// issued microsecond the timestamp is bumped by one microsecond. Two processes
// uploading the same filename in the same microsecond collide.
type IDGenerator struct {
	mu   sync.Mutex
	last time.Time
	now  func() time.Time
}

func NewIDGenerator() *IDGenerator {
	return &IDGenerator{now: time.Now}
}

func (g *IDGenerator) Generate(filename string) string {
	id, _ := g.Next(filename)
	return id
}

// Next returns a new id along with the timestamp embedded in it.
func (g *IDGenerator) Next(filename string) (string, time.Time) {
	g.mu.Lock()
	t := g.now().UTC().Truncate(time.Microsecond)
	if !t.After(g.last) {
		t = g.last.Add(time.Microsecond)
	}
	g.last = t
	g.mu.Unlock()

	return formatIDTime(t) + "_" + sanitizeFilename(filename), t
}

// ParseIDTime recovers the timestamp prefix of an id.
func ParseIDTime(id string) (time.Time, bool) {
	prefix, _, found := strings.Cut(id, "_")
	if !found || len(prefix) != len(idTimeLayout)+6 {
		return time.Time{}, false
	}
	t, err := time.Parse(idTimeLayout, prefix[:len(idTimeLayout)])
	if err != nil {
		return time.Time{}, false
	}
	micros, err := strconv.Atoi(prefix[len(idTimeLayout):])
	if err != nil {
		return time.Time{}, false
	}
	return t.Add(time.Duration(micros) * time.Microsecond), true
}

func formatIDTime(t time.Time) string {
	return t.Format(idTimeLayout) + fmt.Sprintf("%06d", t.Nanosecond()/int(time.Microsecond))
}

// sanitizeFilename keeps ids a single path segment under each key prefix.
func sanitizeFilename(name string) string {
	name = strings.ReplaceAll(name, "/", "_")
	if name == "" {
		return "image"
	}
	return name
}
