package session

import (
	nethttp "net/http"
	"strings"
	"sync"

	"github.com/glorpus-work/srtm1dl/internal/logger"
)

// Jar is an insertion-ordered cookie store without expiry handling. It is
// safe for concurrent use.
type Jar struct {
	mu     sync.RWMutex
	names  []string
	values map[string]string
}

// NewJar returns an empty jar.
func NewJar() *Jar {
	return &Jar{values: make(map[string]string)}
}

// Set stores value under name, keeping the position of an existing name.
func (j *Jar) Set(name, value string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.set(name, value)
}

func (j *Jar) set(name, value string) {
	if _, ok := j.values[name]; !ok {
		j.names = append(j.names, name)
	}
	j.values[name] = value
}

// Merge parses Set-Cookie header values and stores each name/value pair.
// Attributes are ignored. Unparsable values are skipped.
func (j *Jar) Merge(setCookies []string) int {
	j.mu.Lock()
	defer j.mu.Unlock()
	merged := 0
	for _, raw := range setCookies {
		c, err := nethttp.ParseSetCookie(raw)
		if err != nil {
			logger.Debug("ignoring malformed Set-Cookie", logger.Fields{"error": err.Error()})
			continue
		}
		j.set(c.Name, c.Value)
		merged++
	}
	return merged
}

// Get returns the value stored for name.
func (j *Jar) Get(name string) (string, bool) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	v, ok := j.values[name]
	return v, ok
}

// Len returns the number of cookies held.
func (j *Jar) Len() int {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return len(j.names)
}

// Header renders the jar as a Cookie header value: "a=1; b=2".
func (j *Jar) Header() string {
	j.mu.RLock()
	defer j.mu.RUnlock()
	var b strings.Builder
	for i, n := range j.names {
		if i > 0 {
			b.WriteString("; ")
		}
		b.WriteString(n)
		b.WriteByte('=')
		b.WriteString(j.values[n])
	}
	return b.String()
}
