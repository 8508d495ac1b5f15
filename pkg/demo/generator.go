package demo

import (
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/DeBrosOfficial/logwatch/pkg/logs"
)

type template struct {
	level   logs.Level
	source  string
	weight  int
	message func(r *rand.Rand) string
}

var paths = []string{"/api/users", "/api/orders", "/healthz", "/api/login", "/static/app.js"}

var templates = []template{
	{logs.LevelInfo, "web-server", 40, func(r *rand.Rand) string {
		return fmt.Sprintf("GET %s 200 %dms", paths[r.IntN(len(paths))], 2+r.IntN(120))
	}},
	{logs.LevelInfo, "web-server", 10, func(r *rand.Rand) string {
		return fmt.Sprintf("POST /api/orders 201 %dms", 20+r.IntN(300))
	}},
	{logs.LevelInfo, "worker", 10, func(r *rand.Rand) string {
		return fmt.Sprintf("job %04d completed in %.1fs", r.IntN(10000), r.Float64()*5)
	}},
	{logs.LevelDebug, "worker", 12, func(r *rand.Rand) string {
		return fmt.Sprintf("polling queue depth=%d", r.IntN(50))
	}},
	{logs.LevelWarn, "web-server", 8, func(r *rand.Rand) string {
		return fmt.Sprintf("slow request GET %s took %dms", paths[r.IntN(len(paths))], 800+r.IntN(2000))
	}},
	{logs.LevelWarn, "db", 6, func(r *rand.Rand) string {
		return fmt.Sprintf("connection pool at %d%% capacity", 70+r.IntN(30))
	}},
	{logs.LevelError, "db", 4, func(r *rand.Rand) string {
		return "query timeout after 5000ms: SELECT * FROM orders WHERE status = $1"
	}},
	{logs.LevelError, "web-server", 3, func(r *rand.Rand) string {
		return fmt.Sprintf("GET %s 500 upstream reset", paths[r.IntN(len(paths))])
	}},
	{logs.LevelFatal, "worker", 1, func(r *rand.Rand) string {
		return "out of memory: killing process"
	}},
}

var totalWeight = func() int {
	n := 0
	for _, t := range templates {
		n += t.weight
	}
	return n
}()

// Generator produces plausible log entries for a set of resources.
type Generator struct {
	mu        sync.Mutex
	rnd       *rand.Rand
	resources []string
	env       string
	version   string
}

// NewGenerator creates a generator. The same seed yields the same sequence.
func NewGenerator(seed uint64, resources ...string) *Generator {
	return &Generator{
		rnd:       rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		resources: resources,
		env:       "production",
		version:   "1.2.3",
	}
}

// Next returns one entry stamped at now for one of ids (or any resource
// when ids is empty).
func (g *Generator) Next(now time.Time, ids ...string) logs.LogEntry {
	g.mu.Lock()
	defer g.mu.Unlock()

	if len(ids) == 0 {
		ids = g.resources
	}
	resource := "srv-unknown"
	if len(ids) > 0 {
		resource = ids[g.rnd.IntN(len(ids))]
	}

	pick := g.rnd.IntN(totalWeight)
	t := templates[len(templates)-1]
	for _, cand := range templates {
		if pick < cand.weight {
			t = cand
			break
		}
		pick -= cand.weight
	}

	return logs.LogEntry{
		Timestamp:  now.UTC(),
		Level:      t.level,
		Message:    t.message(g.rnd),
		Source:     t.source,
		ResourceID: resource,
		Labels: map[string]string{
			"environment": g.env,
			"version":     g.version,
			"instance":    fmt.Sprintf("%s-%d", resource, g.rnd.IntN(3)),
		},
	}
}

// Batch returns n entries spread over the interval ending at now.
func (g *Generator) Batch(now time.Time, n int, span time.Duration, ids ...string) []logs.LogEntry {
	out := make([]logs.LogEntry, 0, n)
	for i := 0; i < n; i++ {
		offset := time.Duration(0)
		if n > 1 {
			offset = span * time.Duration(n-1-i) / time.Duration(n)
		}
		out = append(out, g.Next(now.Add(-offset), ids...))
	}
	return out
}
