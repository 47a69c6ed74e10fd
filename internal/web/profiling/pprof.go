// Package profiling serves pprof profiles and runtime statistics for the
// serving process. The handler is mounted behind the admin permission
// check; it must never be reachable anonymously.
package profiling

import (
	"net/http"
	"net/http/pprof"
	"runtime"

	"github.com/go-chi/chi/v5"

	"github.com/conduit-lang/hierroutes/internal/web/response"
)

// Path is the mount point below the admin prefix
const Path = "/debug/pprof"

// Config holds profiling configuration
type Config struct {
	// BlockRate is passed to runtime.SetBlockProfileRate; 0 leaves it off
	BlockRate int
	// MutexFraction is passed to runtime.SetMutexProfileFraction; 0 leaves it off
	MutexFraction int
}

// profiles are the named runtime profiles served next to the index
var profiles = []string{"allocs", "block", "goroutine", "heap", "mutex", "threadcreate"}

// Handler returns a router serving the pprof endpoints and /stats relative
// to its mount point
func Handler(config Config) http.Handler {
	if config.BlockRate > 0 {
		runtime.SetBlockProfileRate(config.BlockRate)
	}
	if config.MutexFraction > 0 {
		runtime.SetMutexProfileFraction(config.MutexFraction)
	}

	r := chi.NewRouter()
	r.Get("/", pprof.Index)
	r.Get("/cmdline", pprof.Cmdline)
	r.Get("/profile", pprof.Profile)
	r.Get("/symbol", pprof.Symbol)
	r.Post("/symbol", pprof.Symbol)
	r.Get("/trace", pprof.Trace)
	for _, name := range profiles {
		r.Handle("/"+name, pprof.Handler(name))
	}
	r.Get("/stats", StatsHandler)
	return r
}

// Stats is a snapshot of the runtime counters
type Stats struct {
	Goroutines int         `json:"goroutines"`
	Memory     MemoryStats `json:"memory"`
	CPU        CPUStats    `json:"cpu"`
}

// MemoryStats holds the heap counters of Stats
type MemoryStats struct {
	Alloc      uint64 `json:"alloc"`
	TotalAlloc uint64 `json:"total_alloc"`
	Sys        uint64 `json:"sys"`
	NumGC      uint32 `json:"num_gc"`
}

// CPUStats holds the processor counters of Stats
type CPUStats struct {
	NumCPU     int   `json:"num_cpu"`
	NumCgoCall int64 `json:"num_cgo_call"`
}

// RuntimeStats reads the current runtime statistics
func RuntimeStats() Stats {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	return Stats{
		Goroutines: runtime.NumGoroutine(),
		Memory: MemoryStats{
			Alloc:      m.Alloc,
			TotalAlloc: m.TotalAlloc,
			Sys:        m.Sys,
			NumGC:      m.NumGC,
		},
		CPU: CPUStats{
			NumCPU:     runtime.NumCPU(),
			NumCgoCall: runtime.NumCgoCall(),
		},
	}
}

// StatsHandler writes RuntimeStats as JSON
func StatsHandler(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, http.StatusOK, RuntimeStats())
}
