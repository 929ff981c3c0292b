package health

import (
	"encoding/json"
	"net/http"
)

// ReadinessReporter is implemented by components that need time before they
// can serve, such as the profile event consumer.
type ReadinessReporter interface {
	Readiness() (ready bool, partitions []int32)
}

// ReadinessFunc adapts a plain function to ReadinessReporter.
type ReadinessFunc func() (bool, []int32)

func (f ReadinessFunc) Readiness() (bool, []int32) { return f() }

type Check struct {
	Name     string
	Reporter ReadinessReporter
}

// Readiness reports ready only when every check is ready. Nil reporters
// count as ready.
func Readiness(checks ...Check) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		type component struct {
			Ready      bool    `json:"ready"`
			Partitions []int32 `json:"partitions,omitempty"`
		}
		type resp struct {
			Status     string               `json:"status"`
			Components map[string]component `json:"components,omitempty"`
		}
		out := resp{Status: "ready"}
		allReady := true
		for _, c := range checks {
			ready, parts := true, []int32(nil)
			if c.Reporter != nil {
				ready, parts = c.Reporter.Readiness()
			}
			if out.Components == nil {
				out.Components = map[string]component{}
			}
			comp := component{Ready: ready}
			if ready {
				comp.Partitions = parts
			}
			out.Components[c.Name] = comp
			allReady = allReady && ready
		}
		w.Header().Set("Content-Type", "application/json")
		if !allReady {
			out.Status = "not_ready"
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(out)
	}
}
