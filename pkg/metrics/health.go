package metrics

import (
	"encoding/json"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"
)

// Component names a part of the daemon that reports its health
type Component string

const (
	ComponentStorage Component = "storage"
	ComponentAPI     Component = "api"
	ComponentAgent   Component = "agent"
)

// Overall states reported by Health and Readiness
const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
	StatusReady     = "ready"
	StatusNotReady  = "not_ready"
)

// HealthStatus is the body of /health and /ready
type HealthStatus struct {
	Status     string            `json:"status"`
	Timestamp  time.Time         `json:"timestamp"`
	Components map[string]string `json:"components,omitempty"`
	Message    string            `json:"message,omitempty"`
	Version    string            `json:"version,omitempty"`
	Uptime     string            `json:"uptime,omitempty"`
}

// ComponentHealth is the last report of one component
type ComponentHealth struct {
	Healthy bool
	Message string
	Updated time.Time
}

// Registry collects component reports. Required components gate readiness;
// the others only degrade it. The daemon can keep serving its records while
// the node agent is unreachable, so the agent is optional by default.
type Registry struct {
	mu         sync.RWMutex
	required   map[Component]bool
	components map[Component]ComponentHealth
	startTime  time.Time
	version    string
}

// NewRegistry creates a registry with the given required components
func NewRegistry(required ...Component) *Registry {
	r := &Registry{
		required:   make(map[Component]bool, len(required)),
		components: make(map[Component]ComponentHealth),
		startTime:  time.Now(),
	}
	for _, c := range required {
		r.required[c] = true
	}
	return r
}

var defaultRegistry = NewRegistry(ComponentStorage, ComponentAPI)

// SetVersion sets the version string reported by the default registry
func SetVersion(version string) {
	defaultRegistry.SetVersion(version)
}

// SetComponent records a report in the default registry
func SetComponent(name Component, healthy bool, message string) {
	defaultRegistry.Set(name, healthy, message)
}

func (r *Registry) SetVersion(version string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.version = version
}

// Set records the current state of a component
func (r *Registry) Set(name Component, healthy bool, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.components[name] = ComponentHealth{Healthy: healthy, Message: message, Updated: time.Now()}
}

// Component returns the last report of name
func (r *Registry) Component(name Component) (ComponentHealth, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.components[name]
	return c, ok
}

// Health is unhealthy when a required component reports unhealthy and
// degraded when only optional ones do
func (r *Registry) Health() HealthStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	status := StatusHealthy
	components := make(map[string]string, len(r.components))
	for name, c := range r.components {
		if c.Healthy {
			components[string(name)] = StatusHealthy
			continue
		}
		components[string(name)] = StatusUnhealthy + ": " + c.Message
		if r.required[name] {
			status = StatusUnhealthy
		} else if status == StatusHealthy {
			status = StatusDegraded
		}
	}
	return r.status(status, "", components)
}

// Readiness is not_ready until every required component has reported healthy.
// Unhealthy optional components make it degraded but still ready to serve.
func (r *Registry) Readiness() HealthStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	components := make(map[string]string)
	var waiting, degraded []string

	for name := range r.required {
		c, ok := r.components[name]
		switch {
		case !ok:
			components[string(name)] = "not registered"
			waiting = append(waiting, string(name))
		case !c.Healthy:
			components[string(name)] = "not ready: " + c.Message
			waiting = append(waiting, string(name))
		default:
			components[string(name)] = StatusReady
		}
	}
	for name, c := range r.components {
		if r.required[name] {
			continue
		}
		if c.Healthy {
			components[string(name)] = StatusReady
		} else {
			components[string(name)] = StatusDegraded + ": " + c.Message
			degraded = append(degraded, string(name))
		}
	}

	sort.Strings(waiting)
	sort.Strings(degraded)
	switch {
	case len(waiting) > 0:
		return r.status(StatusNotReady, "waiting for "+strings.Join(waiting, ", "), components)
	case len(degraded) > 0:
		return r.status(StatusDegraded, "unavailable: "+strings.Join(degraded, ", "), components)
	}
	return r.status(StatusReady, "", components)
}

func (r *Registry) status(status, message string, components map[string]string) HealthStatus {
	return HealthStatus{
		Status:     status,
		Timestamp:  time.Now(),
		Components: components,
		Message:    message,
		Version:    r.version,
		Uptime:     time.Since(r.startTime).Round(time.Second).String(),
	}
}

// HealthHandler serves /health: 503 only when unhealthy
func (r *Registry) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		h := r.Health()
		writeStatus(w, h, h.Status != StatusUnhealthy)
	}
}

// ReadyHandler serves /ready: 503 while not ready
func (r *Registry) ReadyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		h := r.Readiness()
		writeStatus(w, h, h.Status != StatusNotReady)
	}
}

// LivenessHandler answers 200 while the process runs
func (r *Registry) LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"status": "alive",
			"uptime": time.Since(r.startTime).Round(time.Second).String(),
		})
	}
}

func writeStatus(w http.ResponseWriter, h HealthStatus, ok bool) {
	w.Header().Set("Content-Type", "application/json")
	if ok {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(h)
}

// HealthHandler serves /health from the default registry
func HealthHandler() http.HandlerFunc { return defaultRegistry.HealthHandler() }

// ReadyHandler serves /ready from the default registry
func ReadyHandler() http.HandlerFunc { return defaultRegistry.ReadyHandler() }

// LivenessHandler serves /live from the default registry
func LivenessHandler() http.HandlerFunc { return defaultRegistry.LivenessHandler() }
