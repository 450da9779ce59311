package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
)

// Resource is the server-side state of one organization or project.
type Resource struct {
	Name        string
	Description string
	UID         string
	// Statuses are served in order by successive reads; the last one sticks.
	Statuses []string
	// CreatedBy is the bearer token the creation request carried.
	CreatedBy string

	reads int
}

func (r *Resource) status() string {
	if len(r.Statuses) == 0 {
		return ""
	}
	i := r.reads
	if i >= len(r.Statuses) {
		i = len(r.Statuses) - 1
	}
	r.reads++
	return r.Statuses[i]
}

// EMF is a fake orchestration API serving /v1/orgs and /v1/projects.
type EMF struct {
	*httptest.Server

	// OnCreate, when set, is called with the collection ("orgs" or "projects") and the new
	// resource before the creation response is written. Tests use it to fix the UUID and
	// status sequence.
	OnCreate func(collection string, r *Resource)
	// RawList, when set for a collection, is served verbatim from the list endpoint.
	RawList map[string]string

	mu        sync.Mutex
	resources map[string]map[string]*Resource
}

// NewEMF starts a fake orchestration API.
func NewEMF(t *testing.T) *EMF {
	t.Helper()
	e := &EMF{
		RawList: map[string]string{},
		resources: map[string]map[string]*Resource{
			"orgs":     {},
			"projects": {},
		},
	}
	e.Server = httptest.NewServer(http.HandlerFunc(e.serve))
	t.Cleanup(e.Close)
	return e
}

// Put registers a resource directly.
func (e *EMF) Put(collection string, r *Resource) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.resources[collection][r.Name] = r
}

// Get returns a registered resource, or nil.
func (e *EMF) Get(collection, name string) *Resource {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.resources[collection][name]
}

func statusKey(collection string) string {
	if collection == "orgs" {
		return "orgStatus"
	}
	return "projectStatus"
}

func (e *EMF) render(collection string, r *Resource) map[string]any {
	details := map[string]any{}
	if s := r.status(); s != "" {
		details["statusIndicator"] = s
		details["message"] = s
	}
	if r.UID != "" {
		details["uID"] = r.UID
	}
	return map[string]any{
		"name":   r.Name,
		"spec":   map[string]string{"description": r.Description},
		"status": map[string]any{statusKey(collection): details},
	}
}

func (e *EMF) serve(w http.ResponseWriter, r *http.Request) {
	e.mu.Lock()
	defer e.mu.Unlock()

	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !strings.HasPrefix(token, "tok-") {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "unauthorized"})
		return
	}

	parts := strings.Split(strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/"), "/"), "/")
	collection := parts[0]
	items, ok := e.resources[collection]
	if !ok || len(parts) > 2 {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "not found"})
		return
	}

	if len(parts) == 1 {
		if raw, ok := e.RawList[collection]; ok {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(raw))
			return
		}
		out := []map[string]any{}
		for _, res := range items {
			out = append(out, e.render(collection, res))
		}
		writeJSON(w, http.StatusOK, out)
		return
	}

	name := parts[1]
	switch r.Method {
	case http.MethodPut:
		var body struct {
			Description string `json:"description"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"message": "invalid body"})
			return
		}
		res := &Resource{
			Name:        name,
			Description: body.Description,
			UID:         uuid.NewString(),
			Statuses:    []string{"STATUS_INDICATION_IDLE"},
			CreatedBy:   token,
		}
		if e.OnCreate != nil {
			e.OnCreate(collection, res)
		}
		items[name] = res
		writeJSON(w, http.StatusOK, e.render(collection, &Resource{Name: name, Description: body.Description}))
	case http.MethodGet:
		res, ok := items[name]
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]string{"message": name + " not found"})
			return
		}
		writeJSON(w, http.StatusOK, e.render(collection, res))
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}
