// Package health probes the identity and orchestration services before any workflow runs.
package health

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/sourcegraph/conc"

	"github.com/blackwell-systems/emf-tenancy-control-plane/internal/config"
)

// ProbeTimeout bounds each probe.
const ProbeTimeout = 5 * time.Second

// ServiceStatus represents the status of a service
type ServiceStatus int

const (
	ServiceUnknown ServiceStatus = iota
	ServiceUp
	ServiceDown
	ServiceDegraded
)

func (s ServiceStatus) String() string {
	switch s {
	case ServiceUp:
		return "up"
	case ServiceDown:
		return "down"
	case ServiceDegraded:
		return "degraded"
	default:
		return "unknown"
	}
}

// Probe is the result of checking one service.
type Probe struct {
	Name       string
	URL        string
	Status     ServiceStatus
	StatusCode int
	Latency    time.Duration
	Err        error
}

// Report represents the status of both services
type Report struct {
	Identity      Probe
	Orchestration Probe
}

// Healthy reports whether both services are up.
func (r *Report) Healthy() bool {
	return r.Identity.Status == ServiceUp && r.Orchestration.Status == ServiceUp
}

// Status probes both services concurrently. The identity service is up when the realm's
// public endpoint answers 200. The orchestration service needs a token for everything, so
// any answer below 500 (typically 401) counts as up.
func Status(ctx context.Context, cfg *config.Config, client *http.Client) *Report {
	report := &Report{
		Identity: Probe{
			Name: "Keycloak",
			URL:  cfg.Identity.URL + "/realms/" + url.PathEscape(cfg.Identity.Realm),
		},
		Orchestration: Probe{
			Name: "EMF API",
			URL:  cfg.OrchestrationURL + "/v1/orgs",
		},
	}

	var wg conc.WaitGroup
	wg.Go(func() {
		checkHealth(ctx, client, &report.Identity, func(code int) ServiceStatus {
			switch {
			case code == http.StatusOK:
				return ServiceUp
			case code == http.StatusNotFound:
				// Server reachable, realm missing
				return ServiceDegraded
			default:
				return ServiceDown
			}
		})
	})
	wg.Go(func() {
		checkHealth(ctx, client, &report.Orchestration, func(code int) ServiceStatus {
			if code < http.StatusInternalServerError {
				return ServiceUp
			}
			return ServiceDown
		})
	})
	wg.Wait()

	return report
}

func checkHealth(ctx context.Context, client *http.Client, p *Probe, classify func(int) ServiceStatus) {
	ctx, cancel := context.WithTimeout(ctx, ProbeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.URL, nil)
	if err != nil {
		p.Status = ServiceUnknown
		p.Err = err
		return
	}

	started := time.Now()
	resp, err := client.Do(req)
	p.Latency = time.Since(started)
	if err != nil {
		p.Status = ServiceDown
		p.Err = err
		return
	}
	defer resp.Body.Close()

	p.StatusCode = resp.StatusCode
	p.Status = classify(resp.StatusCode)
}
