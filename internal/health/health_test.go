package health

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/blackwell-systems/emf-tenancy-control-plane/internal/config"
	"github.com/blackwell-systems/emf-tenancy-control-plane/internal/testutil"
)

func TestStatus(t *testing.T) {
	kc := testutil.NewKeycloak(t, "master")
	emf := testutil.NewEMF(t)
	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer broken.Close()

	tests := []struct {
		name              string
		identityURL       string
		realm             string
		orchestrationURL  string
		wantIdentity      ServiceStatus
		wantOrchestration ServiceStatus
	}{
		{
			name:              "both up",
			identityURL:       kc.URL,
			realm:             "master",
			orchestrationURL:  emf.URL,
			wantIdentity:      ServiceUp,
			wantOrchestration: ServiceUp,
		},
		{
			name:              "unknown realm",
			identityURL:       kc.URL,
			realm:             "tenants",
			orchestrationURL:  emf.URL,
			wantIdentity:      ServiceDegraded,
			wantOrchestration: ServiceUp,
		},
		{
			name:              "server errors and unreachable",
			identityURL:       "http://127.0.0.1:1",
			realm:             "master",
			orchestrationURL:  broken.URL,
			wantIdentity:      ServiceDown,
			wantOrchestration: ServiceDown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &config.Config{
				Identity:         config.IdentityConfig{URL: tt.identityURL, Realm: tt.realm},
				OrchestrationURL: tt.orchestrationURL,
			}
			report := Status(context.Background(), cfg, http.DefaultClient)

			if report.Identity.Status != tt.wantIdentity {
				t.Errorf("Identity = %s (%d, %v), want %s", report.Identity.Status, report.Identity.StatusCode, report.Identity.Err, tt.wantIdentity)
			}
			if report.Orchestration.Status != tt.wantOrchestration {
				t.Errorf("Orchestration = %s (%d), want %s", report.Orchestration.Status, report.Orchestration.StatusCode, tt.wantOrchestration)
			}
			wantHealthy := tt.wantIdentity == ServiceUp && tt.wantOrchestration == ServiceUp
			if report.Healthy() != wantHealthy {
				t.Errorf("Healthy() = %v", report.Healthy())
			}
		})
	}
}
