// Package emf-tenancy-control-plane provisions tenants on an Edge Manageability Framework
// (EMF) cluster.
//
// # Overview
//
// The emf-tenancy CLI drives two services:
//   - Keycloak, which holds users and the role groups EMF derives from resource UUIDs
//   - the EMF API, which creates organizations and projects asynchronously
//
// Every dependent step waits for eventually consistent state: a resource becoming idle, its
// UUID appearing, its role groups being created.
//
// # Installation
//
//	go install github.com/blackwell-systems/emf-tenancy-control-plane/cmd/emf-tenancy@latest
//
// # Quick Start
//
//	export CLUSTER_FQDN=cluster.example.com
//	emf-tenancy status
//	emf-tenancy org create --name acme
//	emf-tenancy project create --org acme --name edge-1
//	emf-tenancy user manage --username bob --create --org acme --role project-user --all-projects
//
// # Architecture
//
//   - internal/session: OpenID Connect password-grant sessions
//   - internal/identity, internal/orchestration: REST adapters over internal/restclient
//   - internal/membership: group naming, membership rules and role templates
//   - internal/poll: bounded polling for eventually consistent state
//   - internal/workflow: the provisioning use cases
//   - internal/cli: the command tree
package main
