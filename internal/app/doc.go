// Package app provides the composition layer for the enrollment service.
//
// The package wires stores and domain services into a running application.
// It is NOT a business logic layer: lifecycle rules live in
// internal/app/services/, pure models in internal/app/domain/, and
// persistence behind the interfaces in internal/app/storage/.
//
//	internal/app/
//	├── application.go      # Application struct, wiring, and lifecycle
//	├── apperr/             # Typed error taxonomy with stable codes
//	├── domain/             # Domain models (pure data structures)
//	│   ├── application/    # Application, status machine, audit, enrollment
//	│   ├── interview/      # Interview outcome
//	│   ├── group/          # Read-only group attributes
//	│   └── identity/       # Resolved caller identity
//	├── storage/            # Store interfaces and implementations
//	│   ├── interfaces.go   # ApplicationStore, InterviewStore, ...
//	│   ├── memory/         # In-memory implementation for tests and dev
//	│   ├── postgres/       # PostgreSQL implementation for production
//	│   └── listcache/      # Redis-backed cache for read paths
//	├── services/           # Business logic (applications, interviews, access)
//	├── httpapi/            # HTTP handlers, routing, identity middleware
//	├── system/             # Lifecycle management
//	└── metrics/            # Prometheus collectors
//
// When adding a new domain: create models under domain/, extend
// storage/interfaces.go and both implementations, add the service under
// services/, wire it in application.go, and expose it in httpapi/.
package app
