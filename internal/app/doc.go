// Package app provides the application composition layer for the automation
// layer.
//
// # Architecture Role
//
// The app package sits above the platform layers and composes them into a
// running application. It is NOT a business logic layer - business logic
// belongs in internal/app/services/.
//
// # Package Structure
//
//	internal/app/
//	├── application.go      # Main application struct, wiring, and lifecycle
//	├── domain/             # Domain models (pure data structures)
//	│   ├── account/        # Tenant accounts
//	│   ├── lead/           # Prospect records and status changes
//	│   ├── workflow/       # Workflow definitions, executions, action logs
//	│   ├── task/           # Follow-up tasks created by workflows
//	│   └── messaging/      # Outbound message and receipt types
//	├── storage/            # Storage interfaces and implementations
//	│   ├── interfaces.go   # Store interfaces (AccountStore, LeadStore, etc.)
//	│   ├── memory/         # In-memory implementation for tests and dev
//	│   ├── postgres/       # PostgreSQL implementation for production
//	│   └── rediscache/     # Redis read-through cache for workflow lists
//	├── services/           # Business logic services
//	│   ├── accounts/       # Tenant management
//	│   ├── leads/          # Lead lifecycle; emits events to the engine
//	│   ├── workflows/      # Workflow CRUD, trigger engine, scheduler
//	│   ├── tasks/          # Task management
//	│   └── messaging/      # Channel providers (WhatsApp, email, SMS)
//	├── httpapi/            # HTTP API handlers and routing
//	├── system/             # Lifecycle management (Service, Manager)
//	└── metrics/            # Prometheus metrics
//
// # Responsibilities
//
// The app package is responsible for:
//
//   - Composing services with their stores and collaborators
//   - Defining storage interfaces that services depend on
//   - Providing domain models shared across services
//   - Exposing HTTP API endpoints for external access
//   - Managing application-level concerns (auth, metrics, audit)
//
// # Event Flow
//
// Lead lifecycle events drive the workflow engine synchronously:
//
//	httpapi ──► services/leads ──► services/workflows (engine)
//	                                      │
//	                                      ├──► services/messaging (send_*)
//	                                      └──► storage (executions, logs,
//	                                           lead updates, created tasks)
//
// The scheduler adds a second entry point for time-based triggers, polling
// the engine's due-scan on a fixed interval.
//
// # Example: Adding a New Action Type
//
//  1. Add the type constant to internal/app/domain/workflow/
//  2. Implement the action in services/workflows/engine.go runAction
//  3. Cover it in engine_test.go alongside the existing action tests
package app
