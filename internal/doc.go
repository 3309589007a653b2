// Package renovasjon implements a waste-collection schedule service
// backed by the public Renovasjonsportal API.
//
// # Architecture
//
// The service is structured into several key packages:
//   - api: HTTP client for the Renovasjonsportal address and schedule endpoints
//   - config: YAML configuration with environment overrides
//   - coordinator: fetch coalescing and the last-known schedule snapshot
//   - models: schedule data structures and date projections
//   - scheduler: periodic refresh trigger
//   - server: HTTP surface (readings, calendar feeds, refresh, diagnostics)
//   - commands: one-time address resolution CLI
//
// Key Features
//
//   - Snapshot semantics:
//     Each successful fetch replaces the schedule wholesale; a failed
//     fetch keeps the previous snapshot and records the error, so
//     consumers always see the last good data.
//
//   - Coalesced refreshes:
//     Any number of refresh triggers racing an in-flight fetch share its
//     result; the upstream API sees exactly one request.
//
//   - Calendar feeds:
//     Collection events are served as JSON and as an ICS subscription
//     feed with stable event UIDs.
//
// Example Usage
//
//	renovasjon search-address "Storgata 1, Oslo"
//	renovasjon -config config.yaml
//
// For more information about specific packages, see their respective
// documentation.
package renovasjon
