// Package service implements the onboarding pipeline on top of the driver and
// repository layers.
//
// # Services
//
// Normalize converts driver-specific facts into a canonical descriptor using a
// table keyed by driver name. It performs no I/O.
//
// Reconciler writes a descriptor into the inventory store as one atomic unit:
// site, manufacturer, device type, platform, device, interfaces and the
// management address. Reconciles of the same hostname are serialized.
//
// Controller runs onboarding jobs through pending, connecting, normalizing,
// reconciling and a terminal state, retrying unreachable and store failures
// with exponential backoff.
//
// SecretsService resolves credential references from mounted secret
// directories and the environment.
//
// # Event System
//
// Job transitions and entity changes are published on an EventBus. Slow
// subscribers miss events rather than stall jobs.
package service
