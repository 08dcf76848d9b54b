// Package domain defines the core types of the onboarding engine.
//
// # Requests and facts
//
// OnboardingRequest carries a management address plus optional hints (site,
// role, platform, port, protocol, credentials reference). A driver turns a
// live session into RawDeviceFacts; the normalizer turns those into a
// vendor-neutral CanonicalDeviceDescriptor.
//
// # Inventory entities
//
// Inventory records are generic Entity values of a fixed set of kinds (site,
// manufacturer, device_type, platform, device_role, device, interface,
// ip_address). Each kind has an identity tuple; IdentityKey derives the
// unique key the store enforces.
//
// # Errors
//
// Every stage failure is an *OnboardError with an ErrorKind. Only
// unreachable and store_unavailable are retryable.
package domain
