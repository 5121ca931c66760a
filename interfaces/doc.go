// Package interfaces defines the core types and capability interfaces of the
// supply chain registry client, separating interface definitions from their
// implementations.
//
// # State Types
//
// ConnectionState is the snapshot published by the wallet session. BindingState
// is the snapshot published by the registry binding, optionally accompanied by a
// DomainEvent. Notification is a single entry of the notification queue.
//
// # Capability Interfaces
//
// WalletProvider and Signer represent the external signing identity.
// RegistryHandle and PendingTx represent a registry contract bound to a signer.
// HandleFactory derives handles from a Descriptor, which in turn is fetched
// from a DescriptorSource. Navigator lets components request a view change
// without reaching for an ambient router.
//
// # Errors
//
// Every error kind surfaced by the client has a sentinel in errors.go so that
// callers can classify failures with errors.Is.
package interfaces
