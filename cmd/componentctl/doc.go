/*
componentctl registers and tracks supply chain components on the component
registry contract.

One-shot commands connect the configured signing key, run a single registry
operation and print the result as JSON:

	componentctl --key $KEY register --name "Brake assembly" --metadata '{"batch":7}'
	componentctl --key $KEY transfer --id 1 --to 0x...
	componentctl --key $KEY update-status --id 1 --status Shipped --details "dock 4"
	componentctl show --id 1 --format text
	componentctl history --id 1
	componentctl has-role --role DEFAULT_ADMIN_ROLE
	componentctl watch

The serve command exposes the same operations and a WebSocket stream of state
changes over HTTP, and serves Prometheus metrics on --metrics-addr.

With --dev the client runs against an in-memory registry with a random key,
which needs no node.

Every flag can also be set through a COMPONENTCTL_* environment variable,
e.g. COMPONENTCTL_RPC_ADDR.
*/
package main
