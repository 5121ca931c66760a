// Package registry talks to the supply chain component registry contract.
//
// Client is the go-ethereum implementation of interfaces.RegistryHandle: a
// BoundContract built from the descriptor's ABI and address, transacting with
// the options of the signer it was created for. HandleFactory builds clients
// from a descriptor and validates that the ABI exposes every method and event
// the client relies on.
//
// MemoryRegistry is an in-memory registry with the same owner and role rules,
// used by development mode and tests. MockHandle, MockPendingTx and
// MockHandleFactory are testify mocks.
//
// The registry contract interface:
//
//	registerComponent(string name, string description, string initialMetadata) returns (uint256)
//	transferOwnership(uint256 componentId, address newOwner)
//	updateComponentStatus(uint256 componentId, string newStatus, string details)
//	getComponentDetails(uint256 componentId) view returns (Component)
//	getComponentHistory(uint256 componentId) view returns (HistoryEntry[])
//	hasRole(bytes32 role, address account) view returns (bool)
//
//	event ComponentRegistered(uint256 indexed componentId, address indexed manufacturer, string name)
//	event OwnershipTransferred(uint256 indexed componentId, address indexed from, address indexed to)
//	event StatusUpdated(uint256 indexed componentId, string newStatus, address indexed updatedBy)
package registry
