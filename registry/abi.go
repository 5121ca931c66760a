package registry

// SupplyChainABI is the interface of the registry contract. It is used when a
// descriptor is generated locally, for example in development mode.
const SupplyChainABI = `[
  {"type":"function","name":"registerComponent","stateMutability":"nonpayable",
   "inputs":[{"name":"name","type":"string"},{"name":"description","type":"string"},{"name":"initialMetadata","type":"string"}],
   "outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"transferOwnership","stateMutability":"nonpayable",
   "inputs":[{"name":"componentId","type":"uint256"},{"name":"newOwner","type":"address"}],
   "outputs":[]},
  {"type":"function","name":"updateComponentStatus","stateMutability":"nonpayable",
   "inputs":[{"name":"componentId","type":"uint256"},{"name":"newStatus","type":"string"},{"name":"details","type":"string"}],
   "outputs":[]},
  {"type":"function","name":"getComponentDetails","stateMutability":"view",
   "inputs":[{"name":"componentId","type":"uint256"}],
   "outputs":[{"name":"","type":"tuple","internalType":"struct SupplyChain.Component","components":[
     {"name":"id","type":"uint256"},
     {"name":"name","type":"string"},
     {"name":"description","type":"string"},
     {"name":"currentOwner","type":"address"},
     {"name":"currentStatus","type":"string"},
     {"name":"timestamp","type":"uint256"},
     {"name":"initialMetadata","type":"string"}]}]},
  {"type":"function","name":"getComponentHistory","stateMutability":"view",
   "inputs":[{"name":"componentId","type":"uint256"}],
   "outputs":[{"name":"","type":"tuple[]","internalType":"struct SupplyChain.HistoryEntry[]","components":[
     {"name":"action","type":"string"},
     {"name":"details","type":"string"},
     {"name":"by","type":"address"},
     {"name":"timestamp","type":"uint256"}]}]},
  {"type":"function","name":"hasRole","stateMutability":"view",
   "inputs":[{"name":"role","type":"bytes32"},{"name":"account","type":"address"}],
   "outputs":[{"name":"","type":"bool"}]},
  {"type":"event","name":"ComponentRegistered","anonymous":false,
   "inputs":[{"name":"componentId","type":"uint256","indexed":true},{"name":"manufacturer","type":"address","indexed":true},{"name":"name","type":"string","indexed":false}]},
  {"type":"event","name":"OwnershipTransferred","anonymous":false,
   "inputs":[{"name":"componentId","type":"uint256","indexed":true},{"name":"from","type":"address","indexed":true},{"name":"to","type":"address","indexed":true}]},
  {"type":"event","name":"StatusUpdated","anonymous":false,
   "inputs":[{"name":"componentId","type":"uint256","indexed":true},{"name":"newStatus","type":"string","indexed":false},{"name":"updatedBy","type":"address","indexed":true}]}
]`

// Method and event names the client relies on.
const (
	MethodRegisterComponent     = "registerComponent"
	MethodTransferOwnership     = "transferOwnership"
	MethodUpdateComponentStatus = "updateComponentStatus"
	MethodGetComponentDetails   = "getComponentDetails"
	MethodGetComponentHistory   = "getComponentHistory"
	MethodHasRole               = "hasRole"

	EventComponentRegistered  = "ComponentRegistered"
	EventOwnershipTransferred = "OwnershipTransferred"
	EventStatusUpdated        = "StatusUpdated"
)

var requiredMethods = []string{
	MethodRegisterComponent,
	MethodTransferOwnership,
	MethodUpdateComponentStatus,
	MethodGetComponentDetails,
	MethodGetComponentHistory,
	MethodHasRole,
}

var requiredEvents = []string{
	EventComponentRegistered,
	EventOwnershipTransferred,
	EventStatusUpdated,
}
