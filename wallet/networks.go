package wallet

// networkNames follows the names JSON-RPC client libraries report for well
// known chains.
var networkNames = map[uint64]string{
	1:        "homestead",
	5:        "goerli",
	10:       "optimism",
	56:       "bnb",
	100:      "xdai",
	137:      "matic",
	8453:     "base",
	17000:    "holesky",
	42161:    "arbitrum",
	80002:    "amoy",
	11155111: "sepolia",
}

// NetworkName returns the conventional name of chainID, "unknown" if it has none.
func NetworkName(chainID uint64) string {
	if name, ok := networkNames[chainID]; ok {
		return name
	}
	return "unknown"
}
