// Package wallet provides a WalletProvider backed by locally held keys.
//
// KeyedProvider stands in for a browser wallet: accounts must be requested
// before they are visible, the user's approval is modelled by an Approver,
// and account or chain changes are announced on an event feed exactly like
// accountsChanged and chainChanged notifications. Keys come from a hex
// string, an encrypted keystore file or a Vault KV v2 secret.
package wallet
