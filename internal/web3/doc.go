// Package web3 houses the wallet side of BlockPay: the agent signer and its
// key resolution, the chain catalogue loaded from YAML, unit formatting, and
// the Client interface implemented by the EVM client in the ethereum
// subpackage.
package web3
