// Package token tracks the reserve assets supported by the lending protocol
// on the active network.
package token

// ReserveToken is one protocol-supported asset together with the derivative
// contracts tied to its reserve. Decimals are fixed at contract deploy time;
// instances are immutable once added to a registry.
type ReserveToken struct {
	Symbol                   string `json:"symbol"`
	Address                  string `json:"address"`
	Decimals                 int    `json:"decimals"`
	ATokenAddress            string `json:"aTokenAddress"`
	ATokenSymbol             string `json:"aTokenSymbol"`
	StableDebtTokenAddress   string `json:"stableDebtTokenAddress"`
	VariableDebtTokenAddress string `json:"variableDebtTokenAddress"`
}
