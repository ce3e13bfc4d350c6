package registry

// Network holds the per-deployment protocol constants. Addresses are
// configuration, not logic: they identify the live contracts this client talks
// to and never change for a given deployment.
type Network struct {
	Name                         string
	ChainID                      int64
	LendingPoolAddressesProvider string
	ProtocolDataProvider         string
	WETHToken                    string
	TokenListURL                 string
}

var Mainnet = Network{
	Name:                         "mainnet",
	ChainID:                      1,
	LendingPoolAddressesProvider: "0xB53C1a33016B2DC2fF3653530bfF1848a515c8c5",
	ProtocolDataProvider:         "0x057835Ad21a177dbdd3090bB1CAE03EaCF78Fc6d",
	WETHToken:                    "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2",
	TokenListURL:                 "https://aave.github.io/aave-addresses/mainnet.json",
}

// Goerli has no published token list; its registry is populated from the
// protocol data provider instead.
var Goerli = Network{
	Name:                         "goerli",
	ChainID:                      5,
	LendingPoolAddressesProvider: "0x5E52dEc931FFb32f609681B8438A51c675cc232d",
	ProtocolDataProvider:         "0x927F584d4321C1dCcBf5e2902368124b02419a1E",
	WETHToken:                    "0xB4FBF271143F4FBf7B91A5ded31805e42b2208d6",
	TokenListURL:                 "",
}
