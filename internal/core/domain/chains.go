package domain

type Network string

const (
	NetworkTestnet  Network = "testnet"
	NetworkMainnet  Network = "mainnet"
	NetworkEmulator Network = "emulator"
)

// NetworkAccessNodes maps a network to its public REST access node.
var NetworkAccessNodes = map[Network]string{
	NetworkTestnet:  "https://rest-testnet.onflow.org",
	NetworkMainnet:  "https://rest-mainnet.onflow.org",
	NetworkEmulator: "http://localhost:8888",
}

// NetworkExplorers maps a network to its block explorer base URL.
var NetworkExplorers = map[Network]string{
	NetworkTestnet: "https://testnet.flowscan.io",
	NetworkMainnet: "https://www.flowscan.io",
}

// ExplorerURL returns the explorer base for n, defaulting to testnet.
func (n Network) ExplorerURL() string {
	if u, ok := NetworkExplorers[n]; ok {
		return u
	}
	return NetworkExplorers[NetworkTestnet]
}
