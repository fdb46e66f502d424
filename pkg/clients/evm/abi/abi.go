package contracts_abi

const (
	HTLC  = "HTLC"
	ERC20 = "ERC20"

	EVENT_STOREMAN_LOCK = "StoremanLock"
)

var contractAbis = map[string]string{
	HTLC: `[
		{
			"type": "function",
			"name": "lock",
			"stateMutability": "payable",
			"inputs": [
				{"name": "xHash", "type": "bytes32"},
				{"name": "storeman", "type": "address"},
				{"name": "toAddr", "type": "address"},
				{"name": "value", "type": "uint256"}
			],
			"outputs": []
		},
		{
			"type": "function",
			"name": "redeem",
			"stateMutability": "nonpayable",
			"inputs": [
				{"name": "x", "type": "bytes32"}
			],
			"outputs": []
		},
		{
			"type": "function",
			"name": "revoke",
			"stateMutability": "nonpayable",
			"inputs": [
				{"name": "xHash", "type": "bytes32"}
			],
			"outputs": []
		},
		{
			"type": "function",
			"name": "delegateClaim",
			"stateMutability": "nonpayable",
			"inputs": [
				{"name": "storeman", "type": "address"}
			],
			"outputs": []
		},
		{
			"type": "event",
			"name": "StoremanLock",
			"anonymous": false,
			"inputs": [
				{"indexed": true, "name": "xHash", "type": "bytes32"},
				{"indexed": true, "name": "storeman", "type": "address"},
				{"indexed": true, "name": "toAddr", "type": "address"},
				{"indexed": false, "name": "value", "type": "uint256"}
			]
		}
	]`,
	ERC20: `[
		{
			"type": "function",
			"name": "approve",
			"stateMutability": "nonpayable",
			"inputs": [
				{"name": "spender", "type": "address"},
				{"name": "value", "type": "uint256"}
			],
			"outputs": [{"name": "", "type": "bool"}]
		}
	]`,
}

// GetContractABI returns the json ABI of a known contract
func GetContractABI(name string) string {
	return contractAbis[name]
}
