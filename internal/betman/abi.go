package betman

import (
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

const betManagerABIJSON = `[
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "bytes32", "name": "betId", "type": "bytes32"},
      {"indexed": true, "internalType": "bytes32", "name": "raceId", "type": "bytes32"},
      {"indexed": false, "internalType": "bytes32", "name": "driverId", "type": "bytes32"},
      {"indexed": true, "internalType": "address", "name": "user", "type": "address"},
      {"indexed": false, "internalType": "uint256", "name": "amount", "type": "uint256"}
    ],
    "name": "BetPlaced",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "bytes32", "name": "raceId", "type": "bytes32"},
      {"indexed": false, "internalType": "bytes32", "name": "winningDriverId", "type": "bytes32"}
    ],
    "name": "RaceResultSet",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "bytes32", "name": "betId", "type": "bytes32"},
      {"indexed": true, "internalType": "address", "name": "user", "type": "address"},
      {"indexed": false, "internalType": "uint256", "name": "amount", "type": "uint256"}
    ],
    "name": "PayoutClaimed",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "bytes32", "name": "raceId", "type": "bytes32"},
      {"indexed": false, "internalType": "string", "name": "name", "type": "string"},
      {"indexed": false, "internalType": "uint256", "name": "cutoffTime", "type": "uint256"}
    ],
    "name": "RaceCreated",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "bytes32", "name": "raceId", "type": "bytes32"},
      {"indexed": false, "internalType": "bytes32", "name": "driverId", "type": "bytes32"},
      {"indexed": false, "internalType": "string", "name": "name", "type": "string"}
    ],
    "name": "DriverAdded",
    "type": "event"
  },
  {
    "inputs": [
      {"internalType": "bytes32", "name": "raceId", "type": "bytes32"},
      {"internalType": "bytes32", "name": "driverId", "type": "bytes32"}
    ],
    "name": "placeBet",
    "outputs": [],
    "stateMutability": "payable",
    "type": "function"
  },
  {
    "inputs": [{"internalType": "bytes32", "name": "betId", "type": "bytes32"}],
    "name": "claimPayout",
    "outputs": [],
    "stateMutability": "nonpayable",
    "type": "function"
  },
  {
    "inputs": [
      {"internalType": "bytes32", "name": "raceId", "type": "bytes32"},
      {"internalType": "bytes32", "name": "winningDriverId", "type": "bytes32"}
    ],
    "name": "setRaceResult",
    "outputs": [],
    "stateMutability": "nonpayable",
    "type": "function"
  },
  {
    "inputs": [
      {"internalType": "bytes32", "name": "raceId", "type": "bytes32"},
      {"internalType": "bytes32", "name": "driverId", "type": "bytes32"}
    ],
    "name": "getImpliedOdds",
    "outputs": [{"internalType": "uint256", "name": "", "type": "uint256"}],
    "stateMutability": "view",
    "type": "function"
  },
  {
    "inputs": [{"internalType": "address", "name": "user", "type": "address"}],
    "name": "getUserBets",
    "outputs": [{"internalType": "bytes32[]", "name": "", "type": "bytes32[]"}],
    "stateMutability": "view",
    "type": "function"
  },
  {
    "inputs": [{"internalType": "bytes32", "name": "betId", "type": "bytes32"}],
    "name": "getBetInfo",
    "outputs": [
      {"internalType": "bytes32", "name": "raceId", "type": "bytes32"},
      {"internalType": "bytes32", "name": "driverId", "type": "bytes32"},
      {"internalType": "uint256", "name": "amount", "type": "uint256"},
      {"internalType": "uint8", "name": "status", "type": "uint8"},
      {"internalType": "uint256", "name": "payout", "type": "uint256"}
    ],
    "stateMutability": "view",
    "type": "function"
  },
  {
    "inputs": [{"internalType": "bytes32", "name": "raceId", "type": "bytes32"}],
    "name": "getRaceInfo",
    "outputs": [
      {"internalType": "string", "name": "name", "type": "string"},
      {"internalType": "uint256", "name": "cutoffTime", "type": "uint256"},
      {"internalType": "bool", "name": "settled", "type": "bool"},
      {"internalType": "bytes32", "name": "winningDriverId", "type": "bytes32"},
      {"internalType": "uint256", "name": "totalPool", "type": "uint256"}
    ],
    "stateMutability": "view",
    "type": "function"
  },
  {
    "inputs": [{"internalType": "bytes32", "name": "betId", "type": "bytes32"}],
    "name": "calculatePayout",
    "outputs": [{"internalType": "uint256", "name": "", "type": "uint256"}],
    "stateMutability": "view",
    "type": "function"
  }
]`

var (
	betManagerABI     abi.ABI
	betManagerABIOnce sync.Once
	betManagerABIErr  error
)

// ABI returns the parsed bet manager ABI.
func ABI() (abi.ABI, error) {
	betManagerABIOnce.Do(func() {
		betManagerABI, betManagerABIErr = abi.JSON(strings.NewReader(betManagerABIJSON))
	})
	return betManagerABI, betManagerABIErr
}
