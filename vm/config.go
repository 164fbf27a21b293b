package vm

import "sync/atomic"

// oracleThreshold is the genesis-configured minimum count of distinct valid
// oracle signatures an OracleAttestation transaction must carry. Set once at
// node startup from GenesisBody.OracleThreshold before any block executes.
var oracleThreshold atomic.Int64

// SetOracleThreshold configures the minimum oracle signature count required
// by vm/modules/oracleattest. Called once during chain initialisation.
func SetOracleThreshold(n int) {
	oracleThreshold.Store(int64(n))
}

// OracleThreshold returns the configured threshold.
func OracleThreshold() int {
	return int(oracleThreshold.Load())
}
