package config_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tolelom/tolchain/config"
)

func validConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Validators = []string{"val-1"}
	return cfg
}

func TestValidateRejectsEqualPorts(t *testing.T) {
	cfg := validConfig()
	cfg.Node.P2PPort = 30303
	cfg.Node.RPCPort = 30303
	require.Error(t, cfg.Validate())
}

func TestValidateRejectsOutOfRangePort(t *testing.T) {
	cfg := validConfig()
	cfg.Node.RPCPort = 70000
	require.Error(t, cfg.Validate())
}

func TestValidateRejectsEmptyValidatorSet(t *testing.T) {
	cfg := config.DefaultConfig()
	require.Error(t, cfg.Validate())
}

func TestValidateRejectsZeroSlotDuration(t *testing.T) {
	cfg := validConfig()
	cfg.Consensus.SlotDurationMs = 0
	require.Error(t, cfg.Validate())
}

func TestValidateAcceptsDefaultConfig(t *testing.T) {
	cfg := validConfig()
	require.NoError(t, cfg.Validate())
}

func TestValidateRejectsPartialTLSConfig(t *testing.T) {
	cfg := validConfig()
	cfg.TLS = &config.TLSConfig{CACert: "ca.pem"}
	require.Error(t, cfg.Validate())
}

func TestValidateAcceptsEmptyOrCompleteTLSConfig(t *testing.T) {
	cfg := validConfig()
	cfg.TLS = &config.TLSConfig{}
	require.NoError(t, cfg.Validate())

	cfg.TLS = &config.TLSConfig{CACert: "ca.pem", NodeCert: "node.pem", NodeKey: "key.pem"}
	require.NoError(t, cfg.Validate())
}
