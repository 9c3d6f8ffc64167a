package vaultkv2

import (
	"github.com/keybrokerhq/keybroker/pkg/config"
)

type HashicorpVaultSDK struct {
	RoleID                string            `mapstructure:"role_id"`
	SecretID              config.Password   `mapstructure:"secret_id"`
	AutoUnsealEnabled     bool              `mapstructure:"auto_unseal_enabled"`
	AutoUnsealKeys        []config.Password `mapstructure:"auto_unseal_keys"`
	MountPath             string            `mapstructure:"mount_path"`
	config.HTTPConnection `mapstructure:",squash"`
}
