package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
)

// EnvJWTSecret is the environment variable that overrides the API JWT secret.
const EnvJWTSecret = "DITTOBLOCK_API_JWT_SECRET"

// InitConfig creates a sample configuration file at the default location.
// Returns the path of the created file.
func InitConfig(force bool) (string, error) {
	path := GetDefaultConfigPath()
	return path, InitConfigToPath(path, force)
}

// InitConfigToPath creates a sample configuration file at the given path.
//
// The sample carries a freshly generated random JWT secret so a development
// setup works out of the box. Production deployments should replace it via
// the DITTOBLOCK_API_JWT_SECRET environment variable.
func InitConfigToPath(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config file already exists: %s (use --force to overwrite)", path)
		}
	}

	cfg := GetDefaultConfig()

	secret, err := generateJWTSecret()
	if err != nil {
		return fmt.Errorf("failed to generate JWT secret: %w", err)
	}
	cfg.API.JWTSecret = secret

	return SaveConfig(cfg, path)
}

// generateJWTSecret returns 32 bytes of entropy as a 64-character hex string.
func generateJWTSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
