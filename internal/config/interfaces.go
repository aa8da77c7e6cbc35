package config

import "context"

// SecretProvider resolves secret values by key.
type SecretProvider interface {
	// GetParametersBatch returns key -> plaintext for every key it could
	// resolve. Keys it cannot find are omitted rather than reported as errors;
	// the loader decides which omissions are fatal.
	GetParametersBatch(ctx context.Context, keys []string) (map[string]string, error)
}

// ProviderForEnvironment returns the SecretProvider an entry point should hand
// to LoadConfig. Local runs read secrets straight from the environment and
// get nil.
func ProviderForEnvironment(appEnv, region string) SecretProvider {
	if appEnv == localEnv {
		return nil
	}
	return NewSSMProvider(region)
}
