package configuration

import (
	"context"

	"github.com/form3tech-oss/mock-proxy/internal/app/mockproxy"
	"github.com/pkg/errors"
	"github.com/sethvargo/go-envconfig"
)

func NewFromEnv() (mockproxy.Config, error) {
	ctx := context.Background()

	var config mockproxy.Config
	err := envconfig.Process(ctx, &config)
	if err != nil {
		return config, errors.Wrap(err, "process env config")
	}
	if err := config.UnmatchedPolicy.Validate(); err != nil {
		return config, errors.Wrap(err, "process env config")
	}
	return config, nil
}

// ConfigureProxy starts a proxy listener for config and returns the session it serves.
func ConfigureProxy(servers *Servers, config mockproxy.Config) (*mockproxy.Session, error) {
	config = servers.withDefaults(config)
	if err := config.UnmatchedPolicy.Validate(); err != nil {
		return nil, err
	}

	session := mockproxy.NewSession(config)
	if config.MocksFile != "" {
		defs, err := mockproxy.LoadDefinitions(config.MocksFile)
		if err != nil {
			return nil, err
		}
		if err := session.Preload(defs); err != nil {
			return nil, err
		}
	}

	if err := servers.StartServer(&config.ServerAddress, &config, session); err != nil {
		return nil, err
	}
	return session, nil
}
