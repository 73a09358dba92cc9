package cmd

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coreconfig "github.com/Atoilah/vcf-confreter/core/config"
	coretelegram "github.com/Atoilah/vcf-confreter/core/telegram"
)

type carrier struct{ cfg *coreconfig.Config }

func (c carrier) CoreConfig() *coreconfig.Config { return c.cfg }

type app struct {
	workers []Worker
	closed  bool
}

func (a *app) TelegramRunOptions() (coretelegram.RunOptions, error) {
	return coretelegram.RunOptions{}, nil
}

func (a *app) Workers() []Worker { return a.workers }

func (a *app) Close() error {
	a.closed = true
	return nil
}

func options(a *app, run func(ctx context.Context, opts coretelegram.RunOptions) error) Options {
	return Options{
		DefaultConfigPath: "config.yaml",
		ConfigEnvVar:      "VCFBOT_TEST_CONFIG_UNSET",
		LoadConfig: func(string) (ConfigCarrier, error) {
			return carrier{cfg: &coreconfig.Config{}}, nil
		},
		Bootstrap:      func(context.Context, ConfigCarrier) (TelegramApp, error) { return a, nil },
		ShutdownLogger: func() error { return nil },
		RunTelegram:    run,
	}
}

func TestRunWorkerErrorStopsBot(t *testing.T) {
	stop := errors.New("restart requested")
	a := &app{workers: []Worker{func(context.Context) error { return stop }}}
	var botStopped bool
	err := Run(options(a, func(ctx context.Context, _ coretelegram.RunOptions) error {
		<-ctx.Done()
		botStopped = true
		return nil
	}))
	assert.ErrorIs(t, err, stop)
	assert.True(t, botStopped)
	assert.True(t, a.closed)
}

func TestRunReturnsBotError(t *testing.T) {
	boom := errors.New("token rejected")
	a := &app{workers: []Worker{func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}}}
	err := Run(options(a, func(context.Context, coretelegram.RunOptions) error { return boom }))
	assert.ErrorIs(t, err, boom)
}

func TestRunRequiresLoaders(t *testing.T) {
	require.Error(t, Run(Options{}))
	require.Error(t, Run(Options{LoadConfig: func(string) (ConfigCarrier, error) { return nil, nil }}))
}
