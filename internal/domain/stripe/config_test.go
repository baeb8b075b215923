package stripe

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trieb-work/saleor-apps/internal/domain/saleor"
)

func validConfig() Config {
	return Config{
		Name:           "Main",
		ID:             "cfg-1",
		RestrictedKey:  "rk_test_abcdefgh1234",
		PublishableKey: "pk_test_xyz",
		WebhookSecret:  "whsec_1",
		WebhookID:      "we_1",
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantMsg string
	}{
		{"valid test", func(c *Config) {}, ""},
		{"valid live", func(c *Config) { c.RestrictedKey = "rk_live_1"; c.PublishableKey = "pk_live_1" }, ""},
		{"empty name", func(c *Config) { c.Name = "" }, "Config name cannot be empty"},
		{"empty id", func(c *Config) { c.ID = "" }, "Config id cannot be empty"},
		{"mixed env", func(c *Config) { c.PublishableKey = "pk_live_1" }, "Publishable key and restricted key must be of the same environment - TEST or LIVE"},
		{"secret key instead of restricted", func(c *Config) { c.RestrictedKey = "sk_test_1" }, "Publishable key and restricted key must be of the same environment - TEST or LIVE"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validConfig()
			tt.mutate(&c)
			_, err := NewConfig(c.Name, c.ID, c.RestrictedKey, c.PublishableKey, c.WebhookSecret, c.WebhookID)
			if tt.wantMsg == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.EqualError(t, err, tt.wantMsg)
			assert.True(t, errors.Is(err, ErrValidation))
		})
	}
}

func TestConfig_EnvironmentAndMasking(t *testing.T) {
	c := validConfig()
	assert.Equal(t, EnvironmentTest, c.Environment())

	fc := c.FrontendConfig()
	assert.Equal(t, "...1234", fc.RestrictedKey)
	assert.Equal(t, "pk_test_xyz", fc.PublishableKey)
	assert.Equal(t, EnvironmentTest, fc.Environment)

	c.PublishableKey = "pk_live_1"
	assert.Equal(t, EnvironmentLive, c.Environment())
	assert.Equal(t, "...abc", MaskKey("abc"))
}

func TestRootConfig(t *testing.T) {
	root := NewRootConfig()
	require.NoError(t, root.AddConfig(validConfig()))

	assert.Nil(t, root.GetConfigForChannel("Q2hhbm5lbDox"))
	require.NoError(t, root.BindChannel("Q2hhbm5lbDox", "cfg-1"))
	got := root.GetConfigForChannel("Q2hhbm5lbDox")
	require.NotNil(t, got)
	assert.Equal(t, "Main", got.Name)

	assert.Error(t, root.BindChannel("Q2hhbm5lbDoy", "missing"))
	assert.Error(t, root.AddConfig(Config{ID: "x"}))

	raw, err := root.Serialize()
	require.NoError(t, err)
	parsed, err := ParseRootConfig(raw)
	require.NoError(t, err)
	assert.Equal(t, root, parsed)

	root.RemoveConfig("cfg-1")
	assert.Nil(t, root.GetConfigForChannel("Q2hhbm5lbDox"))
	assert.Empty(t, root.ChannelMapping)

	require.NoError(t, parsed.BindChannel("Q2hhbm5lbDox", ""))
	assert.Empty(t, parsed.ChannelMapping)

	empty, err := ParseRootConfig("")
	require.NoError(t, err)
	assert.Empty(t, empty.Configs)

	_, err = ParseRootConfig("{")
	assert.Error(t, err)
}

func TestResultForStatus(t *testing.T) {
	tests := []struct {
		status, action, want string
	}{
		{StatusSucceeded, saleor.ActionCharge, saleor.ResultChargeSuccess},
		{StatusRequiresCapture, saleor.ActionAuthorization, saleor.ResultAuthorizationSuccess},
		{StatusProcessing, saleor.ActionCharge, saleor.ResultChargeRequest},
		{StatusProcessing, saleor.ActionAuthorization, saleor.ResultAuthorizationRequest},
		{StatusRequiresAction, saleor.ActionCharge, saleor.ResultChargeActionRequired},
		{StatusRequiresPaymentMethod, saleor.ActionAuthorization, saleor.ResultAuthorizationActionRequired},
		{StatusCanceled, saleor.ActionCharge, saleor.ResultChargeFailure},
		{StatusCanceled, saleor.ActionAuthorization, saleor.ResultAuthorizationFailure},
	}
	for _, tt := range tests {
		t.Run(tt.status+"/"+tt.action, func(t *testing.T) {
			assert.Equal(t, tt.want, ResultForStatus(tt.status, tt.action))
		})
	}
	assert.Equal(t, []string{"CHARGE", "CANCEL"}, ActionsForResult(saleor.ResultAuthorizationSuccess))
	assert.Nil(t, ActionsForResult(saleor.ResultChargeFailure))
}
