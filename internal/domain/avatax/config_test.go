package avatax

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConnection() Connection {
	return Connection{
		Name:                       "Sandbox",
		Credentials:                Credentials{Username: "user", Password: "secret-password"},
		IsSandbox:                  true,
		CompanyCode:                "ACME",
		IsDocumentRecordingEnabled: true,
		ShippingTaxCode:            "FR000000",
		Address:                    Address{Country: "US", Zip: "98110", State: "WA", City: "Bainbridge Island", Street: "100 Ravine Ln"},
	}
}

func TestConnection_Validate(t *testing.T) {
	c := testConnection()
	assert.NoError(t, c.Validate())

	missingName := testConnection()
	missingName.Name = ""
	assert.Error(t, missingName.Validate())

	missingPassword := testConnection()
	missingPassword.Credentials.Password = ""
	assert.Error(t, missingPassword.Validate())

	missingZip := testConnection()
	missingZip.Address.Zip = ""
	assert.Error(t, missingZip.Validate())
}

func TestConnection_CompanyAndMask(t *testing.T) {
	c := testConnection()
	assert.Equal(t, "ACME", c.Company())
	c.CompanyCode = ""
	assert.Equal(t, DefaultCompanyCode, c.Company())

	masked := c.Masked()
	assert.Equal(t, "***********word", masked.Credentials.Password)
	assert.Equal(t, "secret-password", c.Credentials.Password)
	assert.Equal(t, "***", maskSecret("abc"))
}

func TestRootConfig(t *testing.T) {
	root := NewRootConfig()
	conn, err := root.AddConnection(testConnection())
	require.NoError(t, err)
	require.NotEmpty(t, conn.ID)

	assert.Nil(t, root.GetConnectionForChannel("default-channel"))
	require.NoError(t, root.BindChannel("default-channel", conn.ID))
	assert.Equal(t, "Sandbox", root.GetConnectionForChannel("default-channel").Name)
	assert.ErrorIs(t, root.BindChannel("other", "missing"), ErrConnectionNotFound)

	t.Run("update keeps masked password", func(t *testing.T) {
		update := conn.Masked()
		update.Name = "Renamed"
		require.NoError(t, root.UpdateConnection(update))
		got := root.GetConnection(conn.ID)
		assert.Equal(t, "Renamed", got.Name)
		assert.Equal(t, "secret-password", got.Credentials.Password)
	})

	t.Run("update unknown", func(t *testing.T) {
		assert.ErrorIs(t, root.UpdateConnection(Connection{ID: "nope"}), ErrConnectionNotFound)
	})

	raw, err := root.Serialize()
	require.NoError(t, err)
	parsed, err := ParseRootConfig(raw)
	require.NoError(t, err)
	assert.Equal(t, root, parsed)
	assert.Len(t, parsed.MaskedConnections(), 1)

	require.NoError(t, root.RemoveConnection(conn.ID))
	assert.Empty(t, root.ChannelMapping)
	assert.ErrorIs(t, root.RemoveConnection(conn.ID), ErrConnectionNotFound)

	empty, err := ParseRootConfig("  ")
	require.NoError(t, err)
	assert.Empty(t, empty.Connections)
	_, err = ParseRootConfig("[")
	assert.Error(t, err)
}
