package extension

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	pkg := testPackage()
	SignPluginPackage(pkg, "trusted-key")

	data, err := EncodePluginPackage(pkg)
	require.NoError(t, err)

	decoded, err := DecodePluginPackage(data)
	require.NoError(t, err)

	assert.Equal(t, pkg.SchemaVersion, decoded.SchemaVersion)
	assert.Equal(t, pkg.Manifest.PluginID, decoded.Manifest.PluginID)
	assert.Equal(t, pkg.Manifest.Name, decoded.Manifest.Name)
	assert.Equal(t, pkg.Manifest.Version, decoded.Manifest.Version)
	assert.Equal(t, pkg.Manifest.Description, decoded.Manifest.Description)
	assert.Equal(t, pkg.Manifest.Entrypoint, decoded.Manifest.Entrypoint)
	assert.ElementsMatch(t, pkg.Manifest.RequiredPermissions, decoded.Manifest.RequiredPermissions)
	assert.Equal(t, pkg.Manifest.MinHostAPI, decoded.Manifest.MinHostAPI)
	assert.Equal(t, pkg.Manifest.MaxHostAPI, decoded.Manifest.MaxHostAPI)
	assert.Equal(t, pkg.Artifacts, decoded.Artifacts)
	assert.Equal(t, pkg.Signature, decoded.Signature)

	// The signature must survive the round trip bit for bit: a re-encoded
	// package still verifies.
	signers := NewSignerTable()
	signers.Trust("forge-team", "trusted-key")
	require.NoError(t, VerifyPluginPackage(decoded, signers))
}

func TestDecodeStrictness(t *testing.T) {
	cases := []struct {
		name string
		json string
	}{
		{"not json", `{{`},
		{"missing schema_version", `{"manifest":{},"artifacts":[],"signature":{}}`},
		{"missing manifest", `{"schema_version":1,"artifacts":[],"signature":{"signer":"s","algorithm":"a","value":"v"}}`},
		{"missing signature", `{"schema_version":1,"manifest":{"plugin_id":"p","name":"n","version":"1","description":"","entrypoint":"e","min_host_api":"1.0","max_host_api":"1.9"},"artifacts":[]}`},
		{"wrong-typed schema_version", `{"schema_version":"1","manifest":{},"artifacts":[],"signature":{}}`},
		{"missing manifest field", `{"schema_version":1,"manifest":{"plugin_id":"p"},"artifacts":[],"signature":{"signer":"s","algorithm":"a","value":"v"}}`},
		{"unknown permission label", `{"schema_version":1,"manifest":{"plugin_id":"p","name":"n","version":"1","description":"","entrypoint":"e","required_permissions":["Root"],"min_host_api":"1.0","max_host_api":"1.9"},"artifacts":[],"signature":{"signer":"s","algorithm":"a","value":"v"}}`},
		{"malformed host api", `{"schema_version":1,"manifest":{"plugin_id":"p","name":"n","version":"1","description":"","entrypoint":"e","required_permissions":[],"min_host_api":"1","max_host_api":"1.9"},"artifacts":[],"signature":{"signer":"s","algorithm":"a","value":"v"}}`},
		{"missing required_permissions", `{"schema_version":1,"manifest":{"plugin_id":"p","name":"n","version":"1","description":"","entrypoint":"e","min_host_api":"1.0","max_host_api":"1.9"},"artifacts":[],"signature":{"signer":"s","algorithm":"a","value":"v"}}`},
		{"missing artifacts", `{"schema_version":1,"manifest":{"plugin_id":"p","name":"n","version":"1","description":"","entrypoint":"e","required_permissions":[],"min_host_api":"1.0","max_host_api":"1.9"},"signature":{"signer":"s","algorithm":"a","value":"v"}}`},
		{"artifact missing size", `{"schema_version":1,"manifest":{"plugin_id":"p","name":"n","version":"1","description":"","entrypoint":"e","required_permissions":[],"min_host_api":"1.0","max_host_api":"1.9"},"artifacts":[{"path":"a","digest":"d"}],"signature":{"signer":"s","algorithm":"a","value":"v"}}`},
		{"signature missing value", `{"schema_version":1,"manifest":{"plugin_id":"p","name":"n","version":"1","description":"","entrypoint":"e","required_permissions":[],"min_host_api":"1.0","max_host_api":"1.9"},"artifacts":[],"signature":{"signer":"s","algorithm":"a"}}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := DecodePluginPackage([]byte(tc.json))
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidPackage)
		})
	}
}

func TestDecodeIgnoresUnknownFields(t *testing.T) {
	data := `{
		"schema_version": 1,
		"future_field": {"nested": true},
		"manifest": {
			"plugin_id": "plugin-alpha",
			"name": "Plugin Alpha",
			"version": "0.1.0",
			"description": "",
			"entrypoint": "main",
			"required_permissions": ["ReadState"],
			"min_host_api": "1.0",
			"max_host_api": "1.9",
			"homepage": "https://example.com"
		},
		"artifacts": [{"path": "plugin.wasm", "digest": "abc", "size_bytes": 42, "mime": "application/wasm"}],
		"signature": {"signer": "forge-team", "algorithm": "fnv1a-64", "value": "0000000000000000"}
	}`
	pkg, err := DecodePluginPackage([]byte(data))
	require.NoError(t, err)
	assert.Equal(t, "plugin-alpha", pkg.Manifest.PluginID)
	assert.Equal(t, []Permission{PermissionReadState}, pkg.Manifest.RequiredPermissions)
	assert.Equal(t, int64(42), pkg.Artifacts[0].SizeBytes)
}
