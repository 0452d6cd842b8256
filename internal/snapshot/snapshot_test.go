package snapshot

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"platform-snapshot/internal/catalog"
	apperrors "platform-snapshot/internal/errors"
	"platform-snapshot/internal/store"
)

func sampleData() map[string][]store.Record {
	return map[string][]store.Record{
		catalog.Permissions: {
			{"id": int64(1), "key": "documents.read"},
			{"id": int64(2), "key": "documents.write"},
		},
		catalog.Organizations: {
			{"id": int64(1), "slug": "acme", "name": "Acme"},
		},
		catalog.Users: {
			{
				"id":                       int64(7),
				"email":                    "ada@example.com",
				"organization_id":          int64(1),
				catalog.PermissionKeysField: []any{"documents.read"},
				"score":                    1.5,
			},
		},
	}
}

func TestNew(t *testing.T) {
	snap, err := New("sqlite:platform.db", []string{catalog.Permissions, catalog.Organizations, catalog.Users}, sampleData())
	require.NoError(t, err)

	assert.Equal(t, FormatV1, snap.Format)
	assert.NotEmpty(t, snap.Metadata.ID)
	assert.Equal(t, "sqlite:platform.db", snap.Metadata.Source)
	assert.Equal(t, 4, snap.Metadata.RecordCount)
	assert.Len(t, snap.Metadata.Checksum, 64)
	assert.Equal(t, "UTC", snap.Metadata.Timestamp.Location().String())
	assert.NoError(t, snap.Verify())
	assert.Equal(t, []string{catalog.Organizations, catalog.Permissions, catalog.Users}, snap.KindNames())
	assert.Nil(t, snap.Records(catalog.Documents))
}

func TestNew_NilData(t *testing.T) {
	snap, err := New("test", nil, nil)
	require.NoError(t, err)
	assert.NotNil(t, snap.Data)
	assert.Zero(t, snap.Metadata.RecordCount)
}

func TestVerify_DetectsTampering(t *testing.T) {
	snap, err := New("test", nil, sampleData())
	require.NoError(t, err)

	snap.Data[catalog.Organizations][0]["name"] = "Evil Corp"

	err = snap.Verify()
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrorTypeValidation, apperrors.GetErrorType(err))
}

func TestVerify_NoChecksum(t *testing.T) {
	snap := &Snapshot{Data: sampleData()}
	assert.NoError(t, snap.Verify())
}

func TestEncodeDecode_RoundTrip(t *testing.T) {
	snap, err := New("test", []string{catalog.Users}, sampleData())
	require.NoError(t, err)

	raw, err := Encode(snap)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "\n  \"format\"")

	decoded, err := Decode(raw, catalog.Default())
	require.NoError(t, err)

	assert.False(t, decoded.Legacy)
	assert.Equal(t, snap.Metadata.ID, decoded.Metadata.ID)
	assert.True(t, snap.Metadata.Timestamp.Equal(decoded.Metadata.Timestamp))
	assert.NoError(t, decoded.Verify())

	user := decoded.Records(catalog.Users)[0]
	assert.Equal(t, int64(7), user["id"])
	assert.Equal(t, 1.5, user["score"])
	assert.Equal(t, []any{"documents.read"}, user[catalog.PermissionKeysField])
}

func TestDecode_LegacyEnvelope(t *testing.T) {
	raw := []byte(`{
		"metadata": {"timestamp": "2024-03-01T10:00:00Z"},
		"data": {
			"organizations": [{"id": 1, "slug": "acme"}],
			"users": null
		}
	}`)

	snap, err := Decode(raw, catalog.Default())
	require.NoError(t, err)

	assert.True(t, snap.Legacy)
	assert.Equal(t, FormatV1, snap.Format)
	assert.Equal(t, 1, snap.Metadata.RecordCount)
	assert.Equal(t, int64(1), snap.Records(catalog.Organizations)[0]["id"])
	assert.NotNil(t, snap.Data[catalog.Users])
	assert.Empty(t, snap.Data[catalog.Users])
}

func TestDecode_FlatTableMap(t *testing.T) {
	raw := []byte(`{
		"organizations": [{"id": 1, "slug": "acme"}],
		"user_permissions": [{"user_id": 7, "permission_id": 1}],
		"feature_flags": [{"id": 3, "name": "beta"}]
	}`)

	snap, err := Decode(raw, catalog.Default())
	require.NoError(t, err)

	assert.True(t, snap.Legacy)
	assert.Len(t, snap.Records(catalog.Organizations), 1)
	require.Contains(t, snap.Tables, "user_permissions")
	require.Contains(t, snap.Tables, "feature_flags")
	assert.Equal(t, int64(7), snap.Tables["user_permissions"][0]["user_id"])
	assert.Equal(t, 1, snap.Metadata.RecordCount)
}

func TestDecode_TableNamedData(t *testing.T) {
	raw := []byte(`{"data": [{"id": 1}]}`)

	snap, err := Decode(raw, catalog.Default())
	require.NoError(t, err)
	assert.True(t, snap.Legacy)
	assert.Contains(t, snap.Tables, "data")
}

func TestDecode_Errors(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		wantType apperrors.ErrorType
	}{
		{"not json", `not json`, apperrors.ErrorTypeValidation},
		{"array", `[1, 2]`, apperrors.ErrorTypeValidation},
		{"unknown format", `{"format": "other/v9", "data": {}}`, apperrors.ErrorTypeSetup},
		{"table is not an array", `{"organizations": {"id": 1}}`, apperrors.ErrorTypeValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.raw), catalog.Default())
			require.Error(t, err)
			assert.Equal(t, tt.wantType, apperrors.GetErrorType(err))
		})
	}
}
