package objectstore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObjectName(t *testing.T) {
	at := time.Date(2026, 2, 3, 23, 0, 0, 0, time.FixedZone("MSK", 3*3600))
	assert.Equal(t, "approved/2026/02/abcd1234.jpg", ObjectName("abcd1234", "image/jpeg", at))
	assert.Equal(t, "approved/2026/02/k.bin", ObjectName("k", "application/octet-stream", at))
}

func TestNewParsesURLEndpoint(t *testing.T) {
	a, err := New(Config{Endpoint: "https://s3.example.com", AccessKey: "a", SecretKey: "b", Bucket: "photos"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "s3.example.com", a.client.EndpointURL().Host)
	assert.Equal(t, "https", a.client.EndpointURL().Scheme)
}
