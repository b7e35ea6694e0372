package topology

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleTopology = `
phases:
  - id: core
    ordinal: 1
    services: [db, api]
    health_threshold: 0.75
  - id: edge
    ordinal: 2
    services: [proxy]

services:
  - name: db
    network: backend
    port: 5432
    image: postgres:16
    probe:
      type: tcp
      port: 5432
      timeout: 500ms
  - name: api
    network: backend
    port: 8080
    image: ${REGISTRY:-docker.io}/lucid/api:${TAG}
    depends_on: [db]
    env:
      DB_PASSWORD: secret://db-password
    probe:
      type: http
      path: /healthz
  - name: proxy
    network: frontend
    port: 443
    image: nginx:1.27
    probe:
      type: exec
      command: ["nginx", "-t"]

networks:
  - name: backend
    subnet: 172.20.0.0/24
    gateway: 172.20.0.1
    isolated: true
  - name: frontend
    subnet: 172.21.0.0/24
    attachable: true
`

func TestParse_FullTopology(t *testing.T) {
	topo, err := Parse([]byte(sampleTopology), map[string]string{"TAG": "v3"})
	require.NoError(t, err)
	require.Nil(t, Validate(topo))

	require.Len(t, topo.Phases, 2)
	assert.Equal(t, 0.75, topo.Phases[0].HealthThreshold)

	api, ok := topo.Service("api")
	require.True(t, ok)
	assert.Equal(t, "docker.io/lucid/api:v3", api.Image)
	assert.Equal(t, "secret://db-password", api.Env["DB_PASSWORD"])

	db, ok := topo.Service("db")
	require.True(t, ok)
	assert.Equal(t, ProbeTCP, db.Probe.Type)
	assert.Equal(t, 500*time.Millisecond, db.Probe.Timeout)

	backend, ok := topo.Network("backend")
	require.True(t, ok)
	assert.True(t, backend.Isolated)
	assert.Equal(t, "172.20.0.1", backend.Gateway)
}

func TestParse_EmptyInput(t *testing.T) {
	_, err := Parse(nil, nil)
	assert.ErrorIs(t, err, ErrEmptyInput)
}

func TestParse_InvalidYAML(t *testing.T) {
	_, err := Parse([]byte("phases: [unclosed"), nil)
	assert.ErrorIs(t, err, ErrInvalidYAML)
}

func TestParse_InvalidProbeTimeout(t *testing.T) {
	doc := `
services:
  - name: a
    network: n
    probe:
      type: tcp
      port: 1
      timeout: soon
`
	_, err := Parse([]byte(doc), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidYAML)
	assert.Contains(t, err.Error(), "probe timeout")
}

func TestSubstituteValues(t *testing.T) {
	values := map[string]string{"HOST": "10.0.0.5", "EMPTY": ""}

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain value", "addr=${HOST}", "addr=10.0.0.5"},
		{"default used", "port=${PORT:-8080}", "port=8080"},
		{"default ignored when set", "host=${HOST:-localhost}", "host=10.0.0.5"},
		{"empty value wins over default", "x=${EMPTY:-fallback}", "x="},
		{"missing without default kept", "x=${MISSING}", "x=${MISSING}"},
		{"empty default", "x=${MISSING:-}", "x="},
		{"no placeholder", "plain text", "plain text"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SubstituteValues(tt.in, values))
		})
	}
}
