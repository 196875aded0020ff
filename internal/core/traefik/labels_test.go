package traefik

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// =============================================================================
// GenerateLabels Tests
// =============================================================================

func TestGenerateLabels_Basic(t *testing.T) {
	labels := GenerateLabels(LabelParams{
		DeploymentID: "a1b2c3d4",
		Hostname:     "a1b2c3d4.lvh.me",
		Port:         80,
	})

	assert.Equal(t, map[string]string{
		"traefik.enable":                                          "true",
		"traefik.http.routers.a1b2c3d4.rule":                      "Host(`a1b2c3d4.lvh.me`)",
		"traefik.http.services.a1b2c3d4.loadbalancer.server.port": "80",
	}, labels)
}

func TestGenerateLabels_EntryPoint(t *testing.T) {
	labels := GenerateLabels(LabelParams{
		DeploymentID: "deadbeef",
		Hostname:     "deadbeef.example.com",
		Port:         3000,
		EntryPoint:   "web",
	})

	assert.Equal(t, "web", labels["traefik.http.routers.deadbeef.entrypoints"])
	assert.Equal(t, "deadbeef", labels["traefik.http.routers.deadbeef.service"])
}

func TestGenerateLabels_NoTLSLabels(t *testing.T) {
	labels := GenerateLabels(LabelParams{
		DeploymentID: "deadbeef",
		Hostname:     "deadbeef.example.com",
		Port:         3000,
	})

	_, hasTLS := labels["traefik.http.routers.deadbeef-secure.rule"]
	assert.False(t, hasTLS)
}

func TestGenerateLabels_WithTLS(t *testing.T) {
	labels := GenerateLabels(LabelParams{
		DeploymentID: "cafe0001",
		Hostname:     "cafe0001.example.com",
		Port:         8000,
		EnableTLS:    true,
	})

	assert.Equal(t, "Host(`cafe0001.example.com`)", labels["traefik.http.routers.cafe0001.rule"])
	assert.Equal(t, "Host(`cafe0001.example.com`)", labels["traefik.http.routers.cafe0001-secure.rule"])
	assert.Equal(t, "websecure", labels["traefik.http.routers.cafe0001-secure.entrypoints"])
	assert.Equal(t, "true", labels["traefik.http.routers.cafe0001-secure.tls"])
	assert.Equal(t, DefaultCertResolver, labels["traefik.http.routers.cafe0001-secure.tls.certresolver"])
	assert.Equal(t, "cafe0001", labels["traefik.http.routers.cafe0001-secure.service"])
	assert.Equal(t, "8000", labels["traefik.http.services.cafe0001.loadbalancer.server.port"])
}

func TestGenerateLabels_CustomResolver(t *testing.T) {
	labels := GenerateLabels(LabelParams{
		DeploymentID: "cafe0001",
		Hostname:     "cafe0001.example.com",
		Port:         8000,
		EnableTLS:    true,
		CertResolver: "staging",
	})

	assert.Equal(t, "staging", labels["traefik.http.routers.cafe0001-secure.tls.certresolver"])
}

// =============================================================================
// Table-Driven Tests
// =============================================================================

func TestGenerateLabels_Ports(t *testing.T) {
	tests := []struct {
		name string
		port int
		want string
	}{
		{"react", 80, "80"},
		{"node", 3000, "3000"},
		{"python", 8000, "8000"},
		{"zero passes through", 0, "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			labels := GenerateLabels(LabelParams{DeploymentID: "d1", Hostname: "d1.test", Port: tt.port})
			assert.Equal(t, tt.want, labels["traefik.http.services.d1.loadbalancer.server.port"])
		})
	}
}

func TestHostRule(t *testing.T) {
	assert.Equal(t, "Host(`my-app.sub.example.com`)", HostRule("my-app.sub.example.com"))
}
