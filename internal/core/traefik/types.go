package traefik

// =============================================================================
// Traefik Label Generation Types
// =============================================================================

// LabelParams contains parameters for generating Traefik labels.
type LabelParams struct {
	// DeploymentID is the unique deployment identifier. It names both the
	// router and the service.
	DeploymentID string

	// Hostname is the routing hostname (e.g., "a1b2c3d4.lvh.me").
	Hostname string

	// Port is the container port to route traffic to.
	Port int

	// EntryPoint pins the HTTP router to a Traefik entrypoint. Empty leaves
	// the router on all entrypoints.
	EntryPoint string

	// EnableTLS adds an HTTPS router with TLS termination.
	EnableTLS bool

	// CertResolver names the ACME resolver used when EnableTLS is set.
	CertResolver string
}
