package traefik

import "fmt"

// =============================================================================
// Traefik Label Generation Functions
// =============================================================================

// DefaultCertResolver is used for TLS routers when no resolver is given.
const DefaultCertResolver = "letsencrypt"

// GenerateLabels generates Traefik reverse proxy labels for a deployment.
//
// The generated labels configure Traefik to route HTTP(S) traffic to the container:
//   - Enables Traefik for the container
//   - Creates a router with a Host rule for the hostname
//   - Points the service loadbalancer at the container port
//   - If TLS is enabled, creates an additional secure router
//
// Router and service are both named after the deployment ID.
//
// Example:
//
//	labels := GenerateLabels(LabelParams{
//	    DeploymentID: "a1b2c3d4",
//	    Hostname:     "a1b2c3d4.lvh.me",
//	    Port:         80,
//	})
//	// Returns:
//	// {
//	//   "traefik.enable": "true",
//	//   "traefik.http.routers.a1b2c3d4.rule": "Host(`a1b2c3d4.lvh.me`)",
//	//   "traefik.http.services.a1b2c3d4.loadbalancer.server.port": "80",
//	// }
func GenerateLabels(params LabelParams) map[string]string {
	name := params.DeploymentID

	labels := map[string]string{
		"traefik.enable": "true",

		fmt.Sprintf("traefik.http.routers.%s.rule", name): HostRule(params.Hostname),

		fmt.Sprintf("traefik.http.services.%s.loadbalancer.server.port", name): fmt.Sprintf("%d", params.Port),
	}

	if params.EntryPoint != "" {
		labels[fmt.Sprintf("traefik.http.routers.%s.entrypoints", name)] = params.EntryPoint
		labels[fmt.Sprintf("traefik.http.routers.%s.service", name)] = name
	}

	if params.EnableTLS {
		resolver := params.CertResolver
		if resolver == "" {
			resolver = DefaultCertResolver
		}
		secureName := name + "-secure"
		labels[fmt.Sprintf("traefik.http.routers.%s.rule", secureName)] = HostRule(params.Hostname)
		labels[fmt.Sprintf("traefik.http.routers.%s.entrypoints", secureName)] = "websecure"
		labels[fmt.Sprintf("traefik.http.routers.%s.tls", secureName)] = "true"
		labels[fmt.Sprintf("traefik.http.routers.%s.tls.certresolver", secureName)] = resolver
		labels[fmt.Sprintf("traefik.http.routers.%s.service", secureName)] = name
	}

	return labels
}

// HostRule renders a Traefik Host matcher for hostname.
func HostRule(hostname string) string {
	return fmt.Sprintf("Host(`%s`)", hostname)
}
