// Package traefik provides pure functions for generating Traefik reverse proxy labels.
//
// The proxy watches the shared routing network and derives its routes from
// container labels; nothing in this module talks to the proxy directly.
//
//	labels := traefik.GenerateLabels(traefik.LabelParams{
//	    DeploymentID: d.ID,
//	    Hostname:     d.PreviewHost(baseDomain),
//	    Port:         archetype.Port(),
//	})
package traefik
