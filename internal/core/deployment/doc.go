// Package deployment provides pure naming functions for deployment resources.
//
// Every resource a deployment owns on the host (image, container, checkout
// directory) is keyed by the deployment identifier so concurrent pipelines
// never share a name.
//
//	tag := deployment.ImageTag(id)
//	name := deployment.ContainerName(id)
//	dir := deployment.SourceDir(root, id)
package deployment
