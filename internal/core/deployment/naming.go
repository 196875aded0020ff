package deployment

import (
	"fmt"
	"path/filepath"
)

// =============================================================================
// Resource Naming Functions
// =============================================================================

// ResourcePrefix prefixes every daemon resource owned by a deployment.
const ResourcePrefix = "minideploy_"

// ImageTag generates the image tag for a deployment.
// Pattern: minideploy_{deploymentID}
//
// Example:
//
//	ImageTag("a1b2c3d4") // returns "minideploy_a1b2c3d4"
func ImageTag(deploymentID string) string {
	return fmt.Sprintf("%s%s", ResourcePrefix, deploymentID)
}

// ContainerName generates the container name for a deployment.
// Pattern: minideploy_{deploymentID}
func ContainerName(deploymentID string) string {
	return fmt.Sprintf("%s%s", ResourcePrefix, deploymentID)
}

// SourceDir returns the checkout directory of a deployment under root.
func SourceDir(root, deploymentID string) string {
	return filepath.Join(root, deploymentID)
}
