// Package validation checks deploy request fields before anything is
// persisted. All functions are pure.
//
//	if field, msg := validation.ValidateDeployFields(repoURL, name); field != "" {
//	    // 400 Bad Request with msg
//	}
package validation
