package handlers

import (
	"net/http"

	"github.com/stanstork/alumni-sync/internal/capability"
)

// HealthCheck returns a simple JSON status with the optional schema features
// currently in use.
func HealthCheck(caps *capability.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		shape := caps.Shape()
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"status": "ok",
			"schema": map[string]bool{
				capability.FeatureAlumniType.String():  shape.AlumniType,
				capability.FeatureAddressLink.String(): shape.AddressLink,
				capability.FeatureRSVPStatus.String():  shape.RSVPStatus,
			},
		})
	}
}
