// Package api provides HTTP API handlers for posewatch.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/ayusman/posewatch/internal/app"
	"github.com/ayusman/posewatch/internal/geometry"
)

// Controller is the part of the application the API drives.
type Controller interface {
	Status() app.Status
	SetCamera(ctx context.Context, enabled bool) error
	Bounds() geometry.Bounds
}

type errorResponse struct {
	Error string `json:"error"`
}

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 1 << 16

var validate = validator.New(validator.WithRequiredStructEnabled())

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// decodeJSON reads a size-limited JSON body into dst and validates it.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return errors.New("Invalid JSON")
	}
	if err := validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return errors.New("Invalid field " + verrs[0].Namespace() + ": failed " + verrs[0].Tag())
		}
		return err
	}
	return nil
}
