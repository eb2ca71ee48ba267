package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/pawsaarthi/rescue-api/models"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// maxBodyBytes bounds JSON request bodies
const maxBodyBytes = 1 << 20

// decode reads a JSON body into dst and validates it
func decode(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		return models.Errorf(models.KindBadRequest, "invalid request body")
	}
	return validateStruct(dst)
}

func validateStruct(v interface{}) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return models.Errorf(models.KindBadRequest, "invalid request")
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fieldMessage(fe))
	}
	return models.Errorf(models.KindBadRequest, "%s", strings.Join(msgs, "; "))
}

func fieldMessage(fe validator.FieldError) string {
	field := strings.ToLower(fe.Field()[:1]) + fe.Field()[1:]
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "email":
		return fmt.Sprintf("%s must be a valid email", field)
	case "min", "gte":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "max", "lte":
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of %s", field, fe.Param())
	case "latitude", "longitude":
		return fmt.Sprintf("%s is not a valid coordinate", field)
	}
	return fmt.Sprintf("%s is invalid", field)
}
