package store

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"rutas/internal/domain"
)

const MaxRoutes = 5000

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks a candidate catalog and returns the first violation found.
// Checks run catalog-level first, then route fields in declaration order,
// then each stop of the route.
func Validate(c *domain.Catalog) error {
	if len(c.Routes) > MaxRoutes {
		return &ValidationError{Field: "routes", Tag: "max", Limit: strconv.Itoa(MaxRoutes)}
	}

	seen := make(map[string]struct{}, len(c.Routes))
	for i, route := range c.Routes {
		if route == nil {
			return &ValidationError{Field: fmt.Sprintf("routes[%d]", i), Tag: "required"}
		}

		if err := validate.Struct(route); err != nil {
			return toValidationError(route.ID, "", err)
		}

		for j := range route.Stops {
			if err := validate.Struct(&route.Stops[j]); err != nil {
				return toValidationError(route.ID, fmt.Sprintf("stops[%d].", j), err)
			}
		}

		if _, dup := seen[route.ID]; dup {
			return &ValidationError{RouteID: route.ID, Field: "id", Tag: "unique"}
		}
		seen[route.ID] = struct{}{}
	}

	return nil
}

func toValidationError(routeID, prefix string, err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}

	fe := verrs[0]
	return &ValidationError{
		RouteID: routeID,
		Field:   prefix + fe.Field(),
		Tag:     fe.Tag(),
		Limit:   fe.Param(),
	}
}
