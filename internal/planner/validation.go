package planner

import (
	"errors"
	"fmt"
	"math"

	"github.com/fleetroute/fleetroute/internal/api/models"
)

// ErrInvalidInput is wrapped by every ValidationError.
var ErrInvalidInput = errors.New("invalid input")

// ValidationError represents input validation errors.
type ValidationError struct {
	Errors []models.FieldError
}

func (e *ValidationError) Error() string {
	if len(e.Errors) == 1 {
		return fmt.Sprintf("%s: %s %s", ErrInvalidInput, e.Errors[0].Field, e.Errors[0].Message)
	}
	return fmt.Sprintf("%s: %d field errors", ErrInvalidInput, len(e.Errors))
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidInput
}

// problem is a validated request with defaults applied.
type problem struct {
	locations []Location // depot first
	vehicles  int
	capacity  int
}

func (p *problem) demands() []int {
	out := make([]int, len(p.locations))
	for i, l := range p.locations {
		out[i] = l.Demand
	}
	return out
}

// validate checks req and applies defaults. Capacity is only checked when
// withCapacity is set.
func (s *Service) validate(req *Request, withCapacity bool) (*problem, error) {
	var errs []models.FieldError

	if req == nil {
		return nil, &ValidationError{Errors: []models.FieldError{{Field: "body", Message: "is required"}}}
	}

	if req.Depot == nil {
		errs = append(errs, models.FieldError{Field: "depot", Message: "is required"})
	} else {
		errs = append(errs, validateCoordinate(req.Depot, "depot")...)
	}

	switch {
	case len(req.Customers) == 0:
		errs = append(errs, models.FieldError{Field: "customers", Message: "must contain at least one customer"})
	case s.maxCustomers > 0 && len(req.Customers) > s.maxCustomers:
		errs = append(errs, models.FieldError{
			Field:   "customers",
			Message: fmt.Sprintf("must contain at most %d customers", s.maxCustomers),
		})
	}

	for i := range req.Customers {
		c := &req.Customers[i]
		field := fmt.Sprintf("customers[%d]", i)
		errs = append(errs, validateCoordinate(c, field)...)
		if c.Demand < 0 {
			errs = append(errs, models.FieldError{Field: field + ".demand", Message: "must not be negative"})
		}
	}

	vehicles := 1
	if req.NumVehicles != nil {
		vehicles = *req.NumVehicles
		if vehicles <= 0 {
			errs = append(errs, models.FieldError{Field: "numVehicles", Message: "must be at least 1"})
		}
	}

	capacity := s.defaultCapacity
	if withCapacity && req.Capacity != nil {
		capacity = *req.Capacity
		if capacity <= 0 {
			errs = append(errs, models.FieldError{Field: "capacity", Message: "must be positive"})
		}
	}

	if len(errs) > 0 {
		return nil, &ValidationError{Errors: errs}
	}

	locations := make([]Location, 0, len(req.Customers)+1)
	depot := *req.Depot
	depot.Demand = 0
	if depot.Name == "" {
		depot.Name = DepotName
	}
	locations = append(locations, depot)
	for i, c := range req.Customers {
		c.Name = stopName(c.Name, i+1)
		locations = append(locations, c)
	}

	return &problem{locations: locations, vehicles: vehicles, capacity: capacity}, nil
}

func validateCoordinate(l *Location, field string) []models.FieldError {
	var errs []models.FieldError
	if math.IsNaN(l.Lat) || l.Lat < -90 || l.Lat > 90 {
		errs = append(errs, models.FieldError{Field: field + ".lat", Message: "must be between -90 and 90"})
	}
	if math.IsNaN(l.Lon) || l.Lon < -180 || l.Lon > 180 {
		errs = append(errs, models.FieldError{Field: field + ".lon", Message: "must be between -180 and 180"})
	}
	return errs
}
