package planner

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/fleetroute/fleetroute/internal/api/models"
)

// DepotName marks the depot row of an uploaded sheet.
const DepotName = "Depot"

// CSV column headers.
const (
	ColumnName      = "LocationName"
	ColumnLatitude  = "Latitude"
	ColumnLongitude = "Longitude"
	ColumnDemand    = "Demand"
)

// ParseCSV reads a location sheet with the columns LocationName, Latitude,
// Longitude and Demand. The row named "Depot" (any case) becomes the depot;
// every other row is a customer in sheet order. An empty Demand is zero.
// Fleet size and capacity are left for the caller to set.
func ParseCSV(r io.Reader) (*Request, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, csvError("csv", "is empty")
	}
	if err != nil {
		return nil, csvError("csv", err.Error())
	}

	columns := make(map[string]int, len(header))
	for i, h := range header {
		h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		columns[strings.ToLower(h)] = i
	}

	var fieldErrs []models.FieldError
	for _, name := range []string{ColumnName, ColumnLatitude, ColumnLongitude} {
		if _, ok := columns[strings.ToLower(name)]; !ok {
			fieldErrs = append(fieldErrs, models.FieldError{Field: "csv." + name, Message: "column is required"})
		}
	}
	if len(fieldErrs) > 0 {
		return nil, &ValidationError{Errors: fieldErrs}
	}

	req := &Request{}
	line := 1
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, csvError("csv", err.Error())
		}

		loc, errs := parseRow(record, columns, line)
		if len(errs) > 0 {
			fieldErrs = append(fieldErrs, errs...)
			continue
		}

		if strings.EqualFold(loc.Name, DepotName) {
			if req.Depot != nil {
				fieldErrs = append(fieldErrs, models.FieldError{
					Field:   fmt.Sprintf("csv.row[%d]", line),
					Message: "duplicate depot row",
				})
				continue
			}
			depot := loc
			req.Depot = &depot
			continue
		}
		req.Customers = append(req.Customers, loc)
	}

	if req.Depot == nil {
		fieldErrs = append(fieldErrs, models.FieldError{
			Field:   "csv",
			Message: fmt.Sprintf("must contain a row with %s = '%s'", ColumnName, DepotName),
		})
	}
	if len(fieldErrs) > 0 {
		return nil, &ValidationError{Errors: fieldErrs}
	}

	return req, nil
}

func parseRow(record []string, columns map[string]int, line int) (Location, []models.FieldError) {
	get := func(column string) string {
		i, ok := columns[strings.ToLower(column)]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}
	field := func(column string) string {
		return fmt.Sprintf("csv.row[%d].%s", line, column)
	}

	var errs []models.FieldError
	loc := Location{Name: get(ColumnName)}

	lat, err := strconv.ParseFloat(get(ColumnLatitude), 64)
	if err != nil {
		errs = append(errs, models.FieldError{Field: field(ColumnLatitude), Message: "must be a number"})
	}
	loc.Lat = lat

	lon, err := strconv.ParseFloat(get(ColumnLongitude), 64)
	if err != nil {
		errs = append(errs, models.FieldError{Field: field(ColumnLongitude), Message: "must be a number"})
	}
	loc.Lon = lon

	if raw := get(ColumnDemand); raw != "" {
		demand, err := strconv.Atoi(raw)
		if err != nil {
			errs = append(errs, models.FieldError{Field: field(ColumnDemand), Message: "must be a whole number"})
		}
		loc.Demand = demand
	}

	return loc, errs
}

func csvError(field, message string) error {
	return &ValidationError{Errors: []models.FieldError{{Field: field, Message: message}}}
}
