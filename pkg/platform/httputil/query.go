package httputil

import (
	"net/http"
	"strconv"

	id "shareledger/pkg/domain"
	dErrors "shareledger/pkg/domain-errors"
)

// QueryInt reads a non-negative integer query parameter.
func QueryInt(r *http.Request, name string, def int) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, dErrors.New(dErrors.CodeValidation, name+" must be a non-negative integer")
	}
	return n, nil
}

// QueryBool reads an optional boolean query parameter.
func QueryBool(r *http.Request, name string) (*bool, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return nil, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return nil, dErrors.New(dErrors.CodeValidation, name+" must be a boolean")
	}
	return &b, nil
}

// QueryPage reads limit and offset.
func QueryPage(r *http.Request) (id.Page, error) {
	limit, err := QueryInt(r, "limit", id.DefaultPageLimit)
	if err != nil {
		return id.Page{}, err
	}
	offset, err := QueryInt(r, "offset", 0)
	if err != nil {
		return id.Page{}, err
	}
	return id.Page{Limit: limit, Offset: offset}, nil
}
