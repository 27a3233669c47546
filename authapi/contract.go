package authapi

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers"
)

//go:embed openapi.yaml
var openAPIDocument []byte

// OpenAPIDocument returns the raw contract, served by the backend and loaded by clients.
func OpenAPIDocument() []byte {
	return bytes.Clone(openAPIDocument)
}

// Contract validates requests and responses against the embedded OpenAPI document.
type Contract struct {
	doc *openapi3.T
}

var (
	defaultContract    *Contract
	defaultContractErr error
	loadOnce           sync.Once
)

// DefaultContract parses the embedded document once and shares it.
func DefaultContract() (*Contract, error) {
	loadOnce.Do(func() {
		defaultContract, defaultContractErr = LoadContract(openAPIDocument)
	})
	return defaultContract, defaultContractErr
}

// LoadContract parses and validates an OpenAPI document.
func LoadContract(data []byte) (*Contract, error) {
	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromData(data)
	if err != nil {
		return nil, fmt.Errorf("failed to load OpenAPI contract: %w", err)
	}
	if err := doc.Validate(loader.Context); err != nil {
		return nil, fmt.Errorf("OpenAPI contract is invalid: %w", err)
	}
	return &Contract{doc: doc}, nil
}

func (c *Contract) Document() *openapi3.T {
	return c.doc
}

// Covers reports whether the contract documents method and path.
func (c *Contract) Covers(method, path string) bool {
	_, err := c.route(method, path)
	return err == nil
}

func (c *Contract) route(method, path string) (*routers.Route, error) {
	item := c.doc.Paths.Find(path)
	if item == nil {
		return nil, fmt.Errorf("path %s is not part of the contract", path)
	}
	op := item.GetOperation(method)
	if op == nil {
		return nil, fmt.Errorf("operation %s %s is not part of the contract", method, path)
	}
	return &routers.Route{
		Spec:      c.doc,
		Path:      path,
		PathItem:  item,
		Method:    method,
		Operation: op,
	}, nil
}

// ValidateRequest checks r, whose body is restored for the next reader, against
// the operation documented at path.
func (c *Contract) ValidateRequest(ctx context.Context, path string, r *http.Request) error {
	route, err := c.route(r.Method, path)
	if err != nil {
		return err
	}
	return openapi3filter.ValidateRequest(ctx, &openapi3filter.RequestValidationInput{
		Request: r,
		Route:   route,
		Options: &openapi3filter.Options{
			AuthenticationFunc: openapi3filter.NoopAuthenticationFunc,
		},
	})
}

// ValidateResponse checks a received response body against the operation documented at path.
func (c *Contract) ValidateResponse(ctx context.Context, path string, r *http.Request, status int, header http.Header, body []byte) error {
	route, err := c.route(r.Method, path)
	if err != nil {
		return err
	}
	return openapi3filter.ValidateResponse(ctx, &openapi3filter.ResponseValidationInput{
		RequestValidationInput: &openapi3filter.RequestValidationInput{
			Request: r,
			Route:   route,
		},
		Status: status,
		Header: header,
		Body:   io.NopCloser(bytes.NewReader(body)),
		Options: &openapi3filter.Options{
			AuthenticationFunc: openapi3filter.NoopAuthenticationFunc,
		},
	})
}
