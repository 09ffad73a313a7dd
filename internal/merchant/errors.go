package merchant

import "errors"

var (
	// ErrTenantNotFound covers an unknown sid as well as an omitted sid with
	// zero or several installed stores.
	ErrTenantNotFound   = errors.New("store not found")
	ErrTemplateNotFound = errors.New("template not found")
	ErrInvalidInput     = errors.New("invalid input")
)
