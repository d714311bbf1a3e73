package service

import (
	"errors"

	"github.com/S1riyS/vfsd/internal/pkg/kerrors"
)

type ServiceError struct {
	Code    int64
	Message string
}

func (e *ServiceError) Error() string {
	return e.Message
}

func newError(code int64, msg string) *ServiceError {
	return &ServiceError{Code: code, Message: msg}
}

// Code extracts the positive errno carried by err, ENOMEM for anything that
// is not a ServiceError.
func Code(err error) int64 {
	if err == nil {
		return 0
	}
	var serviceErr *ServiceError
	if errors.As(err, &serviceErr) {
		return serviceErr.Code
	}
	return kerrors.ENOMEM
}
