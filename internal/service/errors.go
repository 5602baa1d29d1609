package service

import (
	"errors"

	"github.com/S1riyS/memfs9p/server/internal/pkg/kerrors"
)

type ServiceError struct {
	Code    int64
	Message string
}

func (e *ServiceError) Error() string {
	return e.Message
}

func (e *ServiceError) GetCode() int64 {
	return e.Code
}

func newError(code int64, message string) *ServiceError {
	return &ServiceError{Code: code, Message: message}
}

// CodeOf returns the errno carried by err, ENOMEM when err is not a ServiceError.
func CodeOf(err error) int64 {
	var serviceErr *ServiceError
	if errors.As(err, &serviceErr) {
		return serviceErr.Code
	}
	return kerrors.ENOMEM
}
