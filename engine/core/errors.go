package core

import (
	"errors"
)

var (
	ErrSwapchainBooting  = errors.New("swapchain resized or recreated, booting")
	ErrUnknown           = errors.New("unknown")
	ErrNotInitialized    = errors.New("not initialized")
	ErrInvalidHandle     = errors.New("invalid or nil handle")
	ErrCapacityExceeded  = errors.New("capacity exceeded")
	ErrMaterialNotFound  = errors.New("material not found")
	ErrUnknownBackend    = errors.New("unknown graphics backend")
	ErrMultipleBackends  = errors.New("multiple backends requested")
	ErrResourceState     = errors.New("resource in wrong state")
	ErrCommandListClosed = errors.New("command list is not open")
	ErrFatalDevice       = errors.New("fatal device error")
	ErrInvalidConfig     = errors.New("invalid configuration")
)
