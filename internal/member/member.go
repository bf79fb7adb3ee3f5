package member

import "errors"

var (
	ErrMemberNotFound  = errors.New("member not found")
	ErrVehicleNotFound = errors.New("vehicle not found")
)
