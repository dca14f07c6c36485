package proctor

import (
	"context"

	"github.com/google/uuid"
)

// CameraRequest identifies the attempt asking for the camera.
type CameraRequest struct {
	SessionID   uuid.UUID
	ExamID      uuid.UUID
	StudentID   uuid.UUID
	DeviceReady bool
}

// CameraLease is held from Start until the first terminal transition or teardown.
type CameraLease interface {
	Release(ctx context.Context) error
}

// Camera acquires the proctoring camera for a session. Failures should wrap
// ErrCameraUnavailable.
type Camera interface {
	Acquire(ctx context.Context, req CameraRequest) (CameraLease, error)
}

// DeviceCamera trusts the client's device report and holds no external state.
type DeviceCamera struct{}

func (DeviceCamera) Acquire(_ context.Context, req CameraRequest) (CameraLease, error) {
	if !req.DeviceReady {
		return nil, ErrCameraUnavailable
	}
	return nopLease{}, nil
}

type nopLease struct{}

func (nopLease) Release(context.Context) error { return nil }
