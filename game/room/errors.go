package room

import "errors"

var (
	// ErrRoomUnavailable is returned for joins that reach a room which is
	// disposing or already disposed. A retry creates a fresh room.
	ErrRoomUnavailable = errors.New("room unavailable")
	ErrUnknownRoomType = errors.New("unknown room type")
	ErrRoomNotFound    = errors.New("room not found")
	ErrManagerClosed   = errors.New("room manager is shut down")
)
