package topology

import "errors"

// Sentinel errors for topology validation.
var (
	ErrEmpty            = errors.New("topology has no nodes")
	ErrInvalidNode      = errors.New("negative node id")
	ErrDuplicateNode    = errors.New("duplicate node")
	ErrUnknownNode      = errors.New("edge endpoint is not a node")
	ErrSelfLoop         = errors.New("self loop")
	ErrDuplicateEdge    = errors.New("parallel edge")
	ErrInvalidWeight    = errors.New("weight out of range")
	ErrDuplicateWeight  = errors.New("edge weights are not distinct")
	ErrDisconnected     = errors.New("graph is disconnected")
	ErrUnknownGenerator = errors.New("unknown generator")
)
