package peer

import "errors"

var (
	ErrUnknownPeer    = errors.New("no route to peer")
	ErrWrongNode      = errors.New("request addressed to another node")
	ErrClosed         = errors.New("router closed")
	ErrAlreadyRunning = errors.New("server is already running")
)
