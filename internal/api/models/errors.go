package models

import "errors"

// Graph editing errors. They are returned synchronously at the offending mutation and
// never reach the worker.
var (
	ErrUnknownNodeType     = errors.New("unknown node type")
	ErrNodeNotFound        = errors.New("node not found")
	ErrEdgeNotFound        = errors.New("edge not found")
	ErrInvalidParamValue   = errors.New("invalid parameter value")
	ErrInvalidHandle       = errors.New("invalid handle")
	ErrDuplicateConnection = errors.New("target handle already connected")
	ErrCyclicGraph         = errors.New("graph contains a cycle")
)

// Protocol errors.
var (
	ErrInvalidCommand = errors.New("invalid command")
	ErrSerialization  = errors.New("command serialization failed")
	ErrUnknownEvent   = errors.New("unknown event")
)
