package datastore

import (
	"github.com/stevegt/datastore/engine"
)

// await blocks until req settles and returns its outcome.  The
// engine's error is returned as is.
func await(req *engine.Request) (result interface{}, err error) {
	<-req.Done()
	return req.Result(), req.Err()
}

// awaitDone is await for requests whose result is not used.
func awaitDone(req *engine.Request) error {
	_, err := await(req)
	return err
}
