package engine

import (
	"errors"
	"sync"
)

var errUnknown = errors.New("request failed without a reason")

// Request is a single-shot completion.  One producer settles it with
// Succeed or Fail; later settle calls are ignored.  Consumers wait on
// Done and then read Result and Err.
type Request struct {
	once   sync.Once
	done   chan struct{}
	result interface{}
	err    error
}

// NewRequest returns an unsettled request.
func NewRequest() *Request {
	return &Request{done: make(chan struct{})}
}

// Succeeded returns a request already settled with result.
func Succeeded(result interface{}) *Request {
	r := NewRequest()
	r.Succeed(result)
	return r
}

// Failed returns a request already settled with err.
func Failed(err error) *Request {
	r := NewRequest()
	r.Fail(err)
	return r
}

// Settled returns a request already settled with result, or with
// err if it is not nil.
func Settled(result interface{}, err error) *Request {
	r := NewRequest()
	r.Settle(result, err)
	return r
}

// Succeed settles the request with result.  It reports whether this
// call settled the request.
func (r *Request) Succeed(result interface{}) (settled bool) {
	r.once.Do(func() {
		r.result = result
		close(r.done)
		settled = true
	})
	return
}

// Fail settles the request with err.  A nil err is replaced so a
// failed request never looks successful.
func (r *Request) Fail(err error) (settled bool) {
	if err == nil {
		err = errUnknown
	}
	r.once.Do(func() {
		r.err = err
		close(r.done)
		settled = true
	})
	return
}

// Settle succeeds with result when err is nil and fails otherwise.
func (r *Request) Settle(result interface{}, err error) bool {
	if err != nil {
		return r.Fail(err)
	}
	return r.Succeed(result)
}

// Done is closed once the request has settled.
func (r *Request) Done() <-chan struct{} {
	return r.done
}

// Result returns the success value.  It is only meaningful after Done
// is closed.
func (r *Request) Result() interface{} {
	return r.result
}

// Err returns the failure reason, or nil.  It is only meaningful after
// Done is closed.
func (r *Request) Err() error {
	return r.err
}
