package engine

import (
	"errors"
	"testing"
	"time"

	. "github.com/stevegt/goadapt"
)

// As a caller, I want a request to settle exactly once, keeping the
// first outcome.
func TestRequestSettlesOnce(t *testing.T) {
	r := NewRequest()
	select {
	case <-r.Done():
		t.Fatal("new request is already done")
	default:
	}
	ok := r.Succeed("first")
	Tassert(t, ok, "first settle should win")
	ok = r.Fail(errors.New("second"))
	Tassert(t, !ok, "second settle should be ignored")
	ok = r.Succeed("third")
	Tassert(t, !ok, "third settle should be ignored")
	<-r.Done()
	Tassert(t, r.Result() == "first", "result: %v", r.Result())
	Tassert(t, r.Err() == nil, "err: %v", r.Err())
}

// As a caller, I want the failure reason handed back unchanged.
func TestRequestFail(t *testing.T) {
	reason := errors.New("disk on fire")
	r := Failed(reason)
	<-r.Done()
	Tassert(t, r.Err() == reason, "err: %v", r.Err())
	Tassert(t, r.Result() == nil)

	r = NewRequest()
	r.Fail(nil)
	Tassert(t, r.Err() != nil, "a nil failure must still look failed")
}

// As a caller, I want to be able to wait on a request settled by
// another goroutine.
func TestRequestAsync(t *testing.T) {
	r := NewRequest()
	go func() {
		time.Sleep(10 * time.Millisecond)
		r.Settle(42, nil)
	}()
	select {
	case <-r.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("request never settled")
	}
	Tassert(t, r.Result() == 42, "result: %v", r.Result())

	r = Settled(nil, ErrReadOnly)
	Tassert(t, errors.Is(r.Err(), ErrReadOnly))
}

func TestModeString(t *testing.T) {
	Tassert(t, ReadOnly.String() == "readonly")
	Tassert(t, ReadWrite.String() == "readwrite")
	Tassert(t, Mode(9).String() == "unknown")
}
