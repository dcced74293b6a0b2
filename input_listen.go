package tvio

import (
	"fmt"
)

// ListenResult is the outcome of a trigger or an emit observed by a
// listening Input.
type ListenResult struct {
	ID       string
	Function string
	// RequestParams are the parameters the function was run with.
	RequestParams []byte
	Params        []byte
}

// StartListen makes the Input collect the results of function produced for
// anyone. Listening twice is a no-op.
func (in *Input) StartListen(function string) error {
	if err := in.guard(); err != nil {
		return err
	}
	defer in.lk.Unlock()

	if _, ok := in.iface.Function(function); !ok {
		return fmt.Errorf("%w: %s", ErrInvalidFunction, function)
	}
	in.listening[function] = struct{}{}
	return nil
}

// StopListen stops collecting results of function. Results already
// collected stay readable.
func (in *Input) StopListen(function string) error {
	if err := in.guard(); err != nil {
		return err
	}
	defer in.lk.Unlock()

	if _, ok := in.iface.Function(function); !ok {
		return fmt.Errorf("%w: %s", ErrInvalidFunction, function)
	}
	delete(in.listening, function)
	return nil
}

func (in *Input) ListenResultAvailable() (bool, error) {
	if err := in.guard(); err != nil {
		return false, err
	}
	defer in.lk.Unlock()
	return in.listen.Available(), nil
}

// ListenResult returns the oldest uncleared result without consuming it.
func (in *Input) ListenResult() (ListenResult, error) {
	if err := in.guard(); err != nil {
		return ListenResult{}, err
	}
	defer in.lk.Unlock()

	res, ok := in.listen.Peek()
	if !ok {
		return ListenResult{}, ErrNoResultAvailable
	}
	return res, nil
}

func (in *Input) ListenResultID() (string, error) {
	res, err := in.ListenResult()
	return res.ID, err
}

func (in *Input) ListenResultFunction() (string, error) {
	res, err := in.ListenResult()
	return res.Function, err
}

func (in *Input) ListenResultParams() ([]byte, error) {
	res, err := in.ListenResult()
	return res.Params, err
}

func (in *Input) ListenResultRequestParams() ([]byte, error) {
	res, err := in.ListenResult()
	return res.RequestParams, err
}

// ClearListenResult consumes the visible result and exposes the next one.
func (in *Input) ClearListenResult() error {
	if err := in.guard(); err != nil {
		return err
	}
	defer in.lk.Unlock()

	in.listen.Clear()
	return nil
}
