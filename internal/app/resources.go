package app

import "errors"

// resources collects what NewApp has opened so a failed boot can release it.
type resources struct {
	closers []func() error
}

func (r *resources) add(fn func() error) {
	if fn != nil {
		r.closers = append(r.closers, fn)
	}
}

// release closes everything in reverse order of acquisition. Every closer
// runs even if an earlier one fails.
func (r *resources) release() error {
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	r.closers = nil
	return errors.Join(errs...)
}
