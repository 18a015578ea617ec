package persist

import "errors"

// ErrPoisoned is returned by Drain after an earlier Drain failed.
var ErrPoisoned = errors.New("persist: tracker poisoned by an earlier drain failure")
