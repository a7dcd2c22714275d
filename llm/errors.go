package llm

import "errors"

// ErrUpstream marks failures of external model APIs (chat completion or
// embedding): network errors, auth rejection, rate limits. Callers
// surface these directly; nothing in this codebase retries them.
var ErrUpstream = errors.New("upstream model error")
