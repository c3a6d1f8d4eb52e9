package cryptoadapter

import "sync"

// PassphraseProvider derives the passphrase to use for a given label (e.g.
// an account key or a per-certificate-item key), optionally generating one
// on first use. It re-expresses the source's password-callback-with-memoized-cipher
// as an explicit capability rather than a hidden global, per the manager's
// design notes.
type PassphraseProvider interface {
	Derive(label string, createIfMissing bool) (string, error)
}

// StaticPassphraseProvider returns the same configured passphrase for every
// label; the common case where one passphrase policy covers the whole
// resource directory. An empty passphrase means "clear-text keys".
type StaticPassphraseProvider string

func (p StaticPassphraseProvider) Derive(string, bool) (string, error) {
	return string(p), nil
}

// MemoProvider wraps a derivation function with a single-slot cache of the
// last label/passphrase pair produced, so repeated Derive calls for the
// same label in one run don't re-invoke the (possibly interactive or
// externally-sourced) derive function.
type MemoProvider struct {
	derive func(label string, createIfMissing bool) (string, error)

	mu         sync.Mutex
	lastLabel  string
	lastResult string
	haveLast   bool
}

// NewMemoProvider wraps derive with last-used memoization.
func NewMemoProvider(derive func(label string, createIfMissing bool) (string, error)) *MemoProvider {
	return &MemoProvider{derive: derive}
}

func (p *MemoProvider) Derive(label string, createIfMissing bool) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.haveLast && p.lastLabel == label {
		return p.lastResult, nil
	}

	result, err := p.derive(label, createIfMissing)
	if err != nil {
		return "", err
	}

	p.lastLabel = label
	p.lastResult = result
	p.haveLast = true
	return result, nil
}
