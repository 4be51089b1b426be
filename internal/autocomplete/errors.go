package autocomplete

import "errors"

var (
	// ErrUnknownProvider means store/remove was invoked with a provider
	// that is not registered with any autocompleter.
	ErrUnknownProvider = errors.New("autocomplete: unknown provider")

	// ErrEmptyItemID means a provider produced an item without an id.
	ErrEmptyItemID = errors.New("autocomplete: empty item id")
)
