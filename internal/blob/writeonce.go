package blob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
)

// writeOnce refuses to overwrite a blob with different content.
type writeOnce struct {
	Store
}

// WriteOnce wraps s so that a key, once written, can only be rewritten with
// identical bytes. Identical rewrites succeed without touching the backend.
func WriteOnce(s Store) Store {
	if _, ok := s.(writeOnce); ok {
		return s
	}
	return writeOnce{Store: s}
}

func (w writeOnce) Put(ctx context.Context, key string, data []byte) error {
	existing, err := w.Store.Get(ctx, key)
	switch {
	case errors.Is(err, ErrNotFound):
		return w.Store.Put(ctx, key, data)
	case err != nil:
		return err
	case bytes.Equal(existing, data):
		return nil
	default:
		return fmt.Errorf("put %s: %w", key, ErrContentMismatch)
	}
}
