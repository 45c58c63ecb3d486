package main

import (
	"context"
	"os"

	"golang.org/x/term"
)

// readKeys puts stdin in raw mode and streams key presses. restore puts the
// terminal back and must be called before exit.
func readKeys(ctx context.Context) (<-chan rune, func(), error) {
	fd := int(os.Stdin.Fd())
	old, err := term.MakeRaw(fd)
	if err != nil {
		return nil, nil, err
	}
	restore := func() { _ = term.Restore(fd, old) }

	keys := make(chan rune, 16)
	go func() {
		defer close(keys)
		buf := make([]byte, 1)
		for {
			n, err := os.Stdin.Read(buf)
			if err != nil {
				return
			}
			if n == 0 {
				continue
			}
			select {
			case keys <- rune(buf[0]):
			case <-ctx.Done():
				return
			}
		}
	}()
	return keys, restore, nil
}
