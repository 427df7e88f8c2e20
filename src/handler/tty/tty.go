// Package tty controls the player with the keyboard of the terminal the
// process runs in.
package tty

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	log "github.com/sirupsen/logrus"
	"golang.org/x/term"

	"fanplay/src/playback"
)

const (
	keyEsc   = 0x1b
	keyCtrlC = 0x03
)

// ErrQuit is returned by Run when the user asked to quit.
var ErrQuit = errors.New("quit requested")

// A KeyHandler acts on key presses.
type KeyHandler interface {
	HandleKey(ev playback.KeyEvent) bool
}

var arrows = map[byte]string{
	'A': playback.KeyUp,
	'B': playback.KeyDown,
	'C': playback.KeyRight,
	'D': playback.KeyLeft,
}

// Scan decodes key presses from raw terminal input and calls fn with the
// name of every key. It returns ErrQuit when q or Ctrl+C is read and nil at
// the end of the input.
func Scan(r io.Reader, fn func(key string)) error {
	br := bufio.NewReader(r)
	for {
		b, err := br.ReadByte()
		if err == io.EOF {
			return nil
		} else if err != nil {
			return err
		}

		switch {
		case b == 'q' || b == 'Q' || b == keyCtrlC:
			return ErrQuit
		case b == ' ':
			fn(playback.KeySpace)
		case b == keyEsc:
			// Arrow keys are sent as ESC [ A..D.
			seq, err := br.Peek(2)
			if err != nil || seq[0] != '[' {
				continue
			}
			br.Discard(2)
			if key, ok := arrows[seq[1]]; ok {
				fn(key)
			}
		case b >= 'A' && b <= 'Z':
			fn(string(b - 'A' + 'a'))
		case b >= 'a' && b <= 'z':
			fn(string(b))
		}
	}
}

// Run puts the terminal in raw mode and feeds key presses to h until ctx is
// done or the user quits.
func Run(ctx context.Context, in *os.File, h KeyHandler) error {
	fd := int(in.Fd())
	if !term.IsTerminal(fd) {
		return fmt.Errorf("keyboard control requires a terminal")
	}
	oldState, err := term.MakeRaw(fd)
	if err != nil {
		return fmt.Errorf("could not set raw mode: %v", err)
	}
	defer term.Restore(fd, oldState)

	done := make(chan error, 1)
	go func() {
		done <- Scan(in, func(key string) {
			if !h.HandleKey(playback.KeyEvent{Key: key}) {
				log.Debugf("Unbound key %q", key)
			}
		})
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		return err
	}
}
