package cdp

import (
	"errors"
	"net"
	"strings"
)

func isClosedConnError(err error) bool {
	if errors.Is(err, net.ErrClosed) {
		return true
	}
	// Older websocket versions don't wrap net.ErrClosed.
	return strings.Contains(err.Error(), "use of closed network connection")
}
