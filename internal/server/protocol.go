package server

import (
	"bufio"
	"bytes"
	"net"
	"time"

	"github.com/samber/lo"
)

type protocolType int

const (
	protocolTCP protocolType = iota
	protocolHTTP
)

func (p protocolType) String() string {
	if p == protocolHTTP {
		return "http"
	}
	return "tcp"
}

// HTTP requests start with one of these; TCP peers start with their token.
var httpPrefixes = [][]byte{
	[]byte("GET "),
	[]byte("POST"),
	[]byte("PUT "),
	[]byte("HEAD"),
	[]byte("OPTI"),
	[]byte("PATC"),
	[]byte("DELE"),
}

// detectProtocol peeks at the first bytes of conn to determine protocol type.
// The returned reader holds the peeked bytes. A peer sending fewer than four
// bytes within timeout is treated as TCP.
func detectProtocol(conn net.Conn, timeout time.Duration) (protocolType, *bufio.Reader, error) {
	reader := bufio.NewReader(conn)

	if timeout > 0 {
		if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
			return protocolTCP, reader, err
		}
		defer conn.SetReadDeadline(time.Time{})
	}

	peek, err := reader.Peek(4)
	if len(peek) == 0 {
		return protocolTCP, reader, err
	}

	if lo.ContainsBy(httpPrefixes, func(prefix []byte) bool { return bytes.HasPrefix(peek, prefix) }) {
		return protocolHTTP, reader, nil
	}
	return protocolTCP, reader, nil
}
