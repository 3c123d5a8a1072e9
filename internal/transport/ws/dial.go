package ws

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gobwas/ws"
	"github.com/omochice/realtime-chat/internal/auth"
)

// Dial opens a client connection to url, presenting token as the session
// cookie when it is not empty.
func Dial(ctx context.Context, url, token string, binary bool, writeTimeout time.Duration) (*Conn, error) {
	var dialer ws.Dialer
	if token != "" {
		cookie := &http.Cookie{Name: auth.CookieName, Value: token}
		dialer.Header = ws.HandshakeHeaderHTTP(http.Header{"Cookie": []string{cookie.String()}})
	}

	conn, br, _, err := dialer.Dial(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}

	var source io.Reader = conn
	if br != nil {
		source = br
	}
	return NewConn(conn, source, ws.StateClientSide, binary, writeTimeout), nil
}
