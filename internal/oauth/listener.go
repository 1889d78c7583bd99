// Package oauth receives the redirect that ends a browser sign-in. The
// backend sends the browser to redirect_uri with the token in the query
// string; a short-lived local listener catches it.
package oauth

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sync"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/arunshreyas/Marketa/internal/domain"
	"github.com/arunshreyas/Marketa/internal/logging"
	"github.com/arunshreyas/Marketa/internal/session"
)

// CallbackPath is where the listener expects the redirect.
const CallbackPath = "/callback"

// ErrClosed is returned by Wait after Close.
var ErrClosed = errors.New("oauth: listener closed")

// Listener serves CallbackPath on a loopback port until a token arrives.
type Listener struct {
	echo     *echo.Echo
	addr     string
	logger   *zap.Logger
	sessions chan *domain.Session
	done     chan struct{}

	closeOnce sync.Once
	closed    chan struct{}
}

// Listen binds addr (host:port, port 0 picks a free one) and starts serving.
func Listen(addr string, logger *zap.Logger) (*Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen for oauth callback: %w", err)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Listener = ln
	e.Use(middleware.Recover())

	l := &Listener{
		echo:     e,
		addr:     ln.Addr().String(),
		logger:   logging.OrNop(logger),
		sessions: make(chan *domain.Session, 1),
		done:     make(chan struct{}),
		closed:   make(chan struct{}),
	}
	e.GET(CallbackPath, l.handleCallback)

	go func() {
		defer close(l.done)
		if err := e.Start(""); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.logger.Warn("oauth callback listener stopped", zap.Error(err))
		}
	}()
	return l, nil
}

// RedirectURI is the address to hand the backend.
func (l *Listener) RedirectURI() string {
	return "http://" + l.addr + CallbackPath
}

// AuthorizeURL appends the listener's redirect_uri to the provider start URL.
func (l *Listener) AuthorizeURL(startURL string) (string, error) {
	u, err := url.Parse(startURL)
	if err != nil {
		return "", fmt.Errorf("parse oauth url: %w", err)
	}
	q := u.Query()
	q.Set("redirect_uri", l.RedirectURI())
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Wait blocks until the first callback with a token arrives.
func (l *Listener) Wait(ctx context.Context) (*domain.Session, error) {
	select {
	case sess := <-l.sessions:
		return sess, nil
	case <-l.closed:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close stops the listener and waits for it to exit.
func (l *Listener) Close() error {
	var err error
	l.closeOnce.Do(func() {
		close(l.closed)
		err = l.echo.Close()
		<-l.done
	})
	return err
}

func (l *Listener) handleCallback(c echo.Context) error {
	sess, err := session.FromQuery(c.QueryParams())
	if err != nil {
		l.logger.Warn("oauth callback without token")
		return c.String(http.StatusBadRequest, "Sign-in failed: the callback carried no token. Return to the terminal and try again.")
	}
	select {
	case l.sessions <- sess:
	default:
	}
	l.logger.Info("oauth callback received", zap.String("user_id", sess.UserID()))
	return c.String(http.StatusOK, "Signed in to Marketa. You can close this tab and return to the terminal.")
}
