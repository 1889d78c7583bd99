// Command marketa is the terminal client of the Marketa campaign assistant.
// Run without arguments for the full-screen interface.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/arunshreyas/Marketa/internal/api"
	"github.com/arunshreyas/Marketa/internal/chat"
	"github.com/arunshreyas/Marketa/internal/session"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, userMessage(err))
		os.Exit(1)
	}
}

// userMessage turns client errors into the wording the terminal shows.
func userMessage(err error) string {
	var apiErr *api.Error
	isAPIErr := errors.As(err, &apiErr)
	switch {
	case isAPIErr && (apiErr.Op == "login" || apiErr.Op == "signup"):
		// A 401 here is a bad password, not an expired session.
		return apiErr.Message
	case isSessionError(err):
		return "Your session has expired or you are not signed in. Run `marketa login`."
	case api.IsNetwork(err):
		return "Unable to connect to server"
	case isAPIErr:
		return apiErr.Message
	}
	return err.Error()
}

func isSessionError(err error) bool {
	return api.IsUnauthorized(err) || errors.Is(err, session.ErrNotSignedIn) || errors.Is(err, chat.ErrNoUser)
}
