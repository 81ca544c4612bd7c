package auth

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os/exec"
	"runtime"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mirovoy/companion/pkg/utils"
)

// loginTimeout bounds how long the loopback server waits for the
// browser to come back with an authorization code.
const loginTimeout = 5 * time.Minute

type callbackResult struct {
	code string
	err  error
}

// Login runs the authorization-code + PKCE flow: it starts a loopback
// callback server, points the browser at the tenant /authorize page,
// exchanges the returned code for tokens, and persists them.
func (m *Manager) Login(ctx context.Context) (*Credentials, error) {
	if !m.cfg.Configured() {
		return nil, ErrNotConfigured
	}

	verifier, challenge, err := generatePKCE()
	if err != nil {
		return nil, fmt.Errorf("generate PKCE pair: %w", err)
	}
	state, err := randomState()
	if err != nil {
		return nil, fmt.Errorf("generate state: %w", err)
	}

	listener, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", m.cfg.CallbackPort))
	if err != nil {
		return nil, fmt.Errorf("start login callback server: %w", err)
	}
	// Derive the port from the listener so port 0 picks a free one.
	port := listener.Addr().(*net.TCPAddr).Port
	redirectURI := fmt.Sprintf("http://127.0.0.1:%d/callback", port)

	results := make(chan callbackResult, 1)
	deliver := deliverOnce(results)

	r := chi.NewRouter()
	r.Get("/callback", callbackHandler(state, deliver))

	server := &http.Server{
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	go func() {
		if serveErr := server.Serve(listener); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			deliver(callbackResult{err: serveErr})
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	authURL := m.authorizeURL(state, challenge, redirectURI)
	log.Printf("[auth] open this URL to log in: %s", authURL)
	openBrowser(authURL)

	var result callbackResult
	select {
	case result = <-results:
	case <-time.After(loginTimeout):
		return nil, errors.New("login timed out waiting for the browser callback")
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if result.err != nil {
		return nil, result.err
	}

	creds, err := m.exchangeCode(ctx, result.code, verifier, redirectURI)
	if err != nil {
		return nil, err
	}
	if err := saveCredentials(m.cfg.CredentialsFile, creds); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.creds = creds
	m.mu.Unlock()

	return creds, nil
}

// deliverOnce returns a send function that forwards the first result
// and drops the rest, so browser retries and refreshes of the
// callback URL never leave a handler blocked on the channel.
func deliverOnce(results chan<- callbackResult) func(callbackResult) {
	return func(result callbackResult) {
		select {
		case results <- result:
		default:
		}
	}
}

// callbackHandler terminates the browser redirect: it validates the
// state and hands the authorization code (or the failure) to the
// waiting login flow.
func callbackHandler(state string, deliver func(callbackResult)) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		query := req.URL.Query()

		if errCode := query.Get("error"); errCode != "" {
			description := query.Get("error_description")
			utils.RespondErrorPage(w, http.StatusBadRequest, description)
			deliver(callbackResult{err: fmt.Errorf("authorization failed: %s: %s", errCode, description)})
			return
		}
		if query.Get("state") != state {
			utils.RespondErrorPage(w, http.StatusBadRequest, "State mismatch, please retry the login.")
			deliver(callbackResult{err: errors.New("state mismatch in login callback")})
			return
		}
		code := query.Get("code")
		if code == "" {
			utils.RespondErrorPage(w, http.StatusBadRequest, "No authorization code received.")
			deliver(callbackResult{err: errors.New("no authorization code in login callback")})
			return
		}

		utils.RespondPage(w, http.StatusOK, "Login complete", "You can close this tab and return to the terminal.")
		deliver(callbackResult{code: code})
	}
}

// openBrowser makes a best-effort attempt to open the login URL; the
// URL is always printed so a failure here only costs convenience.
func openBrowser(url string) {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "linux":
		cmd = exec.Command("xdg-open", url)
	default:
		return
	}
	if err := cmd.Start(); err != nil {
		log.Printf("[auth] could not open browser: %v", err)
	}
}
