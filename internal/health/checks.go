package health

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"
)

// HTTPCheck probes an HTTP dependency with a GET request. Any answer
// below 500 counts as reachable; the probe asserts connectivity, not
// endpoint semantics.
func HTTPCheck(url string, timeout time.Duration) CheckFunc {
	client := &http.Client{Timeout: timeout}

	return func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
		if err != nil {
			return fmt.Errorf("build probe request: %w", err)
		}

		resp, err := client.Do(req)
		if err != nil {
			return fmt.Errorf("probe %s: %w", url, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= http.StatusInternalServerError {
			return fmt.Errorf("probe %s: status %d", url, resp.StatusCode)
		}

		return nil
	}
}

// TCPCheck probes a TCP dependency by dialing it.
func TCPCheck(address string, timeout time.Duration) CheckFunc {
	dialer := &net.Dialer{Timeout: timeout}

	return func(ctx context.Context) error {
		conn, err := dialer.DialContext(ctx, "tcp", address)
		if err != nil {
			return fmt.Errorf("dial %s: %w", address, err)
		}
		return conn.Close()
	}
}
