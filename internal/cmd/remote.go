package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/lingualens/lingualens/internal/appid"
	"github.com/lingualens/lingualens/internal/config"
	apperrors "github.com/lingualens/lingualens/internal/errors"
)

// hostClient talks to a running serve instance.
type hostClient struct {
	baseURL string
	token   string
	http    *http.Client
}

// hostError is a non-2xx reply from the host.
type hostError struct {
	Status  int
	Code    string
	Message string
}

func (e *hostError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("host returned HTTP %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("host returned %s (HTTP %d): %s", e.Code, e.Status, e.Message)
}

func addServerFlags(cmd *cobra.Command) {
	cmd.Flags().String("server", "", "Base URL of a running host (default from server.host/server.port)")
	cmd.Flags().String("token", "", "Bearer token for the host (default $"+appid.EnvPrefix()+"TOKEN)")
}

func newHostClient(cmd *cobra.Command, cfg *config.Config) *hostClient {
	base, _ := cmd.Flags().GetString("server")
	base = strings.TrimRight(strings.TrimSpace(base), "/")
	if base == "" {
		host := cfg.Server.Host
		if host == "" {
			host = "localhost"
		}
		base = "http://" + net.JoinHostPort(host, strconv.Itoa(cfg.Server.Port))
	}

	token, _ := cmd.Flags().GetString("token")
	if strings.TrimSpace(token) == "" {
		token = os.Getenv(appid.EnvPrefix() + "TOKEN")
	}

	return &hostClient{
		baseURL: base,
		token:   strings.TrimSpace(token),
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

func (c *hostClient) do(ctx context.Context, method, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("contact host %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close() // nolint:errcheck // best-effort cleanup

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read host response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var envelope apperrors.HTTPErrorResponse
		if json.Unmarshal(body, &envelope) == nil && envelope.Error.Code != "" {
			return &hostError{Status: resp.StatusCode, Code: envelope.Error.Code, Message: envelope.Error.Message}
		}
		return &hostError{Status: resp.StatusCode, Message: strings.TrimSpace(string(body))}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode host response: %w", err)
	}
	return nil
}
