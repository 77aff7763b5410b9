package platform

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"
)

const authPath = "/authentication"

// Authenticate 以 Basic Auth 调用 POST /authentication；成功（201）后会话 cookie 保存在 jar 中。
func (c *Client) Authenticate(ctx context.Context) error {
	if !c.HasCredentials() {
		return ErrNoCredentials
	}

	c.authMu.Lock()
	defer c.authMu.Unlock()

	resp, err := c.send(ctx, call{name: "authentication", method: http.MethodPost, path: authPath}, func(r *http.Request) {
		r.SetBasicAuth(c.email, c.password)
	})
	if err != nil {
		return fmt.Errorf("authenticate: %w", err)
	}

	switch resp.status {
	case http.StatusCreated, http.StatusOK:
		c.authenticated = true
		c.logger.WithFields(logrus.Fields{"action": "platform_auth"}).Info("authenticated")
		return nil
	case http.StatusUnauthorized:
		if strings.EqualFold(strings.TrimSpace(resp.header.Get("WWW-Authenticate")), "persona") {
			return ErrChallengeRequired
		}
		return fmt.Errorf("authenticate: incorrect email or password: %w", ErrUnauthorized)
	case http.StatusTooManyRequests:
		if ra := resp.header.Get("Retry-After"); ra != "" {
			return fmt.Errorf("authenticate: retry after %ss: %w", ra, ErrRateLimited)
		}
		return fmt.Errorf("authenticate: %w", ErrRateLimited)
	default:
		return newStatusError(authPath, resp.status, resp.body)
	}
}

// Authenticated 表示当前会话是否已认证。
func (c *Client) Authenticated() bool {
	c.authMu.Lock()
	defer c.authMu.Unlock()
	return c.authenticated
}

// ensureAuthenticated 在首次调用时登录；未配置凭证时以匿名方式继续，由平台决定是否拒绝。
func (c *Client) ensureAuthenticated(ctx context.Context) error {
	if !c.HasCredentials() || c.Authenticated() {
		return nil
	}
	return c.Authenticate(ctx)
}

func (c *Client) resetSession() {
	c.authMu.Lock()
	c.authenticated = false
	c.authMu.Unlock()
}
