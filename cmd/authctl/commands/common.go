package commands

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/myrecipebook/web-gateway/internal/config"
	"github.com/myrecipebook/web-gateway/internal/session"
	"github.com/redis/go-redis/v9"
)

func connectRedis(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// newMinter builds a minter that shares the server's secret. store may be nil for decode-only use.
func newMinter(cfg *config.Config, store session.RevocationStore) (*session.Minter, error) {
	return session.NewMinter(cfg.SessionSecret, cfg.SessionMaxAge, store,
		session.WithSecureCookies(cfg.SecureCookies),
	)
}

// tokenArg returns the token from args, or reads one line from in when the argument is "-" or missing
func tokenArg(args []string, in io.Reader) (string, error) {
	if len(args) > 0 && args[0] != "-" {
		return strings.TrimSpace(args[0]), nil
	}
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("read token: %w", err)
	}
	token := strings.TrimSpace(line)
	if token == "" {
		return "", fmt.Errorf("no session token given")
	}
	return token, nil
}
