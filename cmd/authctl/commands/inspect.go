package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/myrecipebook/web-gateway/internal/config"
	"github.com/myrecipebook/web-gateway/internal/logger"
	"github.com/myrecipebook/web-gateway/internal/session"
	"github.com/spf13/cobra"
)

// sessionSummary is what operators see; access tokens are reduced to fingerprints
type sessionSummary struct {
	SessionID        string    `json:"sessionId"`
	UserID           string    `json:"userId"`
	Name             string    `json:"name,omitempty"`
	Email            string    `json:"email"`
	TokenFingerprint string    `json:"tokenFingerprint"`
	HasRefreshToken  bool      `json:"hasRefreshToken"`
	IssuedAt         time.Time `json:"issuedAt"`
	ExpiresAt        time.Time `json:"expiresAt"`
	Expired          bool      `json:"expired"`
}

func summarize(s *session.Session, now time.Time) sessionSummary {
	return sessionSummary{
		SessionID:        s.ID,
		UserID:           s.User.ID,
		Name:             s.User.Name,
		Email:            s.User.Email,
		TokenFingerprint: logger.TokenFingerprint(s.User.Token),
		HasRefreshToken:  s.User.RefreshToken != "",
		IssuedAt:         s.IssuedAt.UTC(),
		ExpiresAt:        s.ExpiresAt.UTC(),
		Expired:          s.ExpiredAt(now),
	}
}

func writeSummary(out io.Writer, s *session.Session) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(summarize(s, time.Now()))
}

// NewInspectCmd creates the inspect command
func NewInspectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect [token|-]",
		Short: "Decode a session cookie value",
		Long:  "Decrypt and verify a session token with SESSION_SECRET and print its contents. Reads the token from stdin when omitted.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			token, err := tokenArg(args, cmd.InOrStdin())
			if err != nil {
				return err
			}
			minter, err := newMinter(cfg, nil)
			if err != nil {
				return fmt.Errorf("failed to create session minter: %w", err)
			}

			s, err := minter.Decode(token)
			if err != nil {
				return fmt.Errorf("failed to decode session: %w", err)
			}
			return writeSummary(cmd.OutOrStdout(), s)
		},
	}

	return cmd
}
