package resources

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/gmail-mcp/internal/gmail"
	"github.com/teemow/gmail-mcp/internal/logging"
	"github.com/teemow/gmail-mcp/internal/server"
)

// ProfileURI is the URI of the mailbox profile resource.
const ProfileURI = "gmail://profile"

const mimeTypeJSON = "application/json"

// ProfileSource returns the mailbox profile. *gmail.Client implements it.
type ProfileSource interface {
	GetProfile(ctx context.Context) (gmail.Profile, error)
}

var _ ProfileSource = (*gmail.Client)(nil)

// RegisterGmailResources registers the mailbox resources backed by the
// Gmail client of sc.
func RegisterGmailResources(s *mcpserver.MCPServer, sc *server.ServerContext) error {
	client := sc.GmailClient()
	if client == nil {
		return errors.New("no Gmail client configured")
	}

	s.AddResource(profileResource(), ProfileHandler(client, sc.Logger()))
	return nil
}

func profileResource() mcp.Resource {
	return mcp.NewResource(
		ProfileURI,
		"Gmail Profile",
		mcp.WithResourceDescription("Email address and message and thread totals of the authorized Gmail account"),
		mcp.WithMIMEType(mimeTypeJSON),
	)
}

// ProfileHandler returns the read handler of the profile resource.
func ProfileHandler(source ProfileSource, logger *slog.Logger) mcpserver.ResourceHandlerFunc {
	if logger == nil {
		logger = logging.Discard()
	}

	return func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		profile, err := source.GetProfile(ctx)
		if err != nil {
			logger.WarnContext(ctx, "failed to read profile",
				slog.String("uri", request.Params.URI),
				logging.Kind(gmail.KindOf(err)),
				logging.Err(err))
			return nil, fmt.Errorf("failed to get profile: %w", err)
		}

		jsonData, err := json.MarshalIndent(profile, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("failed to marshal profile: %w", err)
		}

		return []mcp.ResourceContents{
			&mcp.TextResourceContents{
				URI:      request.Params.URI,
				MIMEType: mimeTypeJSON,
				Text:     string(jsonData),
			},
		}, nil
	}
}
