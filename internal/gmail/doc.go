// Package gmail reads messages and attachments from the Gmail API and
// flattens Gmail's MIME part trees into the flat records returned by the
// MCP tools.
//
// The package has two halves:
//   - Client issues the read-only API calls (search, message fetch,
//     attachment fetch) and maps API failures to *ProviderError kinds.
//   - Normalize is a pure function from a *gmail.Message to a MessageDetail
//     and its attachment list. It performs no I/O.
//
// Example usage:
//
//	svc, err := gmail.NewService(ctx, httpClient, "")
//	if err != nil {
//	    return err
//	}
//	client := gmail.NewClient(gmail.NewServiceAPI(svc), gmail.WithLogger(logger))
//
//	summaries, err := client.Search(ctx, "from:alice@example.com", 10)
//	if err != nil {
//	    return err
//	}
//	detail, err := client.GetMessageDetail(ctx, summaries[0].MessageID, gmail.NormalizeOptions{})
package gmail
