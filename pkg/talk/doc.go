// Package talk is a client for the fan-club messaging APIs.
//
// Every group runs the same API on its own host with its own app identity,
// so a single Client is parameterized by a Group from the registry:
//
//	group, _ := talk.LookupGroup("nogi")
//	client := talk.NewClient(group, &cfg.HTTP, log)
//
//	tokens := talk.NewTokenManager(log)
//	access, err := tokens.AcquireAccessToken(ctx, talk.TokenTarget{
//	    Client:       client,
//	    RefreshToken: refresh,
//	})
//
//	msgs, err := client.FetchMessages(ctx, access, memberID, checkpoint)
//
// Failures are *errors.Error values classified as token_exchange_failed,
// fetch_failed or media_download_failed, wrapping the transport class
// (network, auth, server_error, ...) with the HTTP status in Code.
package talk
