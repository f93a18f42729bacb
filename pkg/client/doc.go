// Package client is the Go SDK for a ledgerd land-registry node.
//
// A Client implements ledger.Client over the node's HTTP API, so the
// registry core runs unchanged against a remote node:
//
//	c, err := client.Dial(ctx, "http://localhost:8080",
//	    client.WithToken(os.Getenv("LANDREG_TOKEN")),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer c.Close()
//
//	svc := registry.New(c, nil, logger)
//	svc.SetBlobStore(c)
//
// # Errors
//
// Errors returned by the node are mapped back to the kinds in package model,
// so errors.Is(err, model.ErrConflict) behaves the same as against an
// in-process ledger. Transport failures and 5xx responses match
// model.ErrUnavailable. Mutating calls are never retried: a call that
// returns an error without a Receipt has not been acknowledged.
//
// # Authentication
//
// Write calls carry the Bearer account token set with WithToken. Against a
// development node running without token auth, the actor argument is sent
// as the X-Account header instead.
//
// # Media
//
// Upload posts multipart data to /api/upload and returns the node's
// reference ("/uploads/<name>"); Download fetches it back. References that
// resolve to another host are refused.
package client
