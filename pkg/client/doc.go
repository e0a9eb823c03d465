// Package client is the Go SDK for the death certificate registry API.
//
// Public operations need no credentials:
//
//	c := client.New("https://registry.example.gov")
//	cert, err := c.Lookup(ctx, "900101-14-5678")
//	if errors.Is(err, client.ErrNotFound) {
//	    // no certificate recorded for this IC
//	}
//
// Operator operations (the approval queue and role management) need a
// Bearer token. Login exchanges the operator secret for one and attaches it
// to every later request:
//
//	if err := c.Login(ctx, "registrar", os.Getenv("REGISTRY_OPERATOR_SECRET")); err != nil {
//	    log.Fatal(err)
//	}
//	res, err := c.Approve(ctx, "QmX...")
//	if err == nil && res.Status == client.StatusDeclined {
//	    // the wallet refused to sign; the record is still pending
//	}
//
// Errors returned by the registry are *APIError values carrying the HTTP
// status and the failure kind; errors.Is matches them against ErrNotFound,
// ErrConflict, ErrUnauthorized and ErrValidation.
package client
