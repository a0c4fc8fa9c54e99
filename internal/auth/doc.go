// Package auth provides authentication for the coven-threads HTTP API.
//
// # Authentication Methods
//
//   - JWT Tokens: HS256 tokens signed with the configured jwt_secret. The
//     subject is taken from the "sub" claim; tokens must carry the
//     coven-threads issuer and an expiry. Mint them with `threadd token`.
//
//   - API Key: a single static key compared in constant time, sent in the
//     X-API-Key header.
//
// Either method can be configured alone. With neither configured the
// middleware lets every request through without an Identity.
//
// # Usage
//
//	verifier := auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))
//	authn := auth.NewAuthenticator(verifier, cfg.Auth.APIKey, logger)
//	mux.Handle("/threads", authn.Middleware(handler))
//
// Handlers read the caller with FromContext:
//
//	if id := auth.FromContext(r.Context()); id != nil {
//	    logger.Info("request", "subject", id.Subject)
//	}
//
// # Error Handling
//
//   - ErrInvalidToken: signature, issuer or format is wrong
//   - ErrExpiredToken: the exp claim has passed
//   - ErrMissingClaim: the sub claim is absent
//
// Rejected HTTP requests receive 401 with a {"error": "..."} body.
package auth
