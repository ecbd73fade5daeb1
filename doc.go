// Package authcore implements the authentication and session
// lifecycle for account-holding services: credential verification with
// progressive lockout, a time-boxed TOTP/backup-code second factor,
// asymmetric-signed access tokens with rotating opaque refresh tokens,
// a server-side session registry, fixed-window rate admission, and
// asynchronous audit emission.
//
// The entry point is the Builder:
//
//	engine, err := authcore.New().
//		WithConfig(cfg).
//		WithRedis(client).
//		WithAccountStore(accounts).
//		WithRefreshTokenStore(tokens).
//		Build()
//
// Engines are safe for concurrent use once built.
package authcore
