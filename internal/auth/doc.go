// Package auth authenticates operators calling the gateway's admin API.
//
// Operators present an HS256 JWT in the Authorization header:
//
//	Authorization: Bearer <jwt>
//
// Tokens are signed with auth.admin_secret and carry "sub" (operator name),
// "role" and "exp" claims. Mint one with:
//
//	gigs-gateway admin-token --operator alice
//
// HTTPAuthMiddleware verifies the token and stores an AuthContext on the
// request context; RequireAdminHTTP then gates on the admin role.
//
// End users never see these tokens. Their credentials are the signed
// identity tokens of the token package.
package auth
