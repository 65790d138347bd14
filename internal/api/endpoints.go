package api

// Token introspection service endpoints
const (
	// Service name
	IntrospectionService = "scribe.auth.v1.TokenIntrospection"

	// Introspection endpoints
	IntrospectionIntrospect = "/scribe.auth.v1.TokenIntrospection/Introspect"
	IntrospectionWhoAmI     = "/scribe.auth.v1.TokenIntrospection/WhoAmI"

	// Standard health checking
	HealthCheck = "/grpc.health.v1.Health/Check"
	HealthWatch = "/grpc.health.v1.Health/Watch"
)

// PublicEndpoints defines endpoints that don't require authentication
var PublicEndpoints = map[string]bool{
	IntrospectionIntrospect: true,
	HealthCheck:             true,
	HealthWatch:             true,
}
