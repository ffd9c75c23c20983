package router

// Version is the router server version.
const Version = "0.1.0"

// ApiVersion is the version of the session API surface.
const ApiVersion = "v1"
