package domain

// Route is a logical navigation destination. The core treats routes as opaque
// names; rendering them as URLs or screens is up to the client.
type Route string

const (
	RouteHome            Route = "home"
	RouteSignIn          Route = "sign-in"
	RouteSignUp          Route = "sign-up"
	RouteRecoverPassword Route = "recover-password"
	RouteResetPassword   Route = "reset-password"
	RouteAdminDashboard  Route = "admin-dashboard"
	RouteAccount         Route = "account"
	RouteUpload          Route = "upload"
	RouteProcessing      Route = "processing"
)
