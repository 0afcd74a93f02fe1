package fakeserver

const (
	RouteRegister       = "/auth/register"
	RouteLogin          = "/auth/login"
	RouteVerify2FA      = "/auth/2fa/verify"
	RouteRefresh        = "/auth/refresh"
	RouteLogoutAll      = "/auth/logout-all"
	RouteMe             = "/me"
	RouteChangePassword = "/security/change-password"

	RouteOrdersBuy    = "/orders/buy"
	RouteOrders       = "/orders"
	RouteOrder        = "/orders/{id:[0-9]+}"
	RouteOrdersByUser = "/orders/user/{id:[0-9]+}"
	RouteOrderStatus  = "/orders/{id:[0-9]+}/status"
	RouteOrderCancel  = "/orders/{id:[0-9]+}/cancel"

	RouteAdminOrders      = "/admin/orders"
	RouteAdminOrderStatus = "/admin/orders/{id:[0-9]+}/status"

	// Test-only endpoints.
	RouteEcho = "/test/echo"
	RouteSlow = "/test/slow"
	RouteFail = "/test/fail/{status:[0-9]+}"

	ChannelOrders      = "/ws/orders"
	ChannelAdminOrders = "/ws/admin/orders"
)

func (s *Server) initRoutes() {
	s.router.Use(s.RecordMiddleware, s.LoggingMiddleware)

	// AUTH
	s.RegisterRouteFunc("POST "+RouteRegister, s.RegisterHandler())
	s.RegisterRouteFunc("POST "+RouteLogin, s.LoginHandler())
	s.RegisterRouteFunc("POST "+RouteVerify2FA, s.Verify2FAHandler())
	s.RegisterRouteFunc("POST "+RouteRefresh, s.RefreshHandler())
	s.RegisterRouteFunc("POST "+RouteLogoutAll, ChainMiddleware(s.LogoutAllHandler(), s.RequireAuth))
	s.RegisterRouteFunc("GET "+RouteMe, ChainMiddleware(s.MeHandler(), s.RequireAuth))
	s.RegisterRouteFunc("POST "+RouteChangePassword, ChainMiddleware(s.ChangePasswordHandler(), s.RequireAuth))

	// ORDERS
	s.RegisterRouteFunc("POST "+RouteOrdersBuy, ChainMiddleware(s.CreateOrderHandler(), s.RequireAuth))
	s.RegisterRouteFunc("GET "+RouteOrders, ChainMiddleware(s.ListOrdersHandler(), s.RequireAuth))
	s.RegisterRouteFunc("GET "+RouteOrdersByUser, ChainMiddleware(s.ListUserOrdersHandler(), s.RequireAuth))
	s.RegisterRouteFunc("GET "+RouteOrder, ChainMiddleware(s.GetOrderHandler(), s.RequireAuth))
	s.RegisterRouteFunc("PUT "+RouteOrderStatus, ChainMiddleware(s.UpdateOrderStatusHandler(), s.RequireAuth))
	s.RegisterRouteFunc("PUT "+RouteOrderCancel, ChainMiddleware(s.CancelOrderHandler(), s.RequireAuth))
	s.RegisterRouteFunc("DELETE "+RouteOrder, ChainMiddleware(s.DeleteOrderHandler(), s.RequireAuth))

	// ADMIN
	s.RegisterRouteFunc("GET "+RouteAdminOrders, ChainMiddleware(s.AdminListOrdersHandler(), s.RequireAuth, s.RequireAdmin))
	s.RegisterRouteFunc("PATCH "+RouteAdminOrderStatus, ChainMiddleware(s.AdminUpdateStatusHandler(), s.RequireAuth, s.RequireAdmin))

	// REALTIME
	s.RegisterRouteFunc("GET "+ChannelOrders, s.SocketHandler(ChannelOrders, false))
	s.RegisterRouteFunc("GET "+ChannelAdminOrders, s.SocketHandler(ChannelAdminOrders, true))

	// TEST
	s.RegisterRouteFunc(RouteEcho, ChainMiddleware(s.EchoHandler(), s.RequireAuth))
	s.RegisterRouteFunc("GET "+RouteSlow, s.SlowHandler())
	s.RegisterRouteFunc(RouteFail, ChainMiddleware(s.FailHandler(), s.RequireAuth))
}
