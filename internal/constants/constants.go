package constants

const (
	AppStorefront          = "storefront"
	AppNotificationService = "notification-service"
	AppCatalogClient       = "catalog-client"
	AppCartService         = "cart-service"
	AppOrderService        = "order-service"
	AppProductService      = "product-service"
	AppSessionService      = "session-service"
	AudienceShopper        = "audience-shopper"
)

const (
	ChannelNotifications = "notifications"
	KeyCartItems         = "cart_items:%s"
	DefaultCartSlot      = "cart_items"
)
