package log

const (
	KeyAppName            = "app"
	KeyRequestID          = "requestId"
	KeyProcess            = "process"
	KeyToken              = "token"
	KeyEmail              = "email"
	KeyTag                = "tag"
	KeyTraceID            = "traceId"
	KeySpanID             = "spanId"
	KeyRequest            = "request"
	KeyRequestBody        = "requestBody"
	KeyRequestHeader      = "requestHeader"
	KeyRequestHost        = "host"
	KeyRequestIp          = "requesterIP"
	KeyRequestMethod      = "requestMethod"
	KeyRequestProcessedAt = "requestProcessedAt"
	KeyRequestURI         = "requestURI"
	KeyRequestURL         = "requestURL"
	KeyConfig             = "config"
	KeySessionID          = "sessionId"
	KeyCacheKey           = "cacheKey"
	KeyStorageKey         = "storageKey"
	KeyCart               = "cart"
	KeyCartItems          = "cartItems"
	KeyCartItemQuantity   = "cartItemQuantity"
	KeyCartTotal          = "cartTotal"
	KeyCartCount          = "cartCount"
	KeyProduct            = "product"
	KeyProducts           = "products"
	KeyProductID          = "productId"
	KeyCategory           = "category"
	KeyCategories         = "categories"
	KeyURL                = "url"
	KeyStatusCode         = "statusCode"
	KeyOrder              = "order"
	KeyOrders             = "orders"
	KeyOrderID            = "orderId"
	KeyOrderNumber        = "orderNumber"
	KeyNotification       = "notification"
	KeyChannel            = "channel"
	KeyBreakerState       = "breakerState"
)
