package session

import (
	"context"
	"sync/atomic"
	"time"

	cartService "github.com/Alturino/storefront/cart/service"
	notificationService "github.com/Alturino/storefront/notification/service"
	orderService "github.com/Alturino/storefront/order/service"
	productService "github.com/Alturino/storefront/product/service"
)

// Session is the state of one shopper. The catalog is shared by every session, the cart and
// order history are not.
type Session struct {
	ID       string
	Catalog  *productService.CatalogService
	Cart     *cartService.CartService
	Orders   *orderService.OrderService
	Notifier notificationService.Notifier

	lastSeen atomic.Int64
}

func (s *Session) touch(now time.Time) {
	s.lastSeen.Store(now.UnixNano())
}

func (s *Session) LastSeen() time.Time {
	return time.Unix(0, s.lastSeen.Load())
}

type sessionKey struct{}

func AttachSessionToContext(c context.Context, s *Session) context.Context {
	return context.WithValue(c, sessionKey{}, s)
}

func FromContext(c context.Context) (*Session, bool) {
	s, ok := c.Value(sessionKey{}).(*Session)
	return s, ok && s != nil
}
