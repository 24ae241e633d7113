package service

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/cucumber/godog"
	"github.com/shopspring/decimal"

	cartService "github.com/Alturino/storefront/cart/service"
	"github.com/Alturino/storefront/cart/storage"
	"github.com/Alturino/storefront/order/repository"
	"github.com/Alturino/storefront/order/response"
	productRes "github.com/Alturino/storefront/product/response"
)

type checkoutTestContext struct {
	c     context.Context
	cart  *cartService.CartService
	svc   *OrderService
	order response.Order
	err   error
}

func (tc *checkoutTestContext) reset() {
	tc.c = newTestContext()
	tc.cart = cartService.NewCartService(storage.NewMemoryStorage(), "cart_items:feature")
	tc.svc = NewOrderService(
		tc.cart,
		repository.NewMemoryOrderRepository(),
		&recordingNotifier{},
		DefaultPricing(),
	)
	tc.order = response.Order{}
	tc.err = nil
}

func (tc *checkoutTestContext) aCartWithProductPricedQuantity(id int, price string, quantity int) error {
	product := productRes.Product{ID: id, Title: fmt.Sprintf("product %d", id), Price: decimal.RequireFromString(price)}
	return tc.cart.Add(tc.c, product, quantity)
}

func (tc *checkoutTestContext) iPlaceAnOrder() error {
	tc.order, tc.err = tc.svc.PlaceOrder(tc.c, testForm())
	return nil
}

func expectDecimal(field string, expected string, actual decimal.Decimal) error {
	if !decimal.RequireFromString(expected).Equal(actual) {
		return fmt.Errorf("expected order %s %s, got %s", field, expected, actual.String())
	}
	return nil
}

func (tc *checkoutTestContext) theOrderSubtotalIs(expected string) error {
	return expectDecimal("subtotal", expected, tc.order.Subtotal)
}

func (tc *checkoutTestContext) theOrderShippingIs(expected string) error {
	return expectDecimal("shipping", expected, tc.order.Shipping)
}

func (tc *checkoutTestContext) theOrderTaxIs(expected string) error {
	return expectDecimal("tax", expected, tc.order.Tax)
}

func (tc *checkoutTestContext) theOrderTotalIs(expected string) error {
	return expectDecimal("total", expected, tc.order.Total)
}

func (tc *checkoutTestContext) theOrderStatusIs(expected string) error {
	if string(tc.order.Status) != expected {
		return fmt.Errorf("expected status %s, got %s", expected, tc.order.Status)
	}
	return nil
}

func (tc *checkoutTestContext) theOrderHasLineItems(expected int) error {
	if len(tc.order.Items) != expected {
		return fmt.Errorf("expected %d line items, got %d", expected, len(tc.order.Items))
	}
	return nil
}

func (tc *checkoutTestContext) theCartIsEmpty() error {
	if items := tc.cart.Items(); len(items) != 0 {
		return fmt.Errorf("expected empty cart, got %d items", len(items))
	}
	return nil
}

func (tc *checkoutTestContext) theOrderHistoryHasOrders(expected int) error {
	orders, err := tc.svc.Orders(tc.c)
	if err != nil {
		return err
	}
	if len(orders) != expected {
		return fmt.Errorf("expected %d orders, got %d", expected, len(orders))
	}
	return nil
}

func (tc *checkoutTestContext) theCheckoutFailsWith(message string) error {
	if tc.err == nil {
		return errors.New("expected checkout to fail")
	}
	if tc.svc.Err() != message {
		return fmt.Errorf("expected error %q, got %q", message, tc.svc.Err())
	}
	return nil
}

func InitializeCheckoutScenario(ctx *godog.ScenarioContext) {
	tc := &checkoutTestContext{}

	ctx.Before(func(c context.Context, sc *godog.Scenario) (context.Context, error) {
		tc.reset()
		return c, nil
	})

	ctx.Step(`^a cart with product (\d+) priced ([\d.]+) quantity (\d+)$`, tc.aCartWithProductPricedQuantity)
	ctx.Step(`^I place an order$`, tc.iPlaceAnOrder)
	ctx.Step(`^the order subtotal is ([\d.]+)$`, tc.theOrderSubtotalIs)
	ctx.Step(`^the order shipping is ([\d.]+)$`, tc.theOrderShippingIs)
	ctx.Step(`^the order tax is ([\d.]+)$`, tc.theOrderTaxIs)
	ctx.Step(`^the order total is ([\d.]+)$`, tc.theOrderTotalIs)
	ctx.Step(`^the order status is "([^"]*)"$`, tc.theOrderStatusIs)
	ctx.Step(`^the order has (\d+) line items$`, tc.theOrderHasLineItems)
	ctx.Step(`^the cart is empty$`, tc.theCartIsEmpty)
	ctx.Step(`^the order history has (\d+) orders$`, tc.theOrderHistoryHasOrders)
	ctx.Step(`^the checkout fails with "([^"]*)"$`, tc.theCheckoutFailsWith)
}

func TestCheckoutFeatures(t *testing.T) {
	suite := godog.TestSuite{
		ScenarioInitializer: InitializeCheckoutScenario,
		Options: &godog.Options{
			Format:   "pretty",
			Paths:    []string{"features/checkout.feature"},
			TestingT: t,
		},
	}

	if suite.Run() != 0 {
		t.Fatal("non-zero status returned, failed to run feature tests")
	}
}
