package handler

import (
	"encoding/json"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/nordmarkt/storefront/internal/checkout"
	"github.com/nordmarkt/storefront/internal/domain/order"
	"github.com/nordmarkt/storefront/internal/settlement"
)

// Gateway metadata keys. Everything settlement needs is attached to the
// payment at authorization time and comes back verbatim on the terminal
// event, so the webhook path never has to trust anything client-side.
const (
	metaBuyerID  = "buyer_id"
	metaBrandID  = "brand_id"
	metaEmail    = "email"
	metaCart     = "cart"
	metaShipping = "shipping"
)

// metaLine is one validated cart line as serialized into payment metadata.
type metaLine struct {
	ProductID   string          `json:"product_id"`
	ProductName string          `json:"product_name"`
	BrandName   string          `json:"brand_name"`
	Size        string          `json:"size"`
	Quantity    int             `json:"quantity"`
	Image       string          `json:"image,omitempty"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Currency    string          `json:"currency"`
}

// buildMetadata serializes the validated cart and shipping snapshot into the
// gateway's string-to-string metadata map.
func buildMetadata(buyerID, email string, cart *checkout.ValidatedCart, shipping order.Address) (map[string]string, error) {
	lines := make([]metaLine, len(cart.Lines))
	for i, l := range cart.Lines {
		lines[i] = metaLine{
			ProductID:   l.ProductID,
			ProductName: l.ProductName,
			BrandName:   l.BrandName,
			Size:        l.Size,
			Quantity:    l.Quantity,
			Image:       l.Image,
			UnitPrice:   l.UnitPrice,
			Currency:    l.Currency,
		}
	}
	cartJSON, err := json.Marshal(lines)
	if err != nil {
		return nil, errors.Wrap(err, "marshal cart metadata")
	}
	shipJSON, err := json.Marshal(shipping)
	if err != nil {
		return nil, errors.Wrap(err, "marshal shipping metadata")
	}

	return map[string]string{
		metaBuyerID:  buyerID,
		metaBrandID:  cart.BrandID,
		metaEmail:    email,
		metaCart:     string(cartJSON),
		metaShipping: string(shipJSON),
	}, nil
}

// settleRequestFromMetadata reconstructs a settlement request from the
// metadata that round-tripped through the gateway.
func settleRequestFromMetadata(ref, method string, md map[string]string, grossMinor int64, currency string, feeMinor int64) (settlement.Request, error) {
	var req settlement.Request

	buyerID, brandID := md[metaBuyerID], md[metaBrandID]
	if buyerID == "" || brandID == "" {
		return req, errors.New("metadata missing buyer or brand")
	}

	var lines []metaLine
	if err := json.Unmarshal([]byte(md[metaCart]), &lines); err != nil {
		return req, errors.Wrap(err, "unmarshal cart metadata")
	}
	if len(lines) == 0 {
		return req, errors.New("metadata cart is empty")
	}

	var shipping order.Address
	if raw := md[metaShipping]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &shipping); err != nil {
			return req, errors.Wrap(err, "unmarshal shipping metadata")
		}
	}

	settleLines := make([]settlement.Line, len(lines))
	for i, l := range lines {
		settleLines[i] = settlement.Line{
			ProductID:   l.ProductID,
			ProductName: l.ProductName,
			BrandName:   l.BrandName,
			Size:        l.Size,
			Quantity:    l.Quantity,
			Image:       l.Image,
			UnitPrice:   l.UnitPrice,
			Currency:    l.Currency,
		}
	}

	return settlement.Request{
		PaymentRef:    ref,
		PaymentMethod: method,
		BuyerID:       buyerID,
		BrandID:       brandID,
		BuyerEmail:    md[metaEmail],
		Lines:         settleLines,
		Shipping:      shipping,
		GrossMinor:    grossMinor,
		Currency:      currency,
		FeeMinor:      feeMinor,
	}, nil
}
