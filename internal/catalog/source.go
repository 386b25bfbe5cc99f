package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/noah-isme/superapp-core/internal/money"
)

// HTTPSource reads products from the marketplace listing service. Prices arrive as decimal
// major units, either a string or a JSON number, and are converted here.
type HTTPSource struct {
	BaseURL  string
	Client   *http.Client
	Currency string
	Rounding money.RoundingMode
}

type productDTO struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	VendorID string          `json:"vendorId"`
	Price    json.RawMessage `json:"price"`
	Currency string          `json:"currency"`
}

// FetchProduct implements Source.
func (s *HTTPSource) FetchProduct(ctx context.Context, id string) (Product, error) {
	if s == nil || s.BaseURL == "" {
		return Product{}, errors.New("catalog: http source not configured")
	}
	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	endpoint := strings.TrimRight(s.BaseURL, "/") + "/products/" + url.PathEscape(id)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Product{}, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return Product{}, fmt.Errorf("catalog: fetch %s: %w", id, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return Product{}, fmt.Errorf("%s: %w", id, ErrProductNotFound)
	case resp.StatusCode >= 300:
		return Product{}, fmt.Errorf("catalog: fetch %s: status %d", id, resp.StatusCode)
	}

	var dto productDTO
	if err := json.NewDecoder(resp.Body).Decode(&dto); err != nil {
		return Product{}, fmt.Errorf("catalog: decode %s: %w", id, err)
	}
	currency := dto.Currency
	if currency == "" {
		currency = s.Currency
	}
	price, err := money.ParseMajor(priceText(dto.Price), currency, s.Rounding)
	if err != nil {
		return Product{}, fmt.Errorf("catalog: price for %s: %w", id, err)
	}
	if dto.ID == "" {
		dto.ID = id
	}
	return Product{ID: dto.ID, Name: dto.Name, VendorID: dto.VendorID, Price: price}, nil
}

func priceText(raw json.RawMessage) string {
	trimmed := strings.TrimSpace(string(raw))
	if strings.HasPrefix(trimmed, `"`) {
		var s string
		if json.Unmarshal(raw, &s) == nil {
			return s
		}
		return ""
	}
	return trimmed
}
