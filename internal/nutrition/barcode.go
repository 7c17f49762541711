// Package nutrition holds the collaborator clients that produce candidate
// meal entries: barcode lookup against OpenFoodFacts and LLM-based photo and
// text analysis. The store validates candidates at Add; this package only
// produces them.
package nutrition

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

const defaultOpenFoodFactsBaseURL = "https://world.openfoodfacts.org"

// ErrProductNotFound indicates the barcode is unknown to the product
// database.
var ErrProductNotFound = errors.New("nutrition: product not found")

// Product carries the per-100g nutritional facts of one looked-up product.
type Product struct {
	Name            string   `json:"name"`
	Brand           string   `json:"brand,omitempty"`
	ProteinPer100g  float64  `json:"protein_per_100g"`
	CaloriesPer100g *float64 `json:"calories_per_100g,omitempty"`
	ServingSizeG    *float64 `json:"serving_size_g,omitempty"`
	ImageURL        string   `json:"image_url,omitempty"`
}

// BarcodeClientConfig describes the dependencies of the barcode client.
type BarcodeClientConfig struct {
	BaseURL    string
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// BarcodeClient looks up products in the OpenFoodFacts database.
type BarcodeClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

func NewBarcodeClient(cfg BarcodeClientConfig) *BarcodeClient {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultOpenFoodFactsBaseURL
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BarcodeClient{baseURL: baseURL, httpClient: httpClient, logger: logger}
}

type openFoodFactsResponse struct {
	Status  int `json:"status"`
	Product *struct {
		ProductName       string                     `json:"product_name"`
		Brands            string                     `json:"brands"`
		ServingSize       string                     `json:"serving_size"`
		ImageFrontSmall   string                     `json:"image_front_small_url"`
		Nutriments        map[string]json.RawMessage `json:"nutriments"`
	} `json:"product"`
}

// Lookup fetches the product behind a barcode and maps its nutriments to
// per-100g facts.
func (c *BarcodeClient) Lookup(ctx context.Context, barcode string) (Product, error) {
	endpoint := fmt.Sprintf("%s/api/v0/product/%s.json", c.baseURL, url.PathEscape(barcode))
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Product{}, fmt.Errorf("nutrition: build lookup request: %w", err)
	}

	response, err := c.httpClient.Do(request)
	if err != nil {
		return Product{}, fmt.Errorf("nutrition: product database unreachable: %w", err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return Product{}, fmt.Errorf("nutrition: product database returned status %d", response.StatusCode)
	}

	var payload openFoodFactsResponse
	if err := json.NewDecoder(response.Body).Decode(&payload); err != nil {
		return Product{}, fmt.Errorf("nutrition: decode lookup response: %w", err)
	}
	if payload.Status != 1 || payload.Product == nil {
		return Product{}, fmt.Errorf("%w: barcode %s", ErrProductNotFound, barcode)
	}

	raw := payload.Product
	name := raw.ProductName
	if strings.TrimSpace(name) == "" {
		name = "Unknown product"
	}

	product := Product{
		Name:         name,
		Brand:        raw.Brands,
		ImageURL:     raw.ImageFrontSmall,
		ServingSizeG: parseServingSize(raw.ServingSize),
	}
	product.ProteinPer100g = nutrimentValue(raw.Nutriments, "proteins_100g", "proteins")
	if calories := nutrimentValue(raw.Nutriments, "energy-kcal_100g", "energy-kcal"); calories > 0 {
		product.CaloriesPer100g = &calories
	}

	c.logger.Debug("barcode lookup succeeded",
		zap.String("barcode", barcode),
		zap.String("product", product.Name))
	return product, nil
}

// nutrimentValue reads the first present key from the nutriments map.
// OpenFoodFacts serves numbers both as JSON numbers and as strings.
func nutrimentValue(nutriments map[string]json.RawMessage, keys ...string) float64 {
	for _, key := range keys {
		raw, ok := nutriments[key]
		if !ok {
			continue
		}
		var number float64
		if err := json.Unmarshal(raw, &number); err == nil {
			return number
		}
		var text string
		if err := json.Unmarshal(raw, &text); err == nil {
			if parsed, err := strconv.ParseFloat(strings.ReplaceAll(text, ",", "."), 64); err == nil {
				return parsed
			}
		}
	}
	return 0
}

var servingSizePattern = regexp.MustCompile(`(?i)(\d+(?:[.,]\d+)?)\s*g`)

func parseServingSize(serving string) *float64 {
	match := servingSizePattern.FindStringSubmatch(serving)
	if match == nil {
		return nil
	}
	grams, err := strconv.ParseFloat(strings.ReplaceAll(match[1], ",", "."), 64)
	if err != nil {
		return nil
	}
	return &grams
}

// DisplayName is the meal description for an entry created from this
// product.
func (p Product) DisplayName() string {
	if strings.TrimSpace(p.Brand) != "" {
		return fmt.Sprintf("%s (%s)", p.Name, p.Brand)
	}
	return p.Name
}

// Scale converts per-100g facts into logged amounts for the given grams.
// Protein rounds to one decimal place, calories to the nearest integer.
// Zero or negative grams fall back to a 100 g portion.
func (p Product) Scale(grams float64) (proteinG float64, calories *float64) {
	if grams <= 0 {
		grams = 100
	}
	factor := grams / 100
	proteinG = math.Round(p.ProteinPer100g*factor*10) / 10
	if p.CaloriesPer100g != nil {
		scaled := math.Round(*p.CaloriesPer100g * factor)
		calories = &scaled
	}
	return proteinG, calories
}
