package catalog

import (
	"fmt"
	"io"
	"strings"

	"ms-rental/internal/models"

	"gopkg.in/yaml.v3"
)

type carFixture struct {
	ID              string `yaml:"id"`
	SellerID        string `yaml:"seller_id"`
	Make            string `yaml:"make"`
	Model           string `yaml:"model"`
	Year            int    `yaml:"year"`
	Location        string `yaml:"location"`
	DailyRate       int64  `yaml:"daily_rate"`
	DiscountPercent int    `yaml:"discount_percent"`
	Currency        string `yaml:"currency"`
	Available       *bool  `yaml:"available"`
}

// LoadCars reads a YAML list of cars. Rates are in cents. Currency defaults
// to usd and availability to true.
func LoadCars(r io.Reader) ([]models.Car, error) {
	var fixtures []carFixture
	if err := yaml.NewDecoder(r).Decode(&fixtures); err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, fmt.Errorf("decode cars: %w", err)
	}

	cars := make([]models.Car, 0, len(fixtures))
	seen := make(map[string]bool, len(fixtures))
	for i, f := range fixtures {
		switch {
		case f.ID == "" || f.SellerID == "":
			return nil, fmt.Errorf("car %d: id and seller_id are required", i+1)
		case seen[f.ID]:
			return nil, fmt.Errorf("car %s listed twice", f.ID)
		case f.DailyRate <= 0:
			return nil, fmt.Errorf("car %s: daily_rate must be positive", f.ID)
		case f.DiscountPercent < 0 || f.DiscountPercent > 100:
			return nil, fmt.Errorf("car %s: discount_percent %d out of range", f.ID, f.DiscountPercent)
		}
		seen[f.ID] = true

		car := models.Car{
			ID:              f.ID,
			SellerID:        f.SellerID,
			Make:            f.Make,
			Model:           f.Model,
			Year:            f.Year,
			Location:        f.Location,
			DailyRate:       f.DailyRate,
			DiscountPercent: f.DiscountPercent,
			Currency:        strings.ToLower(f.Currency),
			Available:       f.Available == nil || *f.Available,
		}
		if car.Currency == "" {
			car.Currency = "usd"
		}
		cars = append(cars, car)
	}
	return cars, nil
}
