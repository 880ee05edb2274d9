package weather

import "testing"

func TestCelsiusFahrenheitRoundTrip(t *testing.T) {
	cases := []float64{-40, 0, 15.5, 32, 100}
	for _, c := range cases {
		f := CelsiusToFahrenheit(c)
		back := FahrenheitToCelsius(f)
		if diff := back - c; diff > 1e-9 || diff < -1e-9 {
			t.Errorf("round trip for %v: got %v, diff %v", c, back, diff)
		}
	}
}

func TestCelsiusToFahrenheit_Known(t *testing.T) {
	if got := CelsiusToFahrenheit(0); got != 32 {
		t.Errorf("0C: expected 32F, got %v", got)
	}
	if got := CelsiusToFahrenheit(100); got != 212 {
		t.Errorf("100C: expected 212F, got %v", got)
	}
}
