package weather

// CelsiusToFahrenheit converts a Celsius temperature to Fahrenheit.
// F = C*9/5 + 32.
func CelsiusToFahrenheit(c float64) float64 {
	return c*9.0/5.0 + 32.0
}

// FahrenheitToCelsius is the inverse conversion, used only by tests to
// assert the Fahrenheit/Celsius round-trip law.
func FahrenheitToCelsius(f float64) float64 {
	return (f - 32.0) * 5.0 / 9.0
}
