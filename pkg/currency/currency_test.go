package currency

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSymbolKnownCode(t *testing.T) {
	assert.Equal(t, "$", Symbol("USD"))
	assert.Equal(t, "₹", Symbol("INR"))
}

func TestSymbolUnknownCodeFallsBack(t *testing.T) {
	assert.Equal(t, "XYZ", Symbol("XYZ"))
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "$1062.00", Format(1062, "USD"))
	assert.Equal(t, "Rp500.50", Format(500.5, "IDR"))
}
