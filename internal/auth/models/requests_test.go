package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRegisterRequestNormalize(t *testing.T) {
	t.Run("derives a missing name from the email", func(t *testing.T) {
		r := RegisterRequest{Email: " Jane.Doe@Example.com ", Password: "longenough"}
		r.Normalize()
		assert.Equal(t, "jane.doe@example.com", r.Email)
		assert.Equal(t, "Jane Doe", r.Name)
	})

	t.Run("keeps a given name", func(t *testing.T) {
		r := RegisterRequest{Email: "jane@example.com", Name: "  Jane Q. Public "}
		r.Normalize()
		assert.Equal(t, "Jane Q. Public", r.Name)
	})
}
