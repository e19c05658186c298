package utils

import (
	"fmt"

	"github.com/google/uuid"
)

// GenerateConnectionID generates a unique transport connection ID
func GenerateConnectionID() string {
	return fmt.Sprintf("conn_%s", uuid.NewString())
}

// GenerateInstanceID generates a unique coordinator instance ID
func GenerateInstanceID() string {
	return fmt.Sprintf("inst_%s", uuid.NewString())
}
